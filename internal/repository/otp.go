package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"studypal/internal/models"
)

// UpsertOTP replaces any previous code for the email and resets its attempt counter.
func (r *Postgres) UpsertOTP(ctx context.Context, code *models.OneTimeCode) error {
	q := r.psql.Insert("one_time_codes").
		Columns("email", "code_digest", "expires_at", "attempts").
		Values(code.Email, code.CodeDigest, code.ExpiresAt, 0).
		Suffix(`ON CONFLICT (email) DO UPDATE SET
			code_digest = EXCLUDED.code_digest,
			expires_at = EXCLUDED.expires_at,
			attempts = 0,
			created_at = NOW()`)
	if _, err := r.exec(ctx, q); err != nil {
		return fmt.Errorf("upsert otp: %w", err)
	}
	return nil
}

func (r *Postgres) GetOTP(ctx context.Context, email string) (*models.OneTimeCode, error) {
	var code models.OneTimeCode
	q := r.psql.Select("email", "code_digest", "expires_at", "attempts", "created_at").
		From("one_time_codes").
		Where(squirrel.Eq{"email": email})
	if err := r.get(ctx, &code, q); err != nil {
		return nil, fmt.Errorf("get otp: %w", err)
	}
	return &code, nil
}

// ClaimOTPAttempt spends one attempt of a live code and returns the row as it
// is after the increment. A missing, expired or exhausted code is ErrNotFound.
// The check and the increment are one statement, so concurrent guesses cannot
// share an attempt.
func (r *Postgres) ClaimOTPAttempt(ctx context.Context, email string, maxAttempts int, now time.Time) (*models.OneTimeCode, error) {
	var code models.OneTimeCode
	q := r.psql.Update("one_time_codes").
		Set("attempts", squirrel.Expr("attempts + 1")).
		Where(squirrel.Eq{"email": email}).
		Where(squirrel.Lt{"attempts": maxAttempts}).
		Where(squirrel.GtOrEq{"expires_at": now}).
		Suffix("RETURNING email, code_digest, expires_at, attempts, created_at")
	if err := r.get(ctx, &code, q); err != nil {
		return nil, fmt.Errorf("claim otp attempt: %w", err)
	}
	return &code, nil
}

func (r *Postgres) DeleteOTP(ctx context.Context, email string) error {
	q := r.psql.Delete("one_time_codes").Where(squirrel.Eq{"email": email})
	if _, err := r.exec(ctx, q); err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}
