package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"studypal/internal/crypto"
	"studypal/internal/mailer"
	"studypal/internal/models"
	"studypal/internal/ratelimit"
	"studypal/internal/repository"
)

const (
	otpMin = 100000
	otpMax = 999999
)

type OTPService struct {
	repo        repository.Repository
	sealer      *crypto.Sealer
	mail        mailer.Mailer
	limiter     ratelimit.Limiter
	ttl         time.Duration
	maxAttempts int
	hashCost    int
	now         func() time.Time
	newCode     func() (string, error)
	logger      *zap.Logger
}

func NewOTPService(
	repo repository.Repository,
	sealer *crypto.Sealer,
	mail mailer.Mailer,
	limiter ratelimit.Limiter,
	ttl time.Duration,
	maxAttempts int,
	logger *zap.Logger,
) *OTPService {
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	return &OTPService{
		repo:        repo,
		sealer:      sealer,
		mail:        mail,
		limiter:     limiter,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		hashCost:    defaultHashCost,
		now:         time.Now,
		newCode:     generateCode,
		logger:      logger.Named("otp"),
	}
}

// generateCode draws uniformly from [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}

// digestInput binds the code to the address so a digest can't be replayed across emails.
func digestInput(email, code string) string {
	return email + "\x00" + code
}

type IssueRequest struct {
	Email    string
	Password string
	Name     string
}

// Issue creates or replaces the pending code for an unregistered email and mails it.
func (s *OTPService) Issue(ctx context.Context, req IssueRequest) error {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return invalid("Email and password are required")
	}

	allowed, err := s.limiter.Allow(ctx, email)
	if err != nil {
		// Fail open while the limiter is unreachable.
		s.logger.Warn("otp rate limiter unavailable", zap.Error(err))
		allowed = true
	}
	if !allowed {
		return ErrRateLimited
	}

	exists, err := s.repo.UserExists(ctx, email)
	if err != nil {
		return storeErr("check existing user", err)
	}
	if exists {
		return ErrUserExists
	}

	code, err := s.newCode()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	err = s.repo.UpsertOTP(ctx, &models.OneTimeCode{
		Email:      email,
		CodeDigest: s.sealer.Digest(digestInput(email, code)),
		ExpiresAt:  s.now().Add(s.ttl),
	})
	if err != nil {
		s.logger.Error("error upserting otp", zap.Error(err))
		return storeErr("upsert otp", err)
	}

	err = s.mail.Send(ctx, mailer.Message{
		To:      email,
		Subject: "Your OTP for Sign Up",
		Text:    "Your OTP code is: " + code,
	})
	if err != nil {
		s.logger.Error("error sending otp email", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrMailDelivery, err)
	}

	s.logger.Info("otp issued", zap.Time("expires_at", s.now().Add(s.ttl)))
	return nil
}

type VerifyRequest struct {
	Email    string
	OTP      string
	Password string
	Name     string
}

// Verify checks the submitted code and, on success, consumes it and creates
// the account in one transaction. Every submission counts against the attempt budget.
func (s *OTPService) Verify(ctx context.Context, req VerifyRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.OTP == "" || req.Password == "" {
		return nil, invalid("Email, OTP and password are required")
	}

	code, err := s.repo.GetOTP(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOTPNotFound
	}
	if err != nil {
		return nil, storeErr("get otp", err)
	}

	now := s.now()
	if now.After(code.ExpiresAt) || code.Attempts >= s.maxAttempts {
		return nil, ErrOTPInvalid
	}
	// The attempt is spent before the comparison; a guess that cannot claim one is not evaluated.
	claimed, err := s.repo.ClaimOTPAttempt(ctx, email, s.maxAttempts, now)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOTPInvalid
	}
	if err != nil {
		return nil, storeErr("claim otp attempt", err)
	}
	if !s.sealer.Matches(claimed.CodeDigest, digestInput(email, req.OTP)) {
		return nil, ErrOTPInvalid
	}

	hash, err := hashPassword(req.Password, s.hashCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{Email: email, PasswordHash: &hash, Role: models.RoleStudent}
	if name := trimmed(req.Name); name != "" {
		user.Name = &name
	}

	err = s.repo.RunInTx(ctx, func(tx repository.Repository) error {
		if err := tx.DeleteOTP(ctx, email); err != nil {
			return storeErr("consume otp", err)
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrUserExists
			}
			return storeErr("create user", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account created from otp", zap.String("user_id", user.ID.String()))
	return user, nil
}
