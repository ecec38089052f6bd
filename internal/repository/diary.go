package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"studypal/internal/models"
)

var diaryColumns = []string{"id", "user_id", "entry_date", "entry", "created_at", "updated_at"}

// UpsertDiaryEntry stores one entry per user and calendar day.
func (r *Postgres) UpsertDiaryEntry(ctx context.Context, e *models.DiaryEntry) (bool, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	q := r.psql.Insert("diary_entries").
		Columns("id", "user_id", "entry_date", "entry").
		Values(e.ID, e.UserID, e.Date, e.Entry).
		Suffix(`ON CONFLICT (user_id, entry_date) DO UPDATE SET
			entry = EXCLUDED.entry,
			updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0) AS inserted`)

	var row struct {
		ID        uuid.UUID `db:"id"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
		Inserted  bool      `db:"inserted"`
	}
	if err := r.get(ctx, &row, q); err != nil {
		return false, fmt.Errorf("upsert diary entry: %w", err)
	}
	e.ID, e.CreatedAt, e.UpdatedAt = row.ID, row.CreatedAt, row.UpdatedAt
	return row.Inserted, nil
}

func (r *Postgres) ListDiaryEntries(ctx context.Context, userID uuid.UUID) ([]models.DiaryEntry, error) {
	out := []models.DiaryEntry{}
	q := r.psql.Select(diaryColumns...).
		From("diary_entries").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("entry_date DESC")
	if err := r.selectAll(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("list diary entries: %w", err)
	}
	return out, nil
}

func (r *Postgres) UpdateDiaryEntry(ctx context.Context, userID uuid.UUID, date time.Time, entry string) (*models.DiaryEntry, error) {
	var e models.DiaryEntry
	q := r.psql.Update("diary_entries").
		Set("entry", entry).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"user_id": userID, "entry_date": date}).
		Suffix("RETURNING id, user_id, entry_date, entry, created_at, updated_at")
	if err := r.get(ctx, &e, q); err != nil {
		return nil, fmt.Errorf("update diary entry: %w", err)
	}
	return &e, nil
}

func (r *Postgres) DeleteDiaryEntry(ctx context.Context, userID uuid.UUID, date time.Time) error {
	q := r.psql.Delete("diary_entries").Where(squirrel.Eq{"user_id": userID, "entry_date": date})
	if err := r.execOne(ctx, q); err != nil {
		return fmt.Errorf("delete diary entry: %w", err)
	}
	return nil
}
