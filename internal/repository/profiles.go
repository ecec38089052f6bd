package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"studypal/internal/models"
)

func (r *Postgres) UpsertProfile(ctx context.Context, p *models.StudyProfile) error {
	data := []byte(p.Data)
	if len(data) == 0 {
		data = []byte("{}")
	}
	q := r.psql.Insert("study_profiles").
		Columns("user_id", "mode", "data").
		Values(p.UserID, p.Mode, string(data)).
		Suffix(`ON CONFLICT (user_id, mode) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = NOW()
		RETURNING updated_at`)
	if err := r.get(ctx, &p.UpdatedAt, q); err != nil {
		return fmt.Errorf("upsert %s profile: %w", p.Mode, err)
	}
	p.Data = data
	return nil
}

func (r *Postgres) GetProfile(ctx context.Context, userID uuid.UUID, mode models.ProfileMode) (*models.StudyProfile, error) {
	var row struct {
		UserID    uuid.UUID          `db:"user_id"`
		Mode      models.ProfileMode `db:"mode"`
		Data      string             `db:"data"`
		UpdatedAt time.Time          `db:"updated_at"`
	}
	q := r.psql.Select("user_id", "mode", "data::text AS data", "updated_at").
		From("study_profiles").
		Where(squirrel.Eq{"user_id": userID, "mode": mode})
	if err := r.get(ctx, &row, q); err != nil {
		return nil, fmt.Errorf("get %s profile: %w", mode, err)
	}
	return &models.StudyProfile{
		UserID:    row.UserID,
		Mode:      row.Mode,
		Data:      json.RawMessage(row.Data),
		UpdatedAt: row.UpdatedAt,
	}, nil
}
