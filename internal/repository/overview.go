package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"studypal/internal/models"
)

const classOverviewQuery = `
	SELECT
		(SELECT COUNT(*) FROM users WHERE role = 'STUDENT') AS total_students,
		(SELECT COUNT(DISTINCT d.user_id) FROM diary_entries d JOIN users u ON u.id = d.user_id
			WHERE u.role = 'STUDENT' AND d.entry_date >= date_trunc('week', $1::timestamp)::date AND d.entry_date <= $1) AS active_students_this_week,
		(SELECT COUNT(*) FROM diary_entries
			WHERE entry_date >= date_trunc('week', $1::timestamp)::date AND entry_date <= $1) AS entries_this_week,
		(SELECT COUNT(*) FROM diary_entries
			WHERE date_trunc('month', entry_date) = date_trunc('month', $1::date) AND entry_date <= $1) AS entries_this_month,
		(SELECT COUNT(*) FROM goals WHERE completed) AS goals_completed`

func (r *Postgres) ClassOverview(ctx context.Context, ref time.Time) (*models.ClassOverview, error) {
	var out models.ClassOverview
	if err := translate(sqlx.GetContext(ctx, r.executor(), &out, classOverviewQuery, ref)); err != nil {
		return nil, fmt.Errorf("class overview: %w", err)
	}
	return &out, nil
}
