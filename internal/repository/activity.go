package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"studypal/internal/models"
)

const activityCountsQuery = `
	SELECT
		COUNT(*) FILTER (WHERE entry_date = $2) > 0 AS has_today_entry,
		COUNT(*) FILTER (WHERE entry_date >= date_trunc('week', $2::timestamp)::date AND entry_date <= $2) AS entries_this_week,
		COUNT(*) FILTER (WHERE date_trunc('month', entry_date) = date_trunc('month', $2::date) AND entry_date <= $2) AS entries_this_month,
		COUNT(*) FILTER (WHERE date_trunc('year', entry_date) = date_trunc('year', $2::date) AND entry_date <= $2) AS entries_this_year
	FROM diary_entries
	WHERE user_id = $1`

// Consecutive days share the same (day - row_number) group; the streak is the
// group whose last day is the reference day.
const activityStreakQuery = `
	WITH d AS (
		SELECT entry_date FROM diary_entries WHERE user_id = $1 AND entry_date <= $2
	), g AS (
		SELECT entry_date, entry_date - (ROW_NUMBER() OVER (ORDER BY entry_date))::int AS grp FROM d
	), c AS (
		SELECT COUNT(*) AS cnt, MAX(entry_date) AS maxd FROM g GROUP BY grp
	)
	SELECT COALESCE((SELECT cnt FROM c WHERE maxd = $2), 0)`

const activityTrendQuery = `
	SELECT d::date AS day, (e.id IS NOT NULL) AS written
	FROM generate_series($2::date - INTERVAL '6 days', $2::date, INTERVAL '1 day') AS d
	LEFT JOIN diary_entries e ON e.user_id = $1 AND e.entry_date = d::date
	ORDER BY d`

// DiaryActivity computes counts, the current streak and a seven day trend
// ending at ref (inclusive). ref is a calendar day.
func (r *Postgres) DiaryActivity(ctx context.Context, userID uuid.UUID, ref time.Time) (*models.DiaryActivity, error) {
	var a models.DiaryActivity
	if err := translate(sqlx.GetContext(ctx, r.executor(), &a, activityCountsQuery, userID, ref)); err != nil {
		return nil, fmt.Errorf("diary activity counts: %w", err)
	}
	if err := translate(sqlx.GetContext(ctx, r.executor(), &a.CurrentStreak, activityStreakQuery, userID, ref)); err != nil {
		return nil, fmt.Errorf("diary streak: %w", err)
	}
	a.Trend = []models.DayMark{}
	if err := translate(sqlx.SelectContext(ctx, r.executor(), &a.Trend, activityTrendQuery, userID, ref)); err != nil {
		return nil, fmt.Errorf("diary trend: %w", err)
	}
	return &a, nil
}
