package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"studypal/internal/models"
)

const goalReturning = "RETURNING id, user_id, title, target, unit, progress, due_date, completed, created_at, updated_at"

func (r *Postgres) CreateGoal(ctx context.Context, g *models.Goal) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	q := r.psql.Insert("goals").
		Columns("id", "user_id", "title", "target", "unit", "progress", "due_date", "completed").
		Values(g.ID, g.UserID, g.Title, g.Target, g.Unit, g.Progress, g.DueDate, g.Completed).
		Suffix(goalReturning)
	if err := r.get(ctx, g, q); err != nil {
		return fmt.Errorf("create goal: %w", err)
	}
	return nil
}

func (r *Postgres) ListGoals(ctx context.Context, userID uuid.UUID) ([]models.Goal, error) {
	out := []models.Goal{}
	q := r.psql.Select("id", "user_id", "title", "target", "unit", "progress", "due_date", "completed", "created_at", "updated_at").
		From("goals").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at")
	if err := r.selectAll(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return out, nil
}

// UpdateGoalProgress overwrites progress; concurrent writers resolve last-write-wins.
// A goal with a positive target is completed once progress reaches it.
func (r *Postgres) UpdateGoalProgress(ctx context.Context, userID, goalID uuid.UUID, progress float64) (*models.Goal, error) {
	var g models.Goal
	q := r.psql.Update("goals").
		Set("progress", progress).
		Set("completed", squirrel.Expr("(target > 0 AND ? >= target)", progress)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": goalID, "user_id": userID}).
		Suffix(goalReturning)
	if err := r.get(ctx, &g, q); err != nil {
		return nil, fmt.Errorf("update goal progress (id: %s): %w", goalID, err)
	}
	return &g, nil
}

func (r *Postgres) DeleteGoal(ctx context.Context, userID, goalID uuid.UUID) (*models.Goal, error) {
	var g models.Goal
	q := r.psql.Delete("goals").
		Where(squirrel.Eq{"id": goalID, "user_id": userID}).
		Suffix(goalReturning)
	if err := r.get(ctx, &g, q); err != nil {
		return nil, fmt.Errorf("delete goal (id: %s): %w", goalID, err)
	}
	return &g, nil
}
