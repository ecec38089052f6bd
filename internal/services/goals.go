package services

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studypal/internal/models"
	"studypal/internal/repository"
)

type GoalService struct {
	repo   repository.Repository
	logger *zap.Logger
}

func NewGoalService(repo repository.Repository, logger *zap.Logger) *GoalService {
	return &GoalService{repo: repo, logger: logger.Named("goals")}
}

type CreateGoalRequest struct {
	Title    string
	Target   float64
	Unit     string
	Progress float64
	DueDate  string
}

func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func (s *GoalService) Create(ctx context.Context, userID uuid.UUID, req CreateGoalRequest) (*models.Goal, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, invalid("Title is required")
	}
	if !validAmount(req.Target) || !validAmount(req.Progress) {
		return nil, invalid("Target and progress must be non-negative numbers")
	}

	g := &models.Goal{
		UserID:    userID,
		Title:     title,
		Target:    req.Target,
		Unit:      strings.TrimSpace(req.Unit),
		Progress:  req.Progress,
		Completed: req.Target > 0 && req.Progress >= req.Target,
	}
	if req.DueDate != "" {
		due, err := ParseDate(req.DueDate)
		if err != nil {
			return nil, err
		}
		g.DueDate = &due
	}
	if err := s.repo.CreateGoal(ctx, g); err != nil {
		return nil, storeErr("create goal", err)
	}
	return g, nil
}

func (s *GoalService) List(ctx context.Context, userID uuid.UUID) ([]models.Goal, error) {
	goals, err := s.repo.ListGoals(ctx, userID)
	if err != nil {
		return nil, storeErr("list goals", err)
	}
	return goals, nil
}

// UpdateProgress overwrites the stored progress. Concurrent updates: last write wins.
func (s *GoalService) UpdateProgress(ctx context.Context, userID, goalID uuid.UUID, progress float64) (*models.Goal, error) {
	if !validAmount(progress) {
		return nil, invalid("Progress must be a non-negative number")
	}
	g, err := s.repo.UpdateGoalProgress(ctx, userID, goalID, progress)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("update goal progress", err)
	}
	return g, nil
}

func (s *GoalService) Delete(ctx context.Context, userID, goalID uuid.UUID) (*models.Goal, error) {
	g, err := s.repo.DeleteGoal(ctx, userID, goalID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("delete goal", err)
	}
	s.logger.Info("goal deleted", zap.String("goal_id", goalID.String()))
	return g, nil
}
