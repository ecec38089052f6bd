package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"studypal/internal/models"
	"studypal/internal/repository"
)

type DayMark struct {
	Date    string `json:"date"`
	Written bool   `json:"written"`
}

type GoalSummary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// Dashboard is the student's overview as of ReferenceDate.
type Dashboard struct {
	ReferenceDate     string      `json:"referenceDate"`
	HasTodayEntry     bool        `json:"hasTodayEntry"`
	EntriesThisWeek   int         `json:"entriesThisWeek"`
	EntriesThisMonth  int         `json:"entriesThisMonth"`
	EntriesThisYear   int         `json:"entriesThisYear"`
	CurrentStreakDays int         `json:"currentStreakDays"`
	Last7Days         []DayMark   `json:"last7Days"`
	Goals             GoalSummary `json:"goals"`
	// StudyProgress counts every subtopic of the path equally.
	StudyProgress int           `json:"studyProgress"`
	CurrentTopic  *models.Topic `json:"currentTopic"`
}

type DashboardService struct {
	repo   repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewDashboardService(repo repository.Repository, logger *zap.Logger) *DashboardService {
	return &DashboardService{repo: repo, logger: logger.Named("dashboard"), now: time.Now}
}

// Summary builds the dashboard. localDate (YYYY-MM-DD) is the caller's today;
// when empty the current UTC day is used.
func (s *DashboardService) Summary(ctx context.Context, userID uuid.UUID, localDate string) (*Dashboard, error) {
	ref, err := s.referenceDay(localDate)
	if err != nil {
		return nil, err
	}

	var (
		activity *models.DiaryActivity
		goals    []models.Goal
		topics   []models.Topic
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.repo.DiaryActivity(gctx, userID, ref)
		if err != nil {
			return storeErr("diary activity", err)
		}
		activity = a
		return nil
	})
	g.Go(func() error {
		gs, err := s.repo.ListGoals(gctx, userID)
		if err != nil {
			return storeErr("list goals", err)
		}
		goals = gs
		return nil
	})
	g.Go(func() error {
		ts, err := s.repo.ListTopics(gctx, userID)
		if err != nil {
			return storeErr("list topics", err)
		}
		topics = ts
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d := &Dashboard{
		ReferenceDate:     ref.Format(dateLayout),
		HasTodayEntry:     activity.HasTodayEntry,
		EntriesThisWeek:   activity.EntriesThisWeek,
		EntriesThisMonth:  activity.EntriesThisMonth,
		EntriesThisYear:   activity.EntriesThisYear,
		CurrentStreakDays: activity.CurrentStreak,
		Last7Days:         make([]DayMark, 0, len(activity.Trend)),
	}
	for _, m := range activity.Trend {
		d.Last7Days = append(d.Last7Days, DayMark{Date: m.Date.Format(dateLayout), Written: m.Written})
	}
	for _, goal := range goals {
		d.Goals.Total++
		if goal.Completed {
			d.Goals.Completed++
		}
	}
	var done, total int
	for _, t := range topics {
		for _, st := range t.Subtopics {
			total++
			if st.Completed {
				done++
			}
		}
	}
	d.StudyProgress = Progress(done, total)
	d.CurrentTopic = newStudyPath(topics).CurrentTopic
	return d, nil
}

func (s *DashboardService) referenceDay(localDate string) (time.Time, error) {
	if localDate == "" {
		now := s.now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	ref, err := time.Parse(dateLayout, localDate)
	if err != nil {
		return time.Time{}, invalid("Invalid local_date format; expected YYYY-MM-DD")
	}
	return ref, nil
}

// ClassOverview reports activity across all students as of localDate.
func (s *DashboardService) ClassOverview(ctx context.Context, localDate string) (*models.ClassOverview, error) {
	ref, err := s.referenceDay(localDate)
	if err != nil {
		return nil, err
	}
	out, err := s.repo.ClassOverview(ctx, ref)
	if err != nil {
		return nil, storeErr("class overview", err)
	}
	return out, nil
}
