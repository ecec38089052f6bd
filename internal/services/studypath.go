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

// Progress is round(100 * completed / total). A topic without subtopics is at 0.
func Progress(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

type StudyPath struct {
	Topics []models.Topic `json:"topics"`
	// CurrentTopic is the first topic in path order that is not finished yet.
	CurrentTopic *models.Topic `json:"currentTopic"`
}

func newStudyPath(topics []models.Topic) *StudyPath {
	sp := &StudyPath{Topics: topics}
	for i := range topics {
		if topics[i].Progress < 100 {
			sp.CurrentTopic = &topics[i]
			break
		}
	}
	return sp
}

type StudyPathService struct {
	repo   repository.Repository
	logger *zap.Logger
}

func NewStudyPathService(repo repository.Repository, logger *zap.Logger) *StudyPathService {
	return &StudyPathService{repo: repo, logger: logger.Named("studypath")}
}

func (s *StudyPathService) Get(ctx context.Context, userID uuid.UUID) (*StudyPath, error) {
	topics, err := s.repo.ListTopics(ctx, userID)
	if err != nil {
		return nil, storeErr("list topics", err)
	}
	return newStudyPath(topics), nil
}

// CreateTopic appends a topic with its subtopics to the end of the user's path.
func (s *StudyPathService) CreateTopic(ctx context.Context, userID uuid.UUID, title string, subtopics []string) (*models.Topic, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, invalid("Title is required")
	}

	t := &models.Topic{UserID: userID, Title: title, Subtopics: []models.Subtopic{}}
	for _, st := range subtopics {
		if st = strings.TrimSpace(st); st != "" {
			t.Subtopics = append(t.Subtopics, models.Subtopic{Title: st, Position: len(t.Subtopics)})
		}
	}

	err := s.repo.RunInTx(ctx, func(tx repository.Repository) error {
		existing, err := tx.ListTopics(ctx, userID)
		if err != nil {
			return storeErr("list topics", err)
		}
		t.Position = len(existing)
		if err := tx.CreateTopic(ctx, t); err != nil {
			return storeErr("create topic", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CompleteSubtopic marks the subtopic done and recomputes the topic's progress
// in the same transaction, then returns the refreshed path.
func (s *StudyPathService) CompleteSubtopic(ctx context.Context, userID, topicID, subtopicID uuid.UUID) (*StudyPath, error) {
	err := s.repo.RunInTx(ctx, func(tx repository.Repository) error {
		if _, err := tx.GetTopic(ctx, userID, topicID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return storeErr("get topic", err)
		}
		if err := tx.CompleteSubtopic(ctx, topicID, subtopicID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return storeErr("complete subtopic", err)
		}
		done, total, err := tx.CountSubtopics(ctx, topicID)
		if err != nil {
			return storeErr("count subtopics", err)
		}
		if err := tx.SetTopicProgress(ctx, topicID, Progress(done, total)); err != nil {
			return storeErr("set topic progress", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}
