package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studypal/internal/crypto"
	"studypal/internal/models"
	"studypal/internal/repository"
)

const dateLayout = "2006-01-02"

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the UTC calendar day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, invalid("Invalid date format; expected YYYY-MM-DD")
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// DiaryService stores entry text sealed at rest and hands plaintext to callers.
type DiaryService struct {
	repo   repository.Repository
	sealer *crypto.Sealer
	logger *zap.Logger
}

func NewDiaryService(repo repository.Repository, sealer *crypto.Sealer, logger *zap.Logger) *DiaryService {
	return &DiaryService{repo: repo, sealer: sealer, logger: logger.Named("diary")}
}

func (s *DiaryService) seal(e *models.DiaryEntry) error {
	sealed, err := s.sealer.Seal(e.Entry)
	if err != nil {
		return err
	}
	e.Entry = sealed
	return nil
}

func (s *DiaryService) open(e *models.DiaryEntry) error {
	plain, err := s.sealer.Open(e.Entry)
	if err != nil {
		return err
	}
	e.Entry = plain
	return nil
}

// Save writes the entry for the given day, replacing any earlier text for it.
// created reports whether a new row was inserted.
func (s *DiaryService) Save(ctx context.Context, userID uuid.UUID, date, entry string) (*models.DiaryEntry, bool, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, false, err
	}
	if strings.TrimSpace(entry) == "" {
		return nil, false, invalid("Entry is required")
	}

	e := &models.DiaryEntry{UserID: userID, Date: day, Entry: entry}
	if err := s.seal(e); err != nil {
		return nil, false, err
	}
	created, err := s.repo.UpsertDiaryEntry(ctx, e)
	if err != nil {
		return nil, false, storeErr("save diary entry", err)
	}
	e.Entry = entry
	return e, created, nil
}

// List returns entries newest first. Entries that fail to decrypt are skipped and logged.
func (s *DiaryService) List(ctx context.Context, userID uuid.UUID) ([]models.DiaryEntry, error) {
	entries, err := s.repo.ListDiaryEntries(ctx, userID)
	if err != nil {
		return nil, storeErr("list diary entries", err)
	}
	out := make([]models.DiaryEntry, 0, len(entries))
	for _, e := range entries {
		if err := s.open(&e); err != nil {
			s.logger.Warn("skipping undecryptable diary entry", zap.String("entry_id", e.ID.String()), zap.Error(err))
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *DiaryService) Update(ctx context.Context, userID uuid.UUID, date, entry string) (*models.DiaryEntry, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(entry) == "" {
		return nil, invalid("Entry is required")
	}
	sealed, err := s.sealer.Seal(entry)
	if err != nil {
		return nil, err
	}
	e, err := s.repo.UpdateDiaryEntry(ctx, userID, day, sealed)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("update diary entry", err)
	}
	e.Entry = entry
	return e, nil
}

func (s *DiaryService) Delete(ctx context.Context, userID uuid.UUID, date string) error {
	day, err := ParseDate(date)
	if err != nil {
		return err
	}
	err = s.repo.DeleteDiaryEntry(ctx, userID, day)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return storeErr("delete diary entry", err)
	}
	return nil
}
