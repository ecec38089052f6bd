package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"studypal/internal/models"
	"studypal/internal/repository"
)

type ProfileService struct {
	repo repository.Repository
}

func NewProfileService(repo repository.Repository) *ProfileService {
	return &ProfileService{repo: repo}
}

// Get returns the stored profile or an empty one when none was saved yet.
func (s *ProfileService) Get(ctx context.Context, userID uuid.UUID, mode models.ProfileMode) (*models.StudyProfile, error) {
	p, err := s.repo.GetProfile(ctx, userID, mode)
	if errors.Is(err, repository.ErrNotFound) {
		return &models.StudyProfile{UserID: userID, Mode: mode, Data: json.RawMessage("{}")}, nil
	}
	if err != nil {
		return nil, storeErr("get profile", err)
	}
	return p, nil
}

// Put replaces the profile document. It must be a JSON object.
func (s *ProfileService) Put(ctx context.Context, userID uuid.UUID, mode models.ProfileMode, data json.RawMessage) (*models.StudyProfile, error) {
	trimmedData := bytes.TrimSpace(data)
	var obj map[string]any
	if len(trimmedData) == 0 || trimmedData[0] != '{' || json.Unmarshal(trimmedData, &obj) != nil {
		return nil, invalid("Profile must be a JSON object")
	}
	p := &models.StudyProfile{UserID: userID, Mode: mode, Data: json.RawMessage(trimmedData)}
	if err := s.repo.UpsertProfile(ctx, p); err != nil {
		return nil, storeErr("save profile", err)
	}
	return p, nil
}
