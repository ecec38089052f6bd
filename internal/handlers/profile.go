package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studypal/internal/models"
)

type Profiles interface {
	Get(ctx context.Context, userID uuid.UUID, mode models.ProfileMode) (*models.StudyProfile, error)
	Put(ctx context.Context, userID uuid.UUID, mode models.ProfileMode, data json.RawMessage) (*models.StudyProfile, error)
}

type ProfileHandler struct {
	profiles Profiles
	rs       Responder
}

func NewProfileHandler(profiles Profiles, rs Responder) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, rs: rs}
}

func (h *ProfileHandler) mode(w http.ResponseWriter, r *http.Request) (models.ProfileMode, bool) {
	m, err := models.ParseMode(chi.URLParam(r, "mode"))
	if err != nil {
		h.rs.error(w, http.StatusBadRequest, "Mode must be study or quiz")
		return "", false
	}
	return m, true
}

// Get returns the caller's profile for a chat mode, {} when none was saved.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.rs.caller(w, r)
	if !ok {
		return
	}
	mode, ok := h.mode(w, r)
	if !ok {
		return
	}
	p, err := h.profiles.Get(r.Context(), userID, mode)
	if err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to fetch profile"})
		return
	}
	h.rs.json(w, http.StatusOK, p)
}

// Put replaces the profile document with the request body.
func (h *ProfileHandler) Put(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.rs.caller(w, r)
	if !ok {
		return
	}
	mode, ok := h.mode(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.rs.badBody(w)
		return
	}
	p, err := h.profiles.Put(r.Context(), userID, mode, body)
	if err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to save profile"})
		return
	}
	h.rs.json(w, http.StatusOK, p)
}
