package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studypal/internal/models"
)

type DiaryStore interface {
	Save(ctx context.Context, userID uuid.UUID, date, entry string) (*models.DiaryEntry, bool, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.DiaryEntry, error)
	Update(ctx context.Context, userID uuid.UUID, date, entry string) (*models.DiaryEntry, error)
	Delete(ctx context.Context, userID uuid.UUID, date string) error
}

type DiaryHandler struct {
	diary DiaryStore
	rs    Responder
}

func NewDiaryHandler(diary DiaryStore, rs Responder) *DiaryHandler {
	return &DiaryHandler{diary: diary, rs: rs}
}

const msgEntryNotFound = "Entry not found"

// List returns the caller's entries, newest day first.
func (h *DiaryHandler) List(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.rs.caller(w, r)
	if !ok {
		return
	}
	entries, err := h.diary.List(r.Context(), userID)
	if err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to fetch entries"})
		return
	}
	h.rs.json(w, http.StatusOK, toDiaryEntryDTOs(entries))
}

type saveEntryRequest struct {
	Date  string `json:"date"`
	Entry string `json:"entry"`
}

// Save creates the entry for a day or replaces the text already stored for it.
// A new entry answers 201, a replaced one 200.
func (h *DiaryHandler) Save(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.rs.caller(w, r)
	if !ok {
		return
	}
	var req saveEntryRequest
	if err := decode(r, &req); err != nil {
		h.rs.badBody(w)
		return
	}
	e, created, err := h.diary.Save(r.Context(), userID, req.Date, req.Entry)
	if err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to save entry"})
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.rs.json(w, status, ToDiaryEntryDTO(e))
}

type updateEntryRequest struct {
	Entry string `json:"entry"`
}

func (h *DiaryHandler) Update(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.rs.caller(w, r)
	if !ok {
		return
	}
	var req updateEntryRequest
	if err := decode(r, &req); err != nil {
		h.rs.badBody(w)
		return
	}
	e, err := h.diary.Update(r.Context(), userID, chi.URLParam(r, "date"), req.Entry)
	if err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to update entry", notFound: msgEntryNotFound})
		return
	}
	h.rs.json(w, http.StatusOK, ToDiaryEntryDTO(e))
}

func (h *DiaryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.rs.caller(w, r)
	if !ok {
		return
	}
	if err := h.diary.Delete(r.Context(), userID, chi.URLParam(r, "date")); err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to delete entry", notFound: msgEntryNotFound})
		return
	}
	h.rs.json(w, http.StatusOK, map[string]bool{"success": true})
}
