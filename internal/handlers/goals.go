package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"studypal/internal/models"
	"studypal/internal/services"
)

type GoalStore interface {
	Create(ctx context.Context, userID uuid.UUID, req services.CreateGoalRequest) (*models.Goal, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.Goal, error)
	UpdateProgress(ctx context.Context, userID, goalID uuid.UUID, progress float64) (*models.Goal, error)
	Delete(ctx context.Context, userID, goalID uuid.UUID) (*models.Goal, error)
}

type GoalHandler struct {
	goals GoalStore
	rs    Responder
}

func NewGoalHandler(goals GoalStore, rs Responder) *GoalHandler {
	return &GoalHandler{goals: goals, rs: rs}
}

const msgGoalNotFound = "Goal not found"

func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.rs.caller(w, r)
	if !ok {
		return
	}
	goals, err := h.goals.List(r.Context(), userID)
	if err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to fetch goals"})
		return
	}
	h.rs.json(w, http.StatusOK, goals)
}

type addGoalRequest struct {
	Title    string  `json:"title"`
	Target   float64 `json:"target"`
	Unit     string  `json:"unit"`
	Progress float64 `json:"progress"`
	DueDate  string  `json:"dueDate"`
}

func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.rs.caller(w, r)
	if !ok {
		return
	}
	var req addGoalRequest
	if err := decode(r, &req); err != nil {
		h.rs.badBody(w)
		return
	}
	g, err := h.goals.Create(r.Context(), userID, services.CreateGoalRequest{
		Title:    req.Title,
		Target:   req.Target,
		Unit:     req.Unit,
		Progress: req.Progress,
		DueDate:  req.DueDate,
	})
	if err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to add goal"})
		return
	}
	h.rs.json(w, http.StatusOK, g)
}

// goalID parses the id field shared by the update and delete bodies.
func (h *GoalHandler) goalID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		h.rs.error(w, http.StatusBadRequest, "Goal ID is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.rs.error(w, http.StatusBadRequest, "Invalid goal ID")
		return uuid.Nil, false
	}
	return id, true
}

type updateProgressRequest struct {
	ID       string   `json:"id"`
	Progress *float64 `json:"progress"`
}

func (h *GoalHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.rs.caller(w, r)
	if !ok {
		return
	}
	var req updateProgressRequest
	if err := decode(r, &req); err != nil {
		h.rs.badBody(w)
		return
	}
	goalID, ok := h.goalID(w, req.ID)
	if !ok {
		return
	}
	if req.Progress == nil {
		h.rs.error(w, http.StatusBadRequest, "Progress is required")
		return
	}
	g, err := h.goals.UpdateProgress(r.Context(), userID, goalID, *req.Progress)
	if err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to update goal", notFound: msgGoalNotFound})
		return
	}
	h.rs.json(w, http.StatusOK, g)
}

type deleteGoalRequest struct {
	ID string `json:"id"`
}

func (h *GoalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.rs.caller(w, r)
	if !ok {
		return
	}
	var req deleteGoalRequest
	if err := decode(r, &req); err != nil {
		h.rs.badBody(w)
		return
	}
	goalID, ok := h.goalID(w, req.ID)
	if !ok {
		return
	}
	g, err := h.goals.Delete(r.Context(), userID, goalID)
	if err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to delete goal", notFound: msgGoalNotFound})
		return
	}
	h.rs.json(w, http.StatusOK, g)
}
