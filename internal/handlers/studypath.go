package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"studypal/internal/models"
	"studypal/internal/services"
)

type StudyPaths interface {
	Get(ctx context.Context, userID uuid.UUID) (*services.StudyPath, error)
	CreateTopic(ctx context.Context, userID uuid.UUID, title string, subtopics []string) (*models.Topic, error)
	CompleteSubtopic(ctx context.Context, userID, topicID, subtopicID uuid.UUID) (*services.StudyPath, error)
}

type StudyPathHandler struct {
	paths StudyPaths
	rs    Responder
}

func NewStudyPathHandler(paths StudyPaths, rs Responder) *StudyPathHandler {
	return &StudyPathHandler{paths: paths, rs: rs}
}

func (h *StudyPathHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.rs.caller(w, r)
	if !ok {
		return
	}
	path, err := h.paths.Get(r.Context(), userID)
	if err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to fetch study path"})
		return
	}
	h.rs.json(w, http.StatusOK, path)
}

type createTopicRequest struct {
	Title     string   `json:"title"`
	Subtopics []string `json:"subtopics"`
}

func (h *StudyPathHandler) CreateTopic(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.rs.caller(w, r)
	if !ok {
		return
	}
	var req createTopicRequest
	if err := decode(r, &req); err != nil {
		h.rs.badBody(w)
		return
	}
	t, err := h.paths.CreateTopic(r.Context(), userID, req.Title, req.Subtopics)
	if err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to create topic"})
		return
	}
	h.rs.json(w, http.StatusCreated, t)
}

type updatePathRequest struct {
	TopicID    string `json:"topicId"`
	SubtopicID string `json:"subtopicId"`
}

// UpdatePath marks a subtopic complete and answers with the recomputed path.
func (h *StudyPathHandler) UpdatePath(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.rs.caller(w, r)
	if !ok {
		return
	}
	var req updatePathRequest
	if err := decode(r, &req); err != nil {
		h.rs.badBody(w)
		return
	}
	if req.TopicID == "" || req.SubtopicID == "" {
		h.rs.error(w, http.StatusBadRequest, "Topic ID and Subtopic ID are required")
		return
	}
	topicID, err1 := uuid.Parse(req.TopicID)
	subtopicID, err2 := uuid.Parse(req.SubtopicID)
	if err1 != nil || err2 != nil {
		h.rs.error(w, http.StatusBadRequest, "Invalid topic or subtopic ID")
		return
	}

	path, err := h.paths.CompleteSubtopic(r.Context(), userID, topicID, subtopicID)
	if err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to update progress", notFound: "Topic or subtopic not found"})
		return
	}
	h.rs.json(w, http.StatusOK, map[string]any{
		"message":      "Progress updated",
		"topics":       path.Topics,
		"currentTopic": path.CurrentTopic,
	})
}
