package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"studypal/internal/models"
	"studypal/internal/services"
)

type Chat interface {
	Reply(ctx context.Context, req services.ChatRequest) (*models.ChatMessage, error)
	Stream(ctx context.Context, msgs []models.ChatMessage, onDelta func(string) error) error
}

type ChatHandler struct {
	chat Chat
	rs   Responder
}

func NewChatHandler(chat Chat, rs Responder) *ChatHandler {
	return &ChatHandler{chat: chat, rs: rs}
}

var chatFailure = failure{internal: msgProcessingFailed}

type chatRequest struct {
	Messages        []models.ChatMessage `json:"messages"`
	UserPreferences json.RawMessage      `json:"userPreferences"`
	// UserID is accepted for older clients and ignored; the session decides whose data is used.
	UserID string `json:"userId"`
}

// Reply godoc
// @Summary Personalized chat answer for the study or quiz mode
// @Tags chat
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.ChatMessage
// @Failure 400 {object} errorBody
// @Failure 500 {object} errorBody
// @Router /chat/{mode} [post]
func (h *ChatHandler) Reply(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.rs.caller(w, r)
	if !ok {
		return
	}
	mode, err := models.ParseMode(chi.URLParam(r, "mode"))
	if err != nil {
		h.rs.error(w, http.StatusBadRequest, "Mode must be study or quiz")
		return
	}
	var req chatRequest
	if err := decode(r, &req); err != nil {
		h.rs.badBody(w)
		return
	}
	msg, err := h.chat.Reply(r.Context(), services.ChatRequest{
		UserID:      userID,
		Mode:        mode,
		Messages:    req.Messages,
		Preferences: req.UserPreferences,
	})
	if err != nil {
		h.rs.fail(w, r, err, chatFailure)
		return
	}
	h.rs.json(w, http.StatusOK, msg)
}

// Stream relays the answer as plain text chunks. Once the first chunk is out
// the status is fixed, so later failures only end the body early.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.rs.caller(w, r); !ok {
		return
	}
	var req chatRequest
	if err := decode(r, &req); err != nil {
		h.rs.badBody(w)
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false
	err := h.chat.Stream(r.Context(), req.Messages, func(delta string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(delta)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	switch {
	case err == nil && !started:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	case err != nil && !started:
		h.rs.fail(w, r, err, chatFailure)
	case err != nil:
		h.rs.logger.Warn("chat stream ended early", zap.Error(err))
	}
}
