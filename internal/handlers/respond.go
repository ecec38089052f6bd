package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"studypal/internal/auth"
	mw "studypal/internal/middleware"
	"studypal/internal/services"
)

const maxBodyBytes = 1 << 20

const msgProcessingFailed = "An error occurred while processing your request."

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// failure names what a route reports for errors the services do not describe
// themselves: storage failures and anything unrecognised (internal), and
// missing records (notFound).
type failure struct {
	internal string
	notFound string
}

// Responder writes JSON bodies and maps service errors onto statuses.
// With details on, the upstream cause of a 5xx is attached to the body.
type Responder struct {
	logger  *zap.Logger
	details bool
}

func NewResponder(logger *zap.Logger, exposeDetails bool) Responder {
	return Responder{logger: logger.Named("handlers"), details: exposeDetails}
}

func writeBody(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func (rs Responder) json(w http.ResponseWriter, status int, v any) {
	if err := writeBody(w, status, v); err != nil {
		rs.logger.Warn("write response", zap.Error(err))
	}
}

func (rs Responder) error(w http.ResponseWriter, status int, msg string) {
	rs.json(w, status, errorBody{Error: msg})
}

func (rs Responder) upstream(w http.ResponseWriter, r *http.Request, msg string, err error) {
	rs.logger.Error(msg,
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	body := errorBody{Error: msg}
	if rs.details {
		body.Details = err.Error()
	}
	rs.json(w, http.StatusInternalServerError, body)
}

func (rs Responder) fail(w http.ResponseWriter, r *http.Request, err error, f failure) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		rs.error(w, http.StatusBadRequest, ve.Message)
	case errors.Is(err, services.ErrUserExists):
		rs.error(w, http.StatusBadRequest, "User already exists")
	case errors.Is(err, services.ErrOTPNotFound):
		rs.error(w, http.StatusBadRequest, "OTP not found")
	case errors.Is(err, services.ErrOTPInvalid):
		rs.error(w, http.StatusBadRequest, "Invalid or expired OTP")
	case errors.Is(err, services.ErrInvalidCredentials):
		rs.error(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, services.ErrRateLimited):
		rs.error(w, http.StatusTooManyRequests, "Too many OTP requests")
	case errors.Is(err, services.ErrNotFound):
		msg := f.notFound
		if msg == "" {
			msg = "Not found"
		}
		rs.error(w, http.StatusNotFound, msg)
	case errors.Is(err, services.ErrMailDelivery):
		rs.upstream(w, r, "Email sending failed", err)
	case errors.Is(err, services.ErrModel):
		rs.upstream(w, r, msgProcessingFailed, err)
	default:
		msg := f.internal
		if msg == "" {
			msg = "Internal server error"
		}
		rs.upstream(w, r, msg, err)
	}
}

// decode reads a JSON body of bounded size. Unknown fields are ignored.
func decode(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return err
	}
	return nil
}

func (rs Responder) badBody(w http.ResponseWriter) {
	rs.error(w, http.StatusBadRequest, "Invalid request body")
}

// caller returns the authenticated user. Routes using it sit behind RequireAuth.
func (rs Responder) caller(w http.ResponseWriter, r *http.Request) (*auth.Claims, uuid.UUID, bool) {
	c, ok := mw.ClaimsFrom(r.Context())
	if !ok {
		rs.error(w, http.StatusUnauthorized, "Unauthorized")
		return nil, uuid.Nil, false
	}
	id, err := c.UserID()
	if err != nil {
		rs.error(w, http.StatusUnauthorized, "Unauthorized")
		return nil, uuid.Nil, false
	}
	return c, id, true
}
