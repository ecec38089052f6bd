package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"studypal/internal/models"
	"studypal/internal/services"
)

type Dashboards interface {
	Summary(ctx context.Context, userID uuid.UUID, localDate string) (*services.Dashboard, error)
	ClassOverview(ctx context.Context, localDate string) (*models.ClassOverview, error)
}

type DashboardHandler struct {
	dashboards Dashboards
	rs         Responder
}

func NewDashboardHandler(dashboards Dashboards, rs Responder) *DashboardHandler {
	return &DashboardHandler{dashboards: dashboards, rs: rs}
}

// Get aggregates diary, goal and study path metrics for the dashboard.
// Accepts optional query param: local_date=YYYY-MM-DD to use as the user's "today".
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.rs.caller(w, r)
	if !ok {
		return
	}
	d, err := h.dashboards.Summary(r.Context(), userID, r.URL.Query().Get("local_date"))
	if err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to load dashboard"})
		return
	}
	h.rs.json(w, http.StatusOK, d)
}
