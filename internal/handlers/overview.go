package handlers

import "net/http"

// Overview godoc
// @Summary Class activity overview
// @Description Returns aggregate student activity (teachers only)
// @Tags teacher
// @Produce json
// @Security BearerAuth
// @Param local_date query string false "Reference day, YYYY-MM-DD"
// @Success 200 {object} models.ClassOverview
// @Failure 403 {object} errorBody
// @Failure 500 {object} errorBody
// @Router /teacher/overview [get]
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	out, err := h.dashboards.ClassOverview(r.Context(), r.URL.Query().Get("local_date"))
	if err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to load overview"})
		return
	}
	h.rs.json(w, http.StatusOK, out)
}
