package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	runID     string
	startedAt time.Time
	now       func() time.Time
}

// NewHealthHandler creates a HealthHandler for the given run.
func NewHealthHandler(runID string, startedAt time.Time) *HealthHandler {
	return &HealthHandler{runID: runID, startedAt: startedAt, now: time.Now}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"run_id":         h.runID,
		"timestamp":      now.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(now.Sub(h.startedAt).Seconds()),
	})
}
