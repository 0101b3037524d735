package handler

import (
	"net/http"
)

// CycleHandler serves recently recorded trade cycles.
type CycleHandler struct {
	history History
}

// NewCycleHandler creates a CycleHandler over history.
func NewCycleHandler(history History) *CycleHandler {
	return &CycleHandler{history: history}
}

// ListRecent returns the newest cycles first.
// GET /api/cycles/recent?limit=N
func (h *CycleHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	cycles := h.history.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"cycles": cycles,
		"count":  len(cycles),
	})
}
