package handler

import (
	"net/http"
	"time"
)

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "zephyrite",
		Version: h.version,
		Backend: h.backend,
		Uptime:  h.now().Sub(h.started).Truncate(time.Second).String(),
	})
}
