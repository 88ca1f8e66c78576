package api

import (
	"net/http"
	"time"

	"github.com/RaiderRus/moodTrack/internal/api/respond"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	health ServiceHealth
}

// CheckHealth handles GET /api/health
// Always returns 200; body reports healthy/unhealthy. 500 indicates handler failure only.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	var components map[string]bool
	if h.health != nil {
		if !h.health.IsHealthy() {
			status = "unhealthy"
		}
		components = h.health.Components()
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}
