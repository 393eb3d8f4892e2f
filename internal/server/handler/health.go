package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler answers liveness checks.
type HealthHandler struct {
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logger}
}

// HealthCheck reports that the market service is up.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "stakehouse",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
