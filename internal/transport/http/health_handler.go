package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/opentrusty/tenantgate/internal/observability/logger"
)

// HealthCheck pings the database
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		slog.WarnContext(r.Context(), "health check failed", logger.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"db":     "unavailable",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"db":     "ok",
	})
}
