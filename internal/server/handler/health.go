package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger checks liveness of a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	mode     string
	cache    Pinger
	database Pinger
	logger   *slog.Logger
}

// NewHealthHandler creates a HealthHandler. cache and database may be nil when
// the corresponding backend is not configured.
func NewHealthHandler(mode string, cache, database Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:     mode,
		cache:    cache,
		database: database,
		logger:   logger,
	}
}

// HealthCheck responds with the server status plus the state of each
// configured backend.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]any{
		"status":    "ok",
		"mode":      h.mode,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			body["cache"] = "down"
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			body["cache"] = "ok"
		}
	}
	if h.database != nil {
		if err := h.database.Ping(ctx); err != nil {
			body["database"] = "down"
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			body["database"] = "ok"
		}
	}

	writeJSON(w, status, body)
}
