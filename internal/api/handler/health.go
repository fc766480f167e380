package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/errorwatch/internal/api/response"
)

// Pinger is anything the health check can reach.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health.
// It reports storage and cache connectivity.
func NewHealthHandler(storage, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"storage": "ok",
			"cache":   "ok",
		}

		if err := storage.Ping(r.Context()); err != nil {
			slog.Warn("health check: storage unreachable", "error", err)
			checks["storage"] = "degraded"
		}
		if err := cache.Ping(r.Context()); err != nil {
			slog.Warn("health check: cache unreachable", "error", err)
			checks["cache"] = "degraded"
		}

		if checks["storage"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
