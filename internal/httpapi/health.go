package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// HealthChecker is implemented by dependencies that can report readiness.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type healthHandler struct {
	checks  map[string]HealthChecker
	timeout time.Duration
	logger  *slog.Logger
}

// GET /healthz
func (h *healthHandler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// GET /readyz
//
// Pings every registered dependency and answers 503 if any fails.
func (h *healthHandler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "httpapi: readiness check failed",
				slog.String("check", name),
				slog.String("error", err.Error()),
			)
			results[name] = "error"
			healthy = false
			continue
		}
		results[name] = "ok"
	}

	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Checks: results})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Checks: results})
}
