// Package httpapi exposes the use cases over HTTP.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"energy-agent/internal/auth"
	"energy-agent/internal/metrics"
	"energy-agent/internal/middleware"
)

const (
	defaultMaxBodyBytes = 64 << 10
	readinessTimeout    = 5 * time.Second
)

// Deps holds everything the router needs. Metrics and HealthChecks are
// optional.
type Deps struct {
	Chat     ChatUseCase
	Profiles ProfileUseCase
	Catalog  CatalogUseCase
	Verifier auth.Verifier

	Metrics      metrics.Recorder
	HealthChecks map[string]HealthChecker
	CORS         middleware.CORSConfig
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// NewRouter builds the chi router with the full middleware chain.
func NewRouter(d Deps) (http.Handler, error) {
	if d.Chat == nil {
		return nil, errors.New("httpapi: chat use case must not be nil")
	}
	if d.Profiles == nil {
		return nil, errors.New("httpapi: profile use case must not be nil")
	}
	if d.Catalog == nil {
		return nil, errors.New("httpapi: catalog use case must not be nil")
	}
	if d.Verifier == nil {
		return nil, errors.New("httpapi: verifier must not be nil")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := d.Metrics
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	maxBody := d.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	chat := &chatHandler{uc: d.Chat, logger: logger}
	users := &userHandler{uc: d.Profiles, logger: logger}
	catalog := &catalogHandler{uc: d.Catalog, logger: logger}
	health := &healthHandler{checks: d.HealthChecks, timeout: readinessTimeout, logger: logger}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Logger(logger, recorder),
		middleware.Recoverer(logger),
		middleware.CORS(d.CORS),
		middleware.MaxBodySize(maxBody),
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Not found", middleware.GetRequestID(r.Context()))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", middleware.GetRequestID(r.Context()))
	})

	r.Get("/healthz", health.healthz)
	r.Get("/readyz", health.readyz)
	if exp, ok := recorder.(metrics.Exposer); ok {
		r.Method(http.MethodGet, "/metrics", exp.Handler())
	}

	r.Post("/chat", chat.chat)
	r.Get("/rebates", catalog.rebates)
	r.Get("/contractors", catalog.contractors)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(d.Verifier, logger))
		r.Get("/auth/me", me)
		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/", users.getProfile)
			r.Put("/", users.putProfile)
			r.Post("/audits", users.submitAudit)
			r.Get("/audits/latest", users.latestAudit)
			r.Get("/chats", users.recentChats)
		})
	})

	return r, nil
}
