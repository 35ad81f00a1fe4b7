// Package api provides the HTTP API for the protocol compilation and
// run orchestration service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/NK-639/ALHS-Backend/internal/api/handlers"
	"github.com/NK-639/ALHS-Backend/internal/api/types"
	"github.com/NK-639/ALHS-Backend/internal/health"
	"github.com/NK-639/ALHS-Backend/internal/parser"
	"github.com/NK-639/ALHS-Backend/pkg/logging"
	"github.com/NK-639/ALHS-Backend/pkg/metrics"
)

// RouterConfig holds optional surfaces for the router.
type RouterConfig struct {
	// Health serves liveness and readiness probes when set.
	Health *health.Handler

	// Metrics exposes the Prometheus endpoint and request
	// instrumentation when set.
	Metrics *metrics.Registry

	// Version is reported by GET /version alongside the grammar version.
	Version string
}

// NewRouter creates a new Chi router with all routes and middleware configured.
func NewRouter(h *handlers.Handler) chi.Router {
	return NewRouterWithConfig(h, RouterConfig{})
}

// NewRouterWithConfig creates a new Chi router with optional surfaces.
func NewRouterWithConfig(h *handlers.Handler, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	// Middleware. Request logging goes through the tracing middleware
	// so every request gets a request_id/trace_id that downstream log
	// records pick up from the context.
	r.Use(middleware.RealIP)
	r.Use(logging.NewHTTPMiddleware(slog.Default()).Handler)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if cfg.Metrics != nil {
		r.Use(metrics.HTTPMiddleware(cfg.Metrics))
	}

	// Probes and metrics stay outside the JSON content-type middleware;
	// the Prometheus handler sets its own.
	if cfg.Health != nil {
		r.Get("/health", cfg.Health.HealthHandler)
		r.Get("/health/live", cfg.Health.LivenessHandler)
		r.Get("/health/ready", cfg.Health.ReadinessHandler)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(jsonContentType)

		r.Get("/version", versionHandler(cfg.Version))

		r.Post("/compile", h.Compile)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", h.ListDevices)
			r.Get("/{name}", h.GetDevice)
		})

		r.Route("/runs", func(r chi.Router) {
			r.Post("/", h.StartRun)
			r.Get("/", h.ListRuns)

			r.Route("/active", func(r chi.Router) {
				r.Get("/", h.GetActiveRun)
				r.Post("/pause", h.PauseRun)
				r.Post("/resume", h.ResumeRun)
				r.Post("/abort", h.AbortRun)
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRun)
				r.Get("/journal", h.GetRunJournal)
			})
		})
	})

	return r
}

// versionHandler reports the service and grammar versions so clients
// can detect grammar changes without recompiling a probe protocol.
func versionHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.VersionResponse{
			Version:        version,
			GrammarVersion: parser.GrammarVersion,
			Time:           time.Now().UTC(),
		})
	}
}

// jsonContentType is middleware that sets the Content-Type header to application/json.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
