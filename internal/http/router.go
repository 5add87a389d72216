// Package httpapi assembles the chi router: shared middleware, the public
// routes used by attendees, and the operator routes behind a bearer token.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"checkin/internal/platform/metrics"
	dErrors "checkin/pkg/domain-errors"
	"checkin/pkg/platform/httputil"
	"checkin/pkg/platform/middleware/auth"
	"checkin/pkg/platform/middleware/metadata"
	request "checkin/pkg/platform/middleware/request"
	"checkin/pkg/platform/middleware/requesttime"
)

// RouteGroup is implemented by module handlers that expose both public and
// operator-only routes.
type RouteGroup interface {
	RegisterPublic(r chi.Router)
	RegisterOperator(r chi.Router)
}

// PublicRoutes is implemented by handlers whose routes need no token.
type PublicRoutes interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type Config struct {
	Logger         *slog.Logger
	Tokens         auth.TokenValidator
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	HealthChecks   map[string]HealthCheck
}

// NewRouter wires every module. Groups are mounted in order; public routes of
// all groups share the router with the operator routes, which additionally
// require a valid operator token.
func NewRouter(cfg Config, groups []RouteGroup, public ...PublicRoutes) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	r.Get("/health", healthHandler(cfg.HealthChecks, logger))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(timeout))
		r.Use(request.ContentTypeJSON)

		for _, p := range public {
			p.Register(r)
		}
		for _, g := range groups {
			g.RegisterPublic(r)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireOperator(cfg.Tokens, logger))
			for _, g := range groups {
				g.RegisterOperator(r)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
