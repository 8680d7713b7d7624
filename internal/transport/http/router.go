package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	ratelimit "transitpass/internal/ratelimit/middleware"
	"transitpass/internal/ratelimit/models"
	"transitpass/pkg/platform/httputil"
	"transitpass/pkg/platform/middleware/admin"
	authmw "transitpass/pkg/platform/middleware/auth"
	"transitpass/pkg/platform/middleware/metadata"
	"transitpass/pkg/platform/middleware/request"
	"transitpass/pkg/platform/middleware/requesttime"
)

const requestTimeout = 60 * time.Second

// Module is a feature handler. Public routes need no token, Protected routes
// need an authenticated caller, Admin routes need the ADMIN role.
type Module interface {
	Public(r chi.Router)
	Protected(r chi.Router)
	Admin(r chi.Router)
}

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// Config wires the router.
type Config struct {
	Logger      *slog.Logger
	Validator   authmw.JWTValidator
	Revocations authmw.TokenRevocationChecker
	Observer    request.Observer
	Metrics     http.Handler
	Health      map[string]HealthCheck
	// RateLimit is optional; nil disables per-IP limits.
	RateLimit *ratelimit.Middleware
	Modules   []Module
}

// NewRouter mounts every module under /api plus /healthz and /metrics.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.AccessLog(cfg.Logger, cfg.Observer))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", healthHandler(cfg.Health))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(chimw.Timeout(requestTimeout))
		api.Group(func(public chi.Router) {
			if cfg.RateLimit != nil {
				public.Use(cfg.RateLimit.RateLimit(models.ClassPublic))
			}
			for _, m := range cfg.Modules {
				m.Public(public)
			}
		})
		api.Group(func(protected chi.Router) {
			protected.Use(authmw.RequireAuth(cfg.Validator, cfg.Revocations, cfg.Logger))
			if cfg.RateLimit != nil {
				protected.Use(cfg.RateLimit.RateLimit(models.ClassAuthenticated))
			}
			for _, m := range cfg.Modules {
				m.Protected(protected)
			}
			protected.Group(func(adminRoutes chi.Router) {
				adminRoutes.Use(admin.RequireAdmin(cfg.Logger))
				for _, m := range cfg.Modules {
					m.Admin(adminRoutes)
				}
			})
		})
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		out := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				out[name] = "down"
				continue
			}
			out[name] = "up"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": out})
	}
}
