// Package httptransport assembles the HTTP surface: middleware chain, public
// endpoints and the authenticated API routes. Handlers live next to their
// services; this package only mounts them.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"prismid/internal/platform/metrics"
	"prismid/internal/platform/middleware"
	"prismid/pkg/access"
	"prismid/pkg/platform/httputil"
)

// Registrar is anything that can mount routes on a chi router.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports the readiness of one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Dependencies carries everything the router mounts.
type Dependencies struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Auth    middleware.Authenticator

	// Public routes: login only.
	AuthHandler Registrar

	// Authenticated API routes.
	Personnel Registrar
	Roles     Registrar
	Taxonomy  Registrar

	// Audit listing, additionally gated at ADMIN.
	Audit Registrar

	HealthChecks []HealthCheck
}

// NewRouter builds the full HTTP handler.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	if deps.Metrics != nil {
		r.Use(middleware.Latency(deps.Metrics))
	}

	r.Get("/healthz", healthHandler(deps.HealthChecks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	deps.AuthHandler.Register(r)

	r.Group(func(api chi.Router) {
		api.Use(middleware.ContentTypeJSON)
		api.Use(middleware.RequireAuth(deps.Auth, deps.Logger))

		deps.Personnel.Register(api)
		deps.Roles.Register(api)
		deps.Taxonomy.Register(api)

		api.Group(func(ar chi.Router) {
			ar.Use(middleware.RequireTier(access.TierAdmin))
			deps.Audit.Register(ar)
		})
	})

	return r
}

func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		result := make(map[string]string, len(checks)+1)
		result["status"] = "ok"
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				result[c.Name] = err.Error()
				result["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			result[c.Name] = "ok"
		}
		httputil.WriteJSON(w, status, result)
	}
}
