// Package httptransport is the HTTP surface of a peer: the /graphql/
// endpoint peers call, the origin's write path, health and metrics.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"infosync/internal/platform/middleware"
	"infosync/pkg/domain"
	"infosync/pkg/platform/httputil"
)

// HealthChecker is a backing dependency that /health pings.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps are the handlers a peer serves. Nil services are simply not routed.
type Deps struct {
	System      domain.System
	Information InformationService
	Upsert      UpsertService
	Feedback    FeedbackService
	Tokens      middleware.TokenValidator
	Gatherer    prometheus.Gatherer
	Checks      map[string]HealthChecker
	Logger      *slog.Logger
}

const healthCheckTimeout = 2 * time.Second

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestContext)
	r.Use(middleware.Recover(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))

	r.Get("/health", healthHandler(deps))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	if deps.Upsert != nil || deps.Feedback != nil {
		gql := NewGraphQLHandler(deps.Upsert, deps.Feedback, deps.Logger)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireServiceToken(deps.Tokens, deps.Logger))
			r.Method(http.MethodPost, "/graphql/", gql)
			r.Method(http.MethodPost, "/graphql", gql)
		})
	}

	if deps.Information != nil {
		NewInformationHandler(deps.Information, deps.Logger).Register(r)
	}
	return r
}

func healthHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		body := map[string]string{
			"status":  "ok",
			"service": string(deps.System),
		}
		status := http.StatusOK
		for name, check := range deps.Checks {
			if err := check.Health(ctx); err != nil {
				deps.Logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				body[name] = "down"
				body["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			body[name] = "ok"
		}
		httputil.WriteJSON(w, status, body)
	}
}
