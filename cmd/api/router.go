package main

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unilist/unilist/internal/api"
	"github.com/unilist/unilist/internal/engine"
	"github.com/unilist/unilist/internal/idempotency"
	"github.com/unilist/unilist/internal/middleware"
)

// routerConfig carries everything the HTTP surface needs. main wires it
// from Postgres and Redis; tests wire it from the in-memory fakes.
type routerConfig struct {
	Service          *engine.Service
	Health           *api.HealthHandlers
	IdempotencyRepo  idempotency.Repository
	RateLimits       middleware.RateLimitStore
	HTTPMetrics      *middleware.Metrics
	Registry         *prometheus.Registry
	Logger           *slog.Logger
	CORSOrigins      []string
	Env              string
	ProfilingEnabled bool
}

// scopedKey namespaces rate-limit counters so the admin budget and the
// general API budget are spent independently even for the same actor.
func scopedKey(scope string, keyFn middleware.KeyFunc) middleware.KeyFunc {
	return func(r *http.Request) string {
		return scope + ":" + keyFn(r)
	}
}

// newRouter assembles the route tree and middleware chain.
//
// Admin endpoints get a tighter rate limit because a reclassify or
// recompute sweeps every active listing. Probes and metrics sit outside
// the rate limiters so scrapes and kubelet checks never get throttled.
func newRouter(rc routerConfig) http.Handler {
	apiMux := http.NewServeMux()
	api.NewListingHandlers(rc.Service).Routes(apiMux)

	adminMux := http.NewServeMux()
	api.NewAdminHandlers(rc.Service).Routes(adminMux)
	apiMux.Handle("GET /markets/{tenant_id}", adminMux)
	apiMux.Handle("POST /admin/", middleware.RateLimiter(
		rc.RateLimits,
		middleware.DefaultAdminLimit(),
		scopedKey("admin", middleware.ActorKeyFunc()),
		rc.HTTPMetrics,
	)(adminMux))

	var apiHandler http.Handler = apiMux
	apiHandler = middleware.IdempotencyMiddleware(rc.IdempotencyRepo, map[string]bool{
		"/listings": true,
	})(apiHandler)
	apiHandler = middleware.RateLimiter(
		rc.RateLimits,
		middleware.DefaultInteractionLimit(),
		scopedKey("api", middleware.ActorKeyFunc()),
		rc.HTTPMetrics,
	)(apiHandler)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", rc.Health.Health)
	mux.HandleFunc("GET /ready", rc.Health.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(rc.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/", apiHandler)

	var handler http.Handler = mux
	handler = middleware.Tracing("unilist-api")(handler)
	handler = middleware.HTTPMetrics(rc.HTTPMetrics)(handler)
	handler = middleware.Logging(rc.Logger)(handler)
	handler = middleware.CORS(rc.CORSOrigins)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Profiling(middleware.ProfilingConfig{
		Enabled:     rc.ProfilingEnabled,
		Environment: rc.Env,
	})(handler)
	return handler
}
