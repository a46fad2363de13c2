package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/unilist/unilist/internal/middleware"
)

// HealthChecker is implemented by dependencies that can report liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandlers serves the kubelet probes. Checkers are optional: the
// in-memory wiring used by tests and local development passes nil and
// the corresponding check reports ok.
type HealthHandlers struct {
	dbChecker      HealthChecker
	redisChecker   HealthChecker
	metricsEnabled bool
}

// HealthHandlersConfig configures the probe handlers.
type HealthHandlersConfig struct {
	DBChecker      HealthChecker
	RedisChecker   HealthChecker
	MetricsEnabled bool
}

// NewHealthHandlers creates probe handlers for the given dependencies.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{
		dbChecker:      config.DBChecker,
		redisChecker:   config.RedisChecker,
		metricsEnabled: config.MetricsEnabled,
	}
}

// HealthResponse is the JSON body both probes return.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

func writeProbeResponse(w http.ResponseWriter, statusCode int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode probe response", "error", err)
	}
}

// Health handles GET /health, the liveness probe. It never consults
// dependencies: a dead database must not make the kubelet restart pods
// that could still serve cached scores.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	writeProbeResponse(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready, the readiness probe. The database is the
// only hard dependency; without it the pod leaves rotation with a 503.
// Redis only degrades the classification and threshold caches, so its
// failure is reported but keeps the pod serving.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{
		"database": "ok",
		"redis":    "ok",
		"metrics":  "ok",
	}
	healthy := true

	if h.dbChecker != nil {
		if err := h.dbChecker.HealthCheck(ctx); err != nil {
			checks["database"] = "error"
			healthy = false
			slog.WarnContext(ctx, "database health check failed", "error", err)
		}
	}
	if h.redisChecker != nil {
		if err := h.redisChecker.HealthCheck(ctx); err != nil {
			checks["redis"] = "degraded"
			slog.WarnContext(ctx, "redis health check failed", "error", err)
		}
	}

	status, statusCode := "healthy", http.StatusOK
	if !healthy {
		status, statusCode = "unhealthy", http.StatusServiceUnavailable
	}
	writeProbeResponse(w, statusCode, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
