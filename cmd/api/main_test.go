package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unilist/unilist/internal/api"
	"github.com/unilist/unilist/internal/engine"
	"github.com/unilist/unilist/internal/grading"
	"github.com/unilist/unilist/internal/idempotency"
	"github.com/unilist/unilist/internal/listing"
	"github.com/unilist/unilist/internal/market"
	"github.com/unilist/unilist/internal/middleware"
	"github.com/unilist/unilist/internal/scoring"
)

// newTestRouter builds the production route tree on in-memory stores so the
// full middleware chain can be exercised without Postgres or Redis.
func newTestRouter(t *testing.T, origins ...string) (http.Handler, *listing.InMemoryRepository) {
	t.Helper()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	repo := listing.NewInMemoryRepository()
	repo.SetClock(func() time.Time { return now })

	store := market.NewInMemoryStore()
	store.AddCluster(market.Cluster{ID: "cluster-1", Name: "Test Cluster"})
	store.AddTenant(market.Tenant{ID: "tenant-1", Name: "State U", ClusterID: "cluster-1"}, 150)

	classifier := market.NewClassifier(store, market.NewInMemoryClassificationCache(), time.Minute, nil)
	grader := grading.NewEngine(repo, grading.NewInMemoryThresholdCache(), time.Minute, nil, nil)
	grader.SetClock(func() time.Time { return now })

	svc := engine.NewService(repo, classifier, scoring.NewAggregator(nil), grader, nil)
	svc.SetClock(func() time.Time { return now })

	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		t.Fatalf("register metrics: %v", err)
	}

	handler := newRouter(routerConfig{
		Service:         svc,
		Health:          api.NewHealthHandlers(api.HealthHandlersConfig{MetricsEnabled: true}),
		IdempotencyRepo: idempotency.NewInMemoryRepository(),
		RateLimits:      middleware.NewInMemoryRateLimitStore(),
		HTTPMetrics:     httpMetrics,
		Registry:        registry,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		CORSOrigins:     origins,
		Env:             "test",
	})
	return handler, repo
}

func createListingThroughRouter(t *testing.T, handler http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	body := `{"tenant_id":"tenant-1","title":"Mini fridge","duration_class":"one-time"}`
	req := httptest.NewRequest(http.MethodPost, "/listings", strings.NewReader(body))
	// Creates demand an Idempotency-Key; default to a fresh one.
	req.Header.Set(middleware.IdempotencyKeyHeader, uuid.New().String())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestRouter_CreateListingThroughFullChain(t *testing.T) {
	handler, repo := newTestRouter(t)

	w := createListingThroughRouter(t, handler, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("response missing request ID header")
	}

	var created listing.Listing
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), created.ID); err != nil {
		t.Errorf("created listing not in repository: %v", err)
	}
}

func TestRouter_ProbesAndMetricsBypassRateLimits(t *testing.T) {
	handler, _ := newTestRouter(t)

	// Far more requests than any rate-limit budget allows.
	for i := 0; i < 150; i++ {
		for _, path := range []string{"/health", "/ready"} {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("%s request %d: status = %d, want 200", path, i+1, w.Code)
			}
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Error("/metrics output missing HTTP request counters")
	}
}

func TestRouter_InteractionBudgetEnforced(t *testing.T) {
	handler, _ := newTestRouter(t)

	limit := middleware.DefaultInteractionLimit().RequestsPerWindow
	var last *httptest.ResponseRecorder
	for i := 0; i <= limit; i++ {
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/listings/ghost/score", nil))
	}

	if last.Code != http.StatusTooManyRequests {
		t.Errorf("request %d status = %d, want 429", limit+1, last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("429 missing Retry-After header")
	}
}

func TestRouter_AdminBudgetTighterAndIndependent(t *testing.T) {
	handler, _ := newTestRouter(t)

	adminLimit := middleware.DefaultAdminLimit().RequestsPerWindow
	var last *httptest.ResponseRecorder
	for i := 0; i <= adminLimit; i++ {
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, httptest.NewRequest(
			http.MethodPost, "/admin/grades/recompute?market_size=medium", nil))
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("admin request %d status = %d, want 429", adminLimit+1, last.Code)
	}

	// The same caller still has general API budget left: admin calls spend
	// a separately scoped counter.
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/markets/tenant-1", nil))
	if w.Code != http.StatusOK {
		t.Errorf("market read after admin throttle: status = %d, want 200", w.Code)
	}
}

func TestRouter_IdempotentCreateReplaysResponse(t *testing.T) {
	handler, repo := newTestRouter(t)
	headers := map[string]string{middleware.IdempotencyKeyHeader: "create-retry-1"}

	first := createListingThroughRouter(t, handler, headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("first create status = %d: %s", first.Code, first.Body.String())
	}
	second := createListingThroughRouter(t, handler, headers)
	if second.Code != http.StatusCreated {
		t.Fatalf("replay status = %d, want cached 201", second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Error("replayed response body differs from the original")
	}

	var created listing.Listing
	if err := json.NewDecoder(strings.NewReader(first.Body.String())).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	all, err := repo.ListActiveByMarket(context.Background(), market.SizeMedium)
	if err != nil {
		t.Fatalf("ListActiveByMarket: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("repository holds %d listings after a replayed create, want 1", len(all))
	}
}

func TestRouter_CORSPreflightOnInteractions(t *testing.T) {
	handler, _ := newTestRouter(t, "https://listings.stateu.edu")

	preflight := httptest.NewRequest(http.MethodOptions, "/listings/l1/interactions", nil)
	preflight.Header.Set("Origin", "https://listings.stateu.edu")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, preflight)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://listings.stateu.edu" {
		t.Errorf("Allow-Origin = %q", got)
	}

	denied := httptest.NewRequest(http.MethodGet, "/listings/l1/score", nil)
	denied.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, denied)
	if w.Code != http.StatusForbidden {
		t.Errorf("unlisted origin status = %d, want 403", w.Code)
	}
}

func TestRouter_ProfilingOffByDefault(t *testing.T) {
	handler, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/pprof/heap", nil))
	if w.Code == http.StatusOK {
		t.Error("pprof reachable with profiling disabled")
	}
}
