package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func profilingHandler(cfg ProfilingConfig) http.Handler {
	return Profiling(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot) // marker: request fell through to the app
	}))
}

func TestProfiling_DisabledPassesThrough(t *testing.T) {
	h := profilingHandler(ProfilingConfig{Enabled: false, Environment: "development"})

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want pprof path to reach the app when disabled", w.Code)
	}
}

func TestProfiling_EnabledServesIndex(t *testing.T) {
	h := profilingHandler(ProfilingConfig{Enabled: true, Environment: "development"})

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "profile") {
		t.Error("pprof index body missing profile links")
	}
}

func TestProfiling_EnabledServesNamedProfiles(t *testing.T) {
	h := profilingHandler(ProfilingConfig{Enabled: true, Environment: "development"})

	// heap and goroutine dumps are the profiles grabbed during grade
	// recompute investigations; cmdline is one of the dedicated handlers.
	for _, path := range []string{"/debug/pprof/heap", "/debug/pprof/goroutine", "/debug/pprof/cmdline"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, w.Code)
		}
	}
}

func TestProfiling_RefusesProductionEnvironment(t *testing.T) {
	for _, env := range []string{"production", "prod"} {
		h := profilingHandler(ProfilingConfig{Enabled: true, Environment: env})

		req := httptest.NewRequest(http.MethodGet, "/debug/pprof/heap", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusTeapot {
			t.Errorf("env %s: status = %d, profiling must not activate", env, w.Code)
		}
	}
}

func TestProfiling_NonDebugPathsUnaffected(t *testing.T) {
	h := profilingHandler(ProfilingConfig{Enabled: true, Environment: "development"})

	req := httptest.NewRequest(http.MethodGet, "/listings/l1/score", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, app routes must bypass the pprof mux", w.Code)
	}
}
