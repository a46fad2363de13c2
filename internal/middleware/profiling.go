package middleware

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strings"
)

// ProfilingConfig controls the pprof surface. Enabled must never be true
// outside development; Environment is the backstop for a misconfigured flag.
type ProfilingConfig struct {
	Enabled     bool
	Environment string
}

// Profiling exposes the pprof handlers under /debug/pprof/ when enabled.
// Grade recomputes over large market buckets are the main thing worth
// profiling here, so the CPU and heap profiles matter most. The middleware
// refuses to activate when Environment is production regardless of the flag.
func Profiling(cfg ProfilingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		if cfg.Environment == "production" || cfg.Environment == "prod" {
			slog.Error("refusing to enable profiling in production",
				"environment", cfg.Environment)
			return next
		}

		slog.Warn("pprof endpoints enabled",
			"environment", cfg.Environment,
			"path", "/debug/pprof/")

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/debug/pprof") {
				next.ServeHTTP(w, r)
				return
			}
			switch r.URL.Path {
			case "/debug/pprof/cmdline":
				pprof.Cmdline(w, r)
			case "/debug/pprof/profile":
				pprof.Profile(w, r)
			case "/debug/pprof/symbol":
				pprof.Symbol(w, r)
			case "/debug/pprof/trace":
				pprof.Trace(w, r)
			default:
				pprof.Index(w, r)
			}
		})
	}
}
