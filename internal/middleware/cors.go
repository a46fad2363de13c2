package middleware

import (
	"net/http"
	"strings"
)

// Request headers the listings API accepts from browsers. Idempotency-Key
// rides on interaction writes, X-Request-ID on everything.
const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, Idempotency-Key, X-Request-ID"
	corsMaxAge       = "600"
)

// CORS allows browser clients from the given origins to call the API.
// Origins are matched exactly (no wildcards). An empty list disables the
// middleware entirely, which is the posture for server-to-server deployments
// where the feed service is the only caller.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		if len(allowed) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Same-origin or non-browser caller.
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := allowed[origin]; !ok {
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Vary", "Origin")

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
