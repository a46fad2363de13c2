// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// staticRoutes are paths recorded as-is; everything else is matched
// against the dynamic route shapes below.
var staticRoutes = map[string]bool{
	"/":                         true,
	"/listings":                 true,
	"/admin/markets/reclassify": true,
	"/admin/grades/recompute":   true,
	"/health":                   true,
	"/ready":                    true,
	"/metrics":                  true,
}

// normalizePath collapses listing and tenant IDs into route patterns so
// the per-path label set stays bounded. /listings/l-827/score becomes
// /listings/{id}/score; a path that matches no known shape is recorded
// as-is rather than guessed at.
func normalizePath(path string) string {
	if staticRoutes[path] {
		return path
	}

	if strings.HasPrefix(path, "/listings/") {
		parts := strings.Split(path, "/")
		if len(parts) == 4 && (parts[3] == "score" || parts[3] == "interactions" || parts[3] == "scope") {
			return "/listings/{id}/" + parts[3]
		}
		if len(parts) == 3 && parts[2] != "" {
			return "/listings/{id}"
		}
	}

	if strings.HasPrefix(path, "/markets/") {
		parts := strings.Split(path, "/")
		if len(parts) == 3 && parts[2] != "" {
			return "/markets/{tenant_id}"
		}
	}

	return path
}

// metricsResponseWriter captures status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// HTTPMetrics records duration, count, and size observations for every
// request. Kubelet probes are skipped: they fire every few seconds and
// would drown the real traffic in every histogram.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := newMetricsResponseWriter(w)

			var requestSize int64
			if contentLength := r.Header.Get("Content-Length"); contentLength != "" {
				if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
					requestSize = size
				}
			}

			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				mrw.size,
			)
		})
	}
}
