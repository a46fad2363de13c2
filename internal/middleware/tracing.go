package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Tracing wraps the handler in otelhttp instrumentation: one server span
// per request, named "METHOD /path" (e.g. "GET /listings/{id}/score"
// resolves to the concrete path), with W3C trace context propagated from
// inbound traceparent/tracestate headers. Place it after RequestID so the
// request ID is present in span-scoped logs.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}

// GetTraceID returns the active trace ID for the request, or "" when the
// request is not being traced.
func GetTraceID(r *http.Request) string {
	if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}
