// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/unilist/unilist/internal/idempotency"
)

// IdempotencyKeyHeader names the header clients send on guarded creates.
const IdempotencyKeyHeader = "Idempotency-Key"

type idempotencyKeyContextKey struct{}

// idempotencyResponseWriter tees the handler's response into a buffer so
// a successful create can be cached for replay.
type idempotencyResponseWriter struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
	written    bool
}

func newIdempotencyResponseWriter(w http.ResponseWriter) *idempotencyResponseWriter {
	return &idempotencyResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		body:           &bytes.Buffer{},
	}
}

func (w *idempotencyResponseWriter) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.body.Write(b)
	return n, err
}

// SetIdempotencyKey stores the idempotency key in the context.
func SetIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyContextKey{}, key)
}

// GetIdempotencyKey retrieves the idempotency key from context. Returns
// empty string if not present.
func GetIdempotencyKey(ctx context.Context) string {
	if key, ok := ctx.Value(idempotencyKeyContextKey{}).(string); ok {
		return key
	}
	return ""
}

// IdempotencyMiddleware makes POSTs to the listed routes safe to retry.
// A guarded request must carry an Idempotency-Key; the first successful
// response under a key is cached, and retries replay it without running
// the handler again. Only 2xx responses are cached, so a rejected create
// stays retryable after the client fixes its input.
func IdempotencyMiddleware(repo idempotency.Repository, routes map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !routes[r.URL.Path] || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				ctx := SetErrorCode(r.Context(), "missing_idempotency_key")
				writeIdempotencyError(w, ctx, http.StatusBadRequest,
					"missing_idempotency_key", "Idempotency-Key header is required for this request")
				return
			}
			if err := idempotency.ValidateKey(key); err != nil {
				code, message := "invalid_idempotency_key", "Invalid Idempotency-Key format"
				if err == idempotency.ErrKeyTooLong {
					code = "idempotency_key_too_long"
					message = "Idempotency-Key exceeds maximum length of 64 characters"
				}
				ctx := SetErrorCode(r.Context(), code)
				writeIdempotencyError(w, ctx, http.StatusBadRequest, code, message)
				return
			}

			ctx := SetIdempotencyKey(r.Context(), key)
			r = r.WithContext(ctx)

			existing, err := repo.Get(key)
			if err == nil {
				slog.InfoContext(ctx, "replaying cached response for idempotency key",
					"key", key,
					"status", existing.ResponseStatusCode,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(existing.ResponseStatusCode)
				io.WriteString(w, existing.ResponseBody)
				return
			}
			if err != idempotency.ErrKeyNotFound {
				// The store is down. Let the create through rather than
				// blocking writes on the idempotency layer.
				slog.ErrorContext(ctx, "failed to check idempotency key", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			captureWriter := newIdempotencyResponseWriter(w)
			next.ServeHTTP(captureWriter, r)

			if captureWriter.statusCode >= 200 && captureWriter.statusCode < 300 {
				responseBody := captureWriter.body.String()
				record := &idempotency.IdempotencyKey{
					Key:                key,
					Method:             r.Method,
					Route:              r.URL.Path,
					ResponseHash:       idempotency.ComputeResponseHash(responseBody),
					Status:             idempotency.StatusCompleted,
					ResponseBody:       responseBody,
					ResponseStatusCode: captureWriter.statusCode,
				}
				// The response is already on the wire; a failed store only
				// costs replay protection for this key.
				if err := repo.Store(record); err != nil {
					slog.ErrorContext(ctx, "failed to store idempotency key", "key", key, "error", err)
				} else {
					slog.InfoContext(ctx, "stored idempotency key", "key", key, "status", captureWriter.statusCode)
				}
			}
		})
	}
}

// writeIdempotencyError writes a minimal JSON error without importing the
// api package (which would create an import cycle).
func writeIdempotencyError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	UpdateResponseContext(w, ctx)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, `{"error":{"code":"`+code+`","message":"`+message+`"}}`)
}
