package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// RequestIDHeader carries the request ID on both request and response.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds forwarded IDs so a hostile client cannot
// bloat every log line.
const maxRequestIDLength = 128

// RequestID tags every request with an ID, honoring one supplied by the
// caller (the feed service forwards its own) and minting a UUID otherwise.
// The ID is echoed on the response and stored in the context for the
// logging middleware.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// validRequestID accepts forwarded IDs made of the characters tracing
// systems actually emit. Anything else, control characters included,
// gets replaced so it cannot be injected into log lines.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}

// GetRequestID returns the request ID stored by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
