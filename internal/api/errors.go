// Package api provides HTTP API utilities including standardized error handling.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/unilist/unilist/internal/middleware"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeAuthFailed indicates the edge auth layer rejected the request.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeForbidden indicates the actor lacks permission for the operation.
	ErrCodeForbidden = "forbidden"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeConflict indicates a conflict with the current state.
	ErrCodeConflict = "conflict"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeDuplicateInteraction indicates the (listing, actor, kind)
	// interaction already exists; the event is rejected, not merged.
	ErrCodeDuplicateInteraction = "duplicate_interaction"

	// ErrCodeInteractionNotFound indicates the interaction to remove does not exist.
	ErrCodeInteractionNotFound = "interaction_not_found"

	// ErrCodeInvalidKind indicates an unknown interaction kind.
	ErrCodeInvalidKind = "invalid_kind"

	// ErrCodeInvalidMarketSize indicates an unknown market-size bucket.
	ErrCodeInvalidMarketSize = "invalid_market_size"

	// ErrCodeInvalidDurationClass indicates an unknown listing duration class.
	ErrCodeInvalidDurationClass = "invalid_duration_class"

	// ErrCodeEmptyScope indicates a scope update with no tenants.
	ErrCodeEmptyScope = "empty_scope"

	// ErrCodeVersionConflict indicates a concurrent score update lost the race.
	ErrCodeVersionConflict = "version_conflict"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
// It writes the appropriate HTTP status code and returns a JSON error body.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The error_code will be automatically logged by the logging middleware
// for all 4xx and 5xx responses if you call SetErrorCode on the context
// and pass the updated context to WriteError.
//
// Example:
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	    api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Listing not found")
//	}
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	// Update the context in the response writer if supported (for logging middleware)
	middleware.UpdateResponseContext(w, ctx)

	// Create error response
	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	// Marshal to JSON
	data, err := json.Marshal(errResp)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	// Write response
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the recommended HTTP status code for common error codes.
// This is a convenience function to map error codes to HTTP status codes.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest, ErrCodeInvalidKind,
		ErrCodeInvalidMarketSize, ErrCodeInvalidDurationClass, ErrCodeEmptyScope:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound, ErrCodeInteractionNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeConflict, ErrCodeDuplicateInteraction, ErrCodeVersionConflict:
		return http.StatusConflict
	case ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
