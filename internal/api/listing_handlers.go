// Package api provides HTTP handlers for the ranking engine API.
package api

import (
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"

	"github.com/unilist/unilist/internal/engine"
	"github.com/unilist/unilist/internal/listing"
	"github.com/unilist/unilist/internal/middleware"
)

// Listing validation constraints.
const (
	MaxListingTitleLength = 200
	MaxScopeTenants       = 64
)

// CreateListingRequest represents the request body for creating a listing.
type CreateListingRequest struct {
	TenantID         string  `json:"tenant_id"`
	Title            string  `json:"title"`
	DurationClass    string  `json:"duration_class"`
	ReviewScoreBonus float64 `json:"review_score_bonus,omitempty"`
}

// InteractionRequest represents the request body for recording or
// removing an interaction.
type InteractionRequest struct {
	ActorID string `json:"actor_id"`
	Kind    string `json:"kind"`
}

// ScopeRequest represents the request body for setting a listing's scope.
type ScopeRequest struct {
	TenantIDs       []string `json:"tenant_ids"`
	PrimaryTenantID string   `json:"primary_tenant_id"`
}

// ListingHandlers holds dependencies for listing HTTP handlers.
type ListingHandlers struct {
	svc *engine.Service
}

// NewListingHandlers creates a new ListingHandlers instance.
func NewListingHandlers(svc *engine.Service) *ListingHandlers {
	return &ListingHandlers{
		svc: svc,
	}
}

// extractListingID extracts the listing ID from the URL path.
// Returns the listing ID and an error if the ID is missing.
func extractListingID(r *http.Request) (string, error) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/listings/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		return "", fmt.Errorf("listing ID is required")
	}
	return pathParts[0], nil
}

// validateListingTitle validates the listing title.
// Returns error message if validation fails, empty string if valid.
func validateListingTitle(title string) string {
	trimmed := strings.TrimSpace(title)

	if trimmed == "" {
		return "listing title is required"
	}
	if len(trimmed) > MaxListingTitleLength {
		return "listing title must not exceed 200 characters"
	}
	return ""
}

// CreateListing handles POST /listings - registers a new listing.
func (h *ListingHandlers) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if req.TenantID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "tenant_id is required")
		return
	}

	if errMsg := validateListingTitle(req.Title); errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}

	durationClass := listing.DurationClass(req.DurationClass)
	if !listing.ValidDurationClass(durationClass) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidDurationClass)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidDurationClass,
			"duration_class must be one of: one-time, event, recurring")
		return
	}

	l := &listing.Listing{
		TenantID:         req.TenantID,
		Title:            html.EscapeString(strings.TrimSpace(req.Title)),
		DurationClass:    durationClass,
		ReviewScoreBonus: req.ReviewScoreBonus,
	}

	if err := h.svc.CreateListing(r.Context(), l); err != nil {
		slog.ErrorContext(r.Context(), "failed to create listing", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create listing")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(l); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
		return
	}
}

// DeactivateListing handles DELETE /listings/{id} - soft-removes a listing.
func (h *ListingHandlers) DeactivateListing(w http.ResponseWriter, r *http.Request) {
	listingID, err := extractListingID(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Listing ID is required")
		return
	}

	if err := h.svc.DeactivateListing(r.Context(), listingID); err != nil {
		if err == listing.ErrListingNotFound {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Listing not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to deactivate listing", "error", err, "listing_id", listingID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to deactivate listing")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetScore handles GET /listings/{id}/score - the feed read path.
func (h *ListingHandlers) GetScore(w http.ResponseWriter, r *http.Request) {
	listingID, err := extractListingID(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Listing ID is required")
		return
	}

	result, err := h.svc.GetScore(r.Context(), listingID)
	if err != nil {
		if err == listing.ErrListingNotFound {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Listing not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get listing score", "error", err, "listing_id", listingID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to get listing score")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
		return
	}
}

// decodeInteraction parses and validates an interaction request body.
func decodeInteraction(w http.ResponseWriter, r *http.Request) (string, listing.Kind, bool) {
	var req InteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return "", "", false
	}

	if req.ActorID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "actor_id is required")
		return "", "", false
	}

	kind := listing.Kind(req.Kind)
	if !listing.ValidKind(kind) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidKind)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidKind,
			"kind must be one of: message, share, bookmark, repost")
		return "", "", false
	}

	return req.ActorID, kind, true
}

// RecordInteraction handles POST /listings/{id}/interactions - records
// one engagement event and recomputes the listing's score and grade.
func (h *ListingHandlers) RecordInteraction(w http.ResponseWriter, r *http.Request) {
	listingID, err := extractListingID(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Listing ID is required")
		return
	}

	actorID, kind, ok := decodeInteraction(w, r)
	if !ok {
		return
	}

	if err := h.svc.RecordInteraction(r.Context(), listingID, actorID, kind); err != nil {
		switch {
		case err == listing.ErrDuplicateInteraction:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeDuplicateInteraction)
			WriteError(w, ctx, http.StatusConflict, ErrCodeDuplicateInteraction,
				"Interaction already recorded for this actor and kind")
		case err == listing.ErrListingNotFound:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Listing not found")
		default:
			slog.ErrorContext(r.Context(), "failed to record interaction",
				"error", err, "listing_id", listingID)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to record interaction")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveInteraction handles DELETE /listings/{id}/interactions -
// symmetric removal of one engagement event.
func (h *ListingHandlers) RemoveInteraction(w http.ResponseWriter, r *http.Request) {
	listingID, err := extractListingID(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Listing ID is required")
		return
	}

	actorID, kind, ok := decodeInteraction(w, r)
	if !ok {
		return
	}

	if err := h.svc.RemoveInteraction(r.Context(), listingID, actorID, kind); err != nil {
		switch {
		case err == listing.ErrInteractionNotFound:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInteractionNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeInteractionNotFound, "Interaction not found")
		case err == listing.ErrListingNotFound:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Listing not found")
		default:
			slog.ErrorContext(r.Context(), "failed to remove interaction",
				"error", err, "listing_id", listingID)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to remove interaction")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetScope handles PUT /listings/{id}/scope - defines or edits which
// tenants a listing targets.
func (h *ListingHandlers) SetScope(w http.ResponseWriter, r *http.Request) {
	listingID, err := extractListingID(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Listing ID is required")
		return
	}

	var req ScopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if len(req.TenantIDs) == 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeEmptyScope)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeEmptyScope, "Scope requires at least one tenant")
		return
	}
	if len(req.TenantIDs) > MaxScopeTenants {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Scope exceeds maximum tenant count")
		return
	}

	if err := h.svc.SetListingScope(r.Context(), listingID, req.TenantIDs, req.PrimaryTenantID); err != nil {
		if err == listing.ErrListingNotFound {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Listing not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to set listing scope",
			"error", err, "listing_id", listingID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to set listing scope")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Routes registers listing routes on the mux.
func (h *ListingHandlers) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /listings", h.CreateListing)
	mux.HandleFunc("DELETE /listings/{id}", h.DeactivateListing)
	mux.HandleFunc("GET /listings/{id}/score", h.GetScore)
	mux.HandleFunc("POST /listings/{id}/interactions", h.RecordInteraction)
	mux.HandleFunc("DELETE /listings/{id}/interactions", h.RemoveInteraction)
	mux.HandleFunc("PUT /listings/{id}/scope", h.SetScope)
}
