package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/unilist/unilist/internal/engine"
	"github.com/unilist/unilist/internal/market"
	"github.com/unilist/unilist/internal/middleware"
)

// AdminHandlers holds dependencies for administrative and batch HTTP
// handlers: market classification and grade recomputation.
type AdminHandlers struct {
	svc *engine.Service
}

// NewAdminHandlers creates a new AdminHandlers instance.
func NewAdminHandlers(svc *engine.Service) *AdminHandlers {
	return &AdminHandlers{
		svc: svc,
	}
}

// extractTenantID extracts the tenant ID from the URL path.
func extractTenantID(r *http.Request) (string, error) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/markets/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		return "", fmt.Errorf("tenant ID is required")
	}
	return pathParts[0], nil
}

// ClassifyMarket handles GET /markets/{tenant_id} - returns the market
// bucket for a tenant.
func (h *AdminHandlers) ClassifyMarket(w http.ResponseWriter, r *http.Request) {
	tenantID, err := extractTenantID(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Tenant ID is required")
		return
	}

	size, err := h.svc.ClassifyMarket(r.Context(), tenantID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to classify market",
			"error", err, "tenant_id", tenantID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to classify market")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"tenant_id":   tenantID,
		"market_size": string(size),
	}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
		return
	}
}

// ReclassifyAllMarkets handles POST /admin/markets/reclassify - recomputes
// every tenant's market bucket and returns the run report.
func (h *AdminHandlers) ReclassifyAllMarkets(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.ReclassifyAllMarkets(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to reclassify markets", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to reclassify markets")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
		return
	}
}

// RecomputeGrades handles POST /admin/grades/recompute - recomputes
// grades for one bucket (?market_size=small) or every bucket when the
// parameter is absent.
func (h *AdminHandlers) RecomputeGrades(w http.ResponseWriter, r *http.Request) {
	sizeParam := r.URL.Query().Get("market_size")

	if sizeParam == "" {
		report := h.svc.RecomputeAllMarketGrades(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
		}
		return
	}

	size := market.Size(sizeParam)
	if !market.ValidSize(size) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidMarketSize)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidMarketSize,
			"market_size must be one of: small, medium, large, massive")
		return
	}

	report, err := h.svc.RecomputeMarketGrades(r.Context(), size)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to recompute market grades",
			"error", err, "market_size", sizeParam)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to recompute grades")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
		return
	}
}

// Routes registers administrative routes on the mux.
func (h *AdminHandlers) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /markets/{tenant_id}", h.ClassifyMarket)
	mux.HandleFunc("POST /admin/markets/reclassify", h.ReclassifyAllMarkets)
	mux.HandleFunc("POST /admin/grades/recompute", h.RecomputeGrades)
}
