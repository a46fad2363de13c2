package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/unilist/unilist/internal/grading"
	"github.com/unilist/unilist/internal/listing"
	"github.com/unilist/unilist/internal/market"
)

func newAdminMux(t *testing.T) (*http.ServeMux, *listing.InMemoryRepository) {
	t.Helper()

	svc, repo := newTestService(t)
	mux := http.NewServeMux()
	NewAdminHandlers(svc).Routes(mux)
	NewListingHandlers(svc).Routes(mux)
	return mux, repo
}

func TestClassifyMarket(t *testing.T) {
	mux, _ := newAdminMux(t)

	req := httptest.NewRequest(http.MethodGet, "/markets/tenant-1", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["tenant_id"] != "tenant-1" {
		t.Errorf("tenant_id = %q, want tenant-1", resp["tenant_id"])
	}
	if resp["market_size"] != string(market.SizeMedium) {
		t.Errorf("market_size = %q, want medium", resp["market_size"])
	}
}

func TestClassifyMarket_UnknownTenantDefaultsSmall(t *testing.T) {
	mux, _ := newAdminMux(t)

	req := httptest.NewRequest(http.MethodGet, "/markets/ghost-tenant", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["market_size"] != string(market.SizeSmall) {
		t.Errorf("market_size = %q, want small fallback", resp["market_size"])
	}
}

func TestReclassifyAllMarkets(t *testing.T) {
	mux, _ := newAdminMux(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/markets/reclassify", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var report market.ReclassifyReport
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Total != 1 || report.Updated != 1 {
		t.Errorf("report = %+v, want 1 tenant updated", report)
	}
}

func TestRecomputeGrades_SingleBucket(t *testing.T) {
	mux, _ := newAdminMux(t)

	createTestListing(t, mux)
	createTestListing(t, mux)

	req := httptest.NewRequest(http.MethodPost, "/admin/grades/recompute?market_size=medium", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var report grading.Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Population != 2 || report.Updated != 2 {
		t.Errorf("report = %+v, want 2 listings graded", report)
	}
	if report.Thresholds == nil {
		t.Error("report missing thresholds")
	}
}

func TestRecomputeGrades_AllBuckets(t *testing.T) {
	mux, _ := newAdminMux(t)

	createTestListing(t, mux)

	req := httptest.NewRequest(http.MethodPost, "/admin/grades/recompute", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var report grading.AllReport
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Failed) != 0 {
		t.Errorf("Failed = %v, want none", report.Failed)
	}
	if report.Buckets[market.SizeMedium] == nil || report.Buckets[market.SizeMedium].Updated != 1 {
		t.Errorf("medium bucket report = %+v, want 1 updated", report.Buckets[market.SizeMedium])
	}
}

func TestRecomputeGrades_InvalidMarketSize(t *testing.T) {
	mux, _ := newAdminMux(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/grades/recompute?market_size=huge", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if got := decodeErrorCode(t, strings.NewReader(w.Body.String())); got != ErrCodeInvalidMarketSize {
		t.Errorf("error code = %q, want %q", got, ErrCodeInvalidMarketSize)
	}
}
