package grading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unilist/unilist/internal/listing"
	"github.com/unilist/unilist/internal/market"
)

var engineNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newGradingFixture(t *testing.T, cache ThresholdCache) (*Engine, *listing.InMemoryRepository) {
	t.Helper()

	repo := listing.NewInMemoryRepository()
	repo.SetClock(func() time.Time { return engineNow })
	engine := NewEngine(repo, cache, time.Minute, nil, nil)
	engine.SetClock(func() time.Time { return engineNow })
	return engine, repo
}

func seedListing(t *testing.T, repo *listing.InMemoryRepository, size market.Size, score float64) string {
	t.Helper()

	l := &listing.Listing{
		TenantID:      "tenant-1",
		Title:         "Listing",
		DurationClass: listing.DurationOneTime,
		MarketSize:    size,
	}
	ctx := context.Background()
	if err := repo.Create(ctx, l); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.UpdateScore(ctx, l.ID, 1, score); err != nil {
		t.Fatalf("UpdateScore() error = %v", err)
	}
	return l.ID
}

func TestEngine_RecomputeMarket_EmptyBucket(t *testing.T) {
	engine, _ := newGradingFixture(t, nil)

	report, err := engine.RecomputeMarket(context.Background(), market.SizeSmall)
	if err != nil {
		t.Fatalf("RecomputeMarket() error = %v", err)
	}
	if report.Population != 0 || report.Updated != 0 {
		t.Errorf("report = %+v, want empty no-op", report)
	}
	if report.Thresholds != nil {
		t.Error("empty bucket produced thresholds")
	}
}

func TestEngine_RecomputeMarket_UnknownBucket(t *testing.T) {
	engine, _ := newGradingFixture(t, nil)

	_, err := engine.RecomputeMarket(context.Background(), market.Size("galactic"))
	if err == nil {
		t.Error("expected error for unknown market size")
	}
}

func TestEngine_RecomputeMarket_AssignsGrades(t *testing.T) {
	engine, repo := newGradingFixture(t, nil)
	ctx := context.Background()

	scores := []float64{48, 44, 40, 36, 32, 28, 24, 20, 16, 12}
	ids := make([]string, len(scores))
	for i, s := range scores {
		ids[i] = seedListing(t, repo, market.SizeSmall, s)
	}
	// A listing in a different bucket must be untouched.
	otherID := seedListing(t, repo, market.SizeLarge, 48)

	report, err := engine.RecomputeMarket(ctx, market.SizeSmall)
	if err != nil {
		t.Fatalf("RecomputeMarket() error = %v", err)
	}
	if report.Population != 10 || report.Updated != 10 {
		t.Errorf("report = %+v, want population 10, updated 10", report)
	}

	// Best listing grades A, worst grades D.
	best, _ := repo.GetByID(ctx, ids[0])
	if best.RelativeGrade == nil || *best.RelativeGrade != GradeA {
		t.Errorf("best grade = %v, want A", best.RelativeGrade)
	}
	worst, _ := repo.GetByID(ctx, ids[len(ids)-1])
	if worst.RelativeGrade == nil || *worst.RelativeGrade != GradeD {
		t.Errorf("worst grade = %v, want D", worst.RelativeGrade)
	}

	other, _ := repo.GetByID(ctx, otherID)
	if other.RelativeGrade != nil {
		t.Errorf("other bucket graded: %v", *other.RelativeGrade)
	}
}

// Running the recompute twice on an unchanged bucket yields identical
// grades.
func TestEngine_RecomputeMarket_Idempotent(t *testing.T) {
	engine, repo := newGradingFixture(t, nil)
	ctx := context.Background()

	ids := make([]string, 0, 7)
	for _, s := range []float64{45, 40, 35, 30, 25, 20, 15} {
		ids = append(ids, seedListing(t, repo, market.SizeMedium, s))
	}

	if _, err := engine.RecomputeMarket(ctx, market.SizeMedium); err != nil {
		t.Fatalf("first RecomputeMarket() error = %v", err)
	}
	first := make(map[string]string)
	for _, id := range ids {
		l, _ := repo.GetByID(ctx, id)
		first[id] = *l.RelativeGrade
	}

	if _, err := engine.RecomputeMarket(ctx, market.SizeMedium); err != nil {
		t.Fatalf("second RecomputeMarket() error = %v", err)
	}
	for _, id := range ids {
		l, _ := repo.GetByID(ctx, id)
		if *l.RelativeGrade != first[id] {
			t.Errorf("listing %s grade changed from %q to %q on identical input",
				id, first[id], *l.RelativeGrade)
		}
	}
}

func TestEngine_RecomputeMarket_CachesThresholds(t *testing.T) {
	cache := NewInMemoryThresholdCache()
	engine, repo := newGradingFixture(t, cache)
	ctx := context.Background()

	seedListing(t, repo, market.SizeSmall, 40)
	seedListing(t, repo, market.SizeSmall, 20)

	if _, err := engine.RecomputeMarket(ctx, market.SizeSmall); err != nil {
		t.Fatalf("RecomputeMarket() error = %v", err)
	}

	th, hit, err := cache.Get(ctx, market.SizeSmall)
	if err != nil || !hit {
		t.Fatalf("cache.Get() hit=%v err=%v, want cached thresholds", hit, err)
	}
	if th.Population != 2 {
		t.Errorf("cached Population = %d, want 2", th.Population)
	}
}

func TestEngine_RecomputeAll(t *testing.T) {
	engine, repo := newGradingFixture(t, nil)

	seedListing(t, repo, market.SizeSmall, 30)
	seedListing(t, repo, market.SizeMassive, 30)

	report := engine.RecomputeAll(context.Background())

	if len(report.Failed) != 0 {
		t.Errorf("Failed = %v, want none", report.Failed)
	}
	if len(report.Buckets) != len(market.AllSizes()) {
		t.Errorf("got %d bucket reports, want %d", len(report.Buckets), len(market.AllSizes()))
	}
	if report.Buckets[market.SizeSmall].Updated != 1 {
		t.Errorf("small bucket updated = %d, want 1", report.Buckets[market.SizeSmall].Updated)
	}
	if report.Buckets[market.SizeMedium].Population != 0 {
		t.Errorf("medium bucket population = %d, want 0", report.Buckets[market.SizeMedium].Population)
	}
}

func TestEngine_RegradeOne_UsesCachedThresholds(t *testing.T) {
	cache := NewInMemoryThresholdCache()
	engine, repo := newGradingFixture(t, cache)
	ctx := context.Background()

	id := seedListing(t, repo, market.SizeSmall, 35)
	if err := cache.Set(ctx, &Thresholds{
		MarketSize: market.SizeSmall,
		ACut:       40,
		BCut:       30,
		CCut:       20,
		Population: 50,
		ComputedAt: engineNow,
	}, time.Minute); err != nil {
		t.Fatalf("cache.Set() error = %v", err)
	}

	grade, err := engine.RegradeOne(ctx, id)
	if err != nil {
		t.Fatalf("RegradeOne() error = %v", err)
	}
	if grade != GradeB {
		t.Errorf("grade = %q, want B under cached thresholds", grade)
	}

	l, _ := repo.GetByID(ctx, id)
	if l.RelativeGrade == nil || *l.RelativeGrade != GradeB {
		t.Errorf("persisted grade = %v, want B", l.RelativeGrade)
	}
}

func TestEngine_RegradeOne_ColdCacheRecomputesBucket(t *testing.T) {
	cache := NewInMemoryThresholdCache()
	engine, repo := newGradingFixture(t, cache)
	ctx := context.Background()

	id := seedListing(t, repo, market.SizeSmall, 35)
	peerID := seedListing(t, repo, market.SizeSmall, 15)

	grade, err := engine.RegradeOne(ctx, id)
	if err != nil {
		t.Fatalf("RegradeOne() error = %v", err)
	}
	if grade == "" {
		t.Error("RegradeOne() returned empty grade")
	}

	// The fallback recompute grades the whole bucket, peer included.
	peer, _ := repo.GetByID(ctx, peerID)
	if peer.RelativeGrade == nil {
		t.Error("peer ungraded after fallback bucket recompute")
	}
}

func TestEngine_RegradeOne_NotFound(t *testing.T) {
	engine, _ := newGradingFixture(t, nil)

	_, err := engine.RegradeOne(context.Background(), "missing")
	if !errors.Is(err, listing.ErrListingNotFound) {
		t.Errorf("err = %v, want ErrListingNotFound", err)
	}
}

func TestEngine_RegradeOne_InactiveListing(t *testing.T) {
	engine, repo := newGradingFixture(t, nil)
	ctx := context.Background()

	id := seedListing(t, repo, market.SizeSmall, 30)
	if err := repo.Deactivate(ctx, id); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}

	_, err := engine.RegradeOne(ctx, id)
	if !errors.Is(err, listing.ErrListingNotFound) {
		t.Errorf("err = %v, want ErrListingNotFound", err)
	}
}
