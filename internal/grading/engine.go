package grading

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/unilist/unilist/internal/listing"
	"github.com/unilist/unilist/internal/market"
)

// Report summarizes one market bucket recompute.
type Report struct {
	MarketSize market.Size `json:"market_size"`
	Population int         `json:"population"`
	Updated    int         `json:"updated"`
	Thresholds *Thresholds `json:"thresholds,omitempty"`
}

// AllReport summarizes a recompute across every market bucket. Per-bucket
// failures are isolated: one failing bucket never aborts the others.
type AllReport struct {
	Buckets map[market.Size]*Report `json:"buckets"`
	Failed  []market.Size           `json:"failed,omitempty"`
}

// Engine assigns relative letter grades within market buckets. Grades
// are percentile-based: a listing's grade depends on where its score
// sits among every other active listing in the same bucket.
type Engine struct {
	repo    listing.Repository
	cache   ThresholdCache
	ttl     time.Duration
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	// bucketMu serializes batch recomputes per bucket; different buckets
	// run fully in parallel.
	bucketMu map[market.Size]*sync.Mutex
}

// NewEngine creates a grading engine. A zero ttl uses DefaultThresholdTTL;
// nil logger and metrics are allowed.
func NewEngine(repo listing.Repository, cache ThresholdCache, ttl time.Duration, logger *slog.Logger, metrics *Metrics) *Engine {
	if ttl == 0 {
		ttl = DefaultThresholdTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	bucketMu := make(map[market.Size]*sync.Mutex, len(market.AllSizes()))
	for _, size := range market.AllSizes() {
		bucketMu[size] = &sync.Mutex{}
	}

	return &Engine{
		repo:     repo,
		cache:    cache,
		ttl:      ttl,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		bucketMu: bucketMu,
	}
}

// SetClock overrides the engine clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// RecomputeMarket recomputes percentile thresholds for one market bucket
// and bulk-assigns grades to every active listing in it. An empty bucket
// is a no-op, not an error. Concurrent recomputes of the same bucket are
// serialized.
func (e *Engine) RecomputeMarket(ctx context.Context, size market.Size) (*Report, error) {
	mu, ok := e.bucketMu[size]
	if !ok {
		return nil, fmt.Errorf("unknown market size %q", size)
	}
	mu.Lock()
	defer mu.Unlock()

	start := e.now()
	report, err := e.recomputeMarketLocked(ctx, size)
	duration := e.now().Sub(start).Seconds()

	if e.metrics != nil {
		e.metrics.ObserveRecomputeDuration(duration)
		if err != nil {
			e.metrics.IncRecomputeErrors(string(size))
		} else {
			e.metrics.IncRecomputeTotal(string(size))
			e.metrics.SetBucketPopulation(string(size), float64(report.Population))
			e.metrics.SetLastRecomputeTimestamp(float64(e.now().Unix()))
		}
	}
	return report, err
}

// recomputeMarketLocked does the actual work; callers hold the bucket lock.
func (e *Engine) recomputeMarketLocked(ctx context.Context, size market.Size) (*Report, error) {
	listings, err := e.repo.ListActiveByMarket(ctx, size)
	if err != nil {
		return nil, fmt.Errorf("failed to load market bucket: %w", err)
	}

	report := &Report{
		MarketSize: size,
		Population: len(listings),
	}
	if len(listings) == 0 {
		e.logger.Debug("market bucket empty, skipping grade recompute",
			"market_size", string(size))
		return report, nil
	}

	scores := make([]float64, len(listings))
	for i, l := range listings {
		scores[i] = l.FinalScore
	}
	thresholds := ComputeThresholds(size, scores, e.now())
	report.Thresholds = thresholds

	if e.cache != nil {
		if err := e.cache.Set(ctx, thresholds, e.ttl); err != nil {
			e.logger.Warn("failed to cache grade thresholds",
				"market_size", string(size),
				"error", err)
		}
	}

	grades := make(map[string]string, len(listings))
	for _, l := range listings {
		grades[l.ID] = thresholds.GradeFor(l.FinalScore)
	}

	updated, err := e.repo.BulkUpdateGrades(ctx, grades)
	if err != nil {
		return report, fmt.Errorf("failed to assign grades: %w", err)
	}
	report.Updated = updated

	e.logger.Info("market grades recomputed",
		"market_size", string(size),
		"population", report.Population,
		"updated", updated,
		"a_cut", thresholds.ACut,
		"b_cut", thresholds.BCut,
		"c_cut", thresholds.CCut)
	return report, nil
}

// RecomputeAll recomputes grades for every market bucket, isolating
// per-bucket failures into the report.
func (e *Engine) RecomputeAll(ctx context.Context) *AllReport {
	report := &AllReport{
		Buckets: make(map[market.Size]*Report),
	}

	for _, size := range market.AllSizes() {
		bucketReport, err := e.RecomputeMarket(ctx, size)
		if err != nil {
			e.logger.Error("failed to recompute market bucket",
				"market_size", string(size),
				"error", err)
			report.Failed = append(report.Failed, size)
			continue
		}
		report.Buckets[size] = bucketReport
	}
	return report
}

// RegradeOne grades a single listing against its bucket's cached
// thresholds without touching other listings. A cache miss, or a cached
// snapshot from a different bucket than the listing's current one,
// triggers a full bucket recompute (which grades this listing too).
// Returns the assigned grade.
func (e *Engine) RegradeOne(ctx context.Context, listingID string) (string, error) {
	l, err := e.repo.GetByID(ctx, listingID)
	if err != nil {
		return "", err
	}
	if !l.Active {
		return "", listing.ErrListingNotFound
	}

	thresholds := e.cachedThresholds(ctx, l.MarketSize)
	if thresholds == nil {
		if _, err := e.RecomputeMarket(ctx, l.MarketSize); err != nil {
			return "", err
		}
		regraded, err := e.repo.GetByID(ctx, listingID)
		if err != nil {
			return "", err
		}
		if regraded.RelativeGrade == nil {
			return "", fmt.Errorf("listing %s ungraded after bucket recompute", listingID)
		}
		return *regraded.RelativeGrade, nil
	}

	grade := thresholds.GradeFor(l.FinalScore)
	if err := e.repo.UpdateGrade(ctx, listingID, grade); err != nil {
		return "", fmt.Errorf("failed to persist grade: %w", err)
	}
	return grade, nil
}

// cachedThresholds returns a usable snapshot for a bucket, or nil when
// the cache is cold, errored, or holds a snapshot for the wrong bucket.
func (e *Engine) cachedThresholds(ctx context.Context, size market.Size) *Thresholds {
	if e.cache == nil {
		return nil
	}
	thresholds, hit, err := e.cache.Get(ctx, size)
	if err != nil {
		e.logger.Warn("threshold cache read failed",
			"market_size", string(size),
			"error", err)
		return nil
	}
	if !hit || thresholds.MarketSize != size {
		if e.metrics != nil {
			e.metrics.IncThresholdCacheMisses()
		}
		return nil
	}
	if e.metrics != nil {
		e.metrics.IncThresholdCacheHits()
	}
	return thresholds
}
