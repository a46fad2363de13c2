package market

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// breakpointSet holds the ascending listing-count cut points for one
// cluster-size band. A count below Small classifies as small, below Medium
// as medium, below Large as large, and anything at or above Large as
// massive. Massive set to 0 means the band cannot reach massive.
type breakpointSet struct {
	Small  int
	Medium int
	Large  int // 0 means "large is the ceiling" for this band
}

// Breakpoint sets per cluster-size band. A tenant alone in its cluster is
// judged on its own listing density and cannot reach massive; larger
// clusters need progressively more aggregate listings per bucket, with the
// biggest clusters requiring thousands of listings to count as massive.
var (
	soloBreakpoints         = breakpointSet{Small: 100, Medium: 500, Large: 0}
	smallClusterBreakpoints = breakpointSet{Small: 250, Medium: 1200, Large: 3000}
	midClusterBreakpoints   = breakpointSet{Small: 600, Medium: 2500, Large: 6000}
	largeClusterBreakpoints = breakpointSet{Small: 1200, Medium: 5000, Large: 12000}
)

// classify maps an active listing count onto this band's buckets.
func (b breakpointSet) classify(count int) Size {
	switch {
	case count < b.Small:
		return SizeSmall
	case count < b.Medium:
		return SizeMedium
	case b.Large == 0 || count < b.Large:
		return SizeLarge
	default:
		return SizeMassive
	}
}

// breakpointsForClusterSize selects the breakpoint set for a cluster with
// the given number of member tenants.
func breakpointsForClusterSize(memberCount int) breakpointSet {
	switch {
	case memberCount <= 1:
		return soloBreakpoints
	case memberCount <= 5:
		return smallClusterBreakpoints
	case memberCount <= 15:
		return midClusterBreakpoints
	default:
		return largeClusterBreakpoints
	}
}

// ReclassifyReport summarizes a bulk reclassification run.
type ReclassifyReport struct {
	Total    int          `json:"total"`
	Updated  int          `json:"updated"`
	Failed   int          `json:"failed"`
	ByBucket map[Size]int `json:"by_bucket"`
}

// Classifier derives market-size buckets for tenants, caching results with
// a TTL. Lookup failures (missing tenant or cluster) classify as small
// rather than failing closed, so a data gap never blocks scoring.
type Classifier struct {
	store  Store
	cache  ClassificationCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewClassifier creates a market-size classifier.
// A zero ttl uses DefaultClassificationTTL; a nil logger uses slog.Default.
func NewClassifier(store Store, cache ClassificationCache, ttl time.Duration, logger *slog.Logger) *Classifier {
	if ttl == 0 {
		ttl = DefaultClassificationTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Classify returns the market-size bucket for a tenant, consulting the
// cache first. On a cache miss the size is recomputed from the store and
// the cache refreshed. If the tenant or its cluster cannot be found, the
// tenant classifies as small.
func (c *Classifier) Classify(ctx context.Context, tenantID string) (Size, error) {
	if c.cache != nil {
		size, hit, err := c.cache.Get(ctx, tenantID)
		if err != nil {
			// Cache trouble is never fatal; fall through to the store.
			c.logger.Warn("classification cache read failed",
				"tenant_id", tenantID,
				"error", err)
		} else if hit {
			return size, nil
		}
	}

	size, err := c.compute(ctx, tenantID)
	if err != nil {
		return "", err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, tenantID, size, c.ttl); err != nil {
			c.logger.Warn("classification cache write failed",
				"tenant_id", tenantID,
				"error", err)
		}
	}
	return size, nil
}

// compute derives the market size from the store without touching the cache.
func (c *Classifier) compute(ctx context.Context, tenantID string) (Size, error) {
	tenant, err := c.store.GetTenant(ctx, tenantID)
	if err == ErrTenantNotFound {
		c.logger.Warn("tenant missing during classification, defaulting to small",
			"tenant_id", tenantID)
		return SizeSmall, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load tenant for classification: %w", err)
	}

	members, err := c.store.ClusterTenantIDs(ctx, tenant.ClusterID)
	if err == ErrClusterNotFound {
		c.logger.Warn("cluster missing during classification, defaulting to small",
			"tenant_id", tenantID,
			"cluster_id", tenant.ClusterID)
		return SizeSmall, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load cluster members: %w", err)
	}

	breakpoints := breakpointsForClusterSize(len(members))

	var count int
	if len(members) <= 1 {
		count, err = c.store.CountActiveListings(ctx, tenantID)
	} else {
		count, err = c.store.CountActiveListingsForTenants(ctx, members)
	}
	if err != nil {
		return "", fmt.Errorf("failed to count listings for classification: %w", err)
	}

	size := breakpoints.classify(count)
	c.logger.Debug("market size classified",
		"tenant_id", tenantID,
		"cluster_id", tenant.ClusterID,
		"cluster_members", len(members),
		"active_listings", count,
		"market_size", string(size))
	return size, nil
}

// ReclassifyAll recomputes the market size for every tenant, persists the
// derived size on the tenant row, and refreshes the cache. Per-tenant
// failures are counted and logged but do not abort the run.
func (c *Classifier) ReclassifyAll(ctx context.Context) (*ReclassifyReport, error) {
	tenantIDs, err := c.store.ListTenantIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants for reclassification: %w", err)
	}

	report := &ReclassifyReport{
		Total:    len(tenantIDs),
		ByBucket: make(map[Size]int),
	}

	for _, tenantID := range tenantIDs {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		size, err := c.compute(ctx, tenantID)
		if err != nil {
			report.Failed++
			c.logger.Error("failed to reclassify tenant",
				"tenant_id", tenantID,
				"error", err)
			continue
		}

		if err := c.store.UpdateTenantMarketSize(ctx, tenantID, size); err != nil {
			report.Failed++
			c.logger.Error("failed to persist tenant market size",
				"tenant_id", tenantID,
				"error", err)
			continue
		}

		if c.cache != nil {
			if err := c.cache.Set(ctx, tenantID, size, c.ttl); err != nil {
				c.logger.Warn("failed to refresh classification cache",
					"tenant_id", tenantID,
					"error", err)
			}
		}

		report.Updated++
		report.ByBucket[size]++
	}

	c.logger.Info("market reclassification completed",
		"total", report.Total,
		"updated", report.Updated,
		"failed", report.Failed)
	return report, nil
}
