package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unilist/unilist/internal/market"
)

// DefaultThresholdTTL is how long a threshold snapshot stays cached.
// Short by design: grading is a percentile approximation and staleness
// up to the TTL is acceptable.
const DefaultThresholdTTL = 5 * time.Minute

// thresholdKeyPrefix namespaces threshold snapshots in the cache.
const thresholdKeyPrefix = "grading:thresholds:"

// ThresholdCache stores grade-threshold snapshots per market bucket.
// Never authoritative: a miss always triggers a full bucket recompute.
type ThresholdCache interface {
	// Get returns the cached snapshot for a bucket. The second return
	// value is false on a miss; a miss is never an error.
	Get(ctx context.Context, size market.Size) (*Thresholds, bool, error)

	// Set stores a snapshot with the given TTL.
	Set(ctx context.Context, t *Thresholds, ttl time.Duration) error

	// Invalidate removes the cached snapshot for a bucket.
	Invalidate(ctx context.Context, size market.Size) error
}

// RedisThresholdCache implements ThresholdCache backed by Redis, storing
// snapshots as JSON.
type RedisThresholdCache struct {
	client *redis.Client
}

// NewRedisThresholdCache creates a Redis-backed threshold cache.
func NewRedisThresholdCache(client *redis.Client) *RedisThresholdCache {
	return &RedisThresholdCache{client: client}
}

// Get returns the cached snapshot for a bucket.
func (c *RedisThresholdCache) Get(ctx context.Context, size market.Size) (*Thresholds, bool, error) {
	val, err := c.client.Get(ctx, thresholdKeyPrefix+string(size)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read threshold cache: %w", err)
	}

	var t Thresholds
	if err := json.Unmarshal([]byte(val), &t); err != nil {
		// Treat corrupt entries as misses so they get recomputed.
		return nil, false, nil
	}
	return &t, true, nil
}

// Set stores a snapshot with the given TTL.
func (c *RedisThresholdCache) Set(ctx context.Context, t *Thresholds, ttl time.Duration) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}
	if err := c.client.Set(ctx, thresholdKeyPrefix+string(t.MarketSize), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write threshold cache: %w", err)
	}
	return nil
}

// Invalidate removes the cached snapshot for a bucket.
func (c *RedisThresholdCache) Invalidate(ctx context.Context, size market.Size) error {
	if err := c.client.Del(ctx, thresholdKeyPrefix+string(size)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate threshold cache: %w", err)
	}
	return nil
}

// thresholdEntry is an in-memory snapshot with its expiry.
type thresholdEntry struct {
	thresholds Thresholds
	expiresAt  time.Time
}

// InMemoryThresholdCache implements ThresholdCache in memory. Used for
// testing and single-node development. Thread-safe via RWMutex.
type InMemoryThresholdCache struct {
	mu      sync.RWMutex
	entries map[market.Size]thresholdEntry
}

// NewInMemoryThresholdCache creates a new in-memory threshold cache.
func NewInMemoryThresholdCache() *InMemoryThresholdCache {
	return &InMemoryThresholdCache{
		entries: make(map[market.Size]thresholdEntry),
	}
}

// Get returns the cached snapshot for a bucket, honoring expiry.
func (c *InMemoryThresholdCache) Get(ctx context.Context, size market.Size) (*Thresholds, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[size]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	t := entry.thresholds
	return &t, true, nil
}

// Set stores a snapshot with the given TTL.
func (c *InMemoryThresholdCache) Set(ctx context.Context, t *Thresholds, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[t.MarketSize] = thresholdEntry{
		thresholds: *t,
		expiresAt:  time.Now().Add(ttl),
	}
	return nil
}

// Invalidate removes the cached snapshot for a bucket.
func (c *InMemoryThresholdCache) Invalidate(ctx context.Context, size market.Size) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, size)
	return nil
}
