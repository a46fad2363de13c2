package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultClassificationTTL is how long a market-size classification stays
// cached before it is recomputed from the store.
const DefaultClassificationTTL = time.Hour

// classificationKeyPrefix namespaces classification entries in the cache.
const classificationKeyPrefix = "market:size:"

// ClassificationCache stores derived market-size classifications with a TTL.
// The cache is never authoritative: a miss always triggers recomputation
// from the store.
type ClassificationCache interface {
	// Get returns the cached size for a tenant. The second return value is
	// false on a miss; a miss is never an error.
	Get(ctx context.Context, tenantID string) (Size, bool, error)

	// Set stores a classification with the given TTL.
	Set(ctx context.Context, tenantID string, size Size, ttl time.Duration) error

	// Invalidate removes the cached classification for a tenant.
	Invalidate(ctx context.Context, tenantID string) error
}

// RedisClassificationCache implements ClassificationCache backed by Redis.
type RedisClassificationCache struct {
	client *redis.Client
}

// NewRedisClassificationCache creates a Redis-backed classification cache.
func NewRedisClassificationCache(client *redis.Client) *RedisClassificationCache {
	return &RedisClassificationCache{client: client}
}

// Get returns the cached size for a tenant.
func (c *RedisClassificationCache) Get(ctx context.Context, tenantID string) (Size, bool, error) {
	val, err := c.client.Get(ctx, classificationKeyPrefix+tenantID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read classification cache: %w", err)
	}
	size := Size(val)
	if !ValidSize(size) {
		// Treat corrupt entries as misses so they get recomputed.
		return "", false, nil
	}
	return size, true, nil
}

// Set stores a classification with the given TTL.
func (c *RedisClassificationCache) Set(ctx context.Context, tenantID string, size Size, ttl time.Duration) error {
	if err := c.client.Set(ctx, classificationKeyPrefix+tenantID, string(size), ttl).Err(); err != nil {
		return fmt.Errorf("failed to write classification cache: %w", err)
	}
	return nil
}

// Invalidate removes the cached classification for a tenant.
func (c *RedisClassificationCache) Invalidate(ctx context.Context, tenantID string) error {
	if err := c.client.Del(ctx, classificationKeyPrefix+tenantID).Err(); err != nil {
		return fmt.Errorf("failed to invalidate classification cache: %w", err)
	}
	return nil
}

// cacheEntry is an in-memory classification with its expiry.
type cacheEntry struct {
	size      Size
	expiresAt time.Time
}

// InMemoryClassificationCache implements ClassificationCache in memory.
// Used for testing and single-node development. Thread-safe via RWMutex.
type InMemoryClassificationCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewInMemoryClassificationCache creates a new in-memory classification cache.
func NewInMemoryClassificationCache() *InMemoryClassificationCache {
	return &InMemoryClassificationCache{
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached size for a tenant, honoring expiry.
func (c *InMemoryClassificationCache) Get(ctx context.Context, tenantID string) (Size, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[tenantID]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false, nil
	}
	return entry.size, true, nil
}

// Set stores a classification with the given TTL.
func (c *InMemoryClassificationCache) Set(ctx context.Context, tenantID string, size Size, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tenantID] = cacheEntry{
		size:      size,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Invalidate removes the cached classification for a tenant.
func (c *InMemoryClassificationCache) Invalidate(ctx context.Context, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID)
	return nil
}
