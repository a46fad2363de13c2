package middleware

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// ratelimitKeyPrefix namespaces rate limit counters in Redis.
const ratelimitKeyPrefix = "ratelimit:"

// RedisRateLimitStore implements fixed-window rate limiting backed by Redis,
// so limits are shared across API replicas. It fails open: if Redis is
// unreachable the request is allowed rather than blocked.
type RedisRateLimitStore struct {
	client *redis.Client
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// Allow checks if a request for the given key should be allowed.
// Returns whether the request is allowed, how many requests remain in the
// current window, and (when blocked) the number of seconds until reset.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (allowed bool, remaining int, retryAfter int) {
	redisKey := ratelimitKeyPrefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	// Set the expiry only when the key is new so the window doesn't slide.
	pipe.ExpireNX(ctx, redisKey, config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.WarnContext(ctx, "rate limit store unavailable, failing open",
			"error", err, "key", key)
		return true, config.RequestsPerWindow, 0
	}

	count := int(incr.Val())
	if count <= config.RequestsPerWindow {
		return true, config.RequestsPerWindow - count, 0
	}

	ttl, err := s.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		ttl = config.WindowDuration
	}
	retryAfter = int(ttl.Seconds())
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, 0, retryAfter
}

// redisStoreAdapter bridges RedisRateLimitStore onto the two-value
// RateLimitStore interface used by the RateLimiter middleware.
type redisStoreAdapter struct {
	store *RedisRateLimitStore
}

// AsStore adapts the Redis limiter to the RateLimitStore interface.
func (s *RedisRateLimitStore) AsStore() RateLimitStore {
	return redisStoreAdapter{store: s}
}

func (a redisStoreAdapter) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	allowed, _, retryAfter := a.store.Allow(ctx, key, config)
	return allowed, retryAfter
}
