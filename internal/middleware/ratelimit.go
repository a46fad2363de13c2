// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig is a fixed-window budget: RequestsPerWindow requests
// per WindowDuration, both of which must be positive.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Validate rejects non-positive budgets and windows.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("RequestsPerWindow must be > 0 (got %d)", c.RequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("WindowDuration must be > 0 (got %s)", c.WindowDuration)
	}
	return nil
}

// The default budgets step down with cost: reads are cheap, interaction
// writes trigger a rescore, and the admin sweeps walk every active
// listing in a market.

// DefaultGlobalLimit returns the general API budget, 100 per minute.
func DefaultGlobalLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 100, WindowDuration: time.Minute}
}

// DefaultInteractionLimit returns the interaction-write budget, 30 per minute.
func DefaultInteractionLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 30, WindowDuration: time.Minute}
}

// DefaultAdminLimit returns the admin budget, 10 per minute.
func DefaultAdminLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute}
}

// RateLimitStore holds rate-limit state. The server uses the Redis
// store so all replicas share budgets; tests use the in-memory one.
type RateLimitStore interface {
	// Allow reports whether a request under key fits its budget, and if
	// not, how many seconds remain until the window resets.
	Allow(ctx context.Context, key string, config RateLimitConfig) (allowed bool, retryAfter int)
}

type bucket struct {
	count     int
	windowEnd time.Time
}

// InMemoryRateLimitStore is a fixed-window counter over a map. Safe for
// concurrent use.
type InMemoryRateLimitStore struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

// NewInMemoryRateLimitStore creates an empty in-memory store.
func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{
		buckets: make(map[string]*bucket),
	}
}

// Allow implements RateLimitStore.
func (s *InMemoryRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	b, exists := s.buckets[key]
	if !exists || now.After(b.windowEnd) {
		s.buckets[key] = &bucket{
			count:     1,
			windowEnd: now.Add(config.WindowDuration),
		}
		return true, 0
	}

	if b.count < config.RequestsPerWindow {
		b.count++
		return true, 0
	}

	retryAfter := int(b.windowEnd.Sub(now).Seconds())
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, retryAfter
}

// Cleanup drops expired buckets. Call it periodically, every few window
// lengths, or the map grows with every actor ever seen.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, b := range s.buckets {
		if now.After(b.windowEnd) {
			delete(s.buckets, key)
		}
	}
}

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc keys budgets on client IP. Behind the campus load balancer
// the first X-Forwarded-For hop is the client.
func IPKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			// RemoteAddr may arrive without a port.
			return r.RemoteAddr
		}
		return host
	}
}

// ActorKeyFunc keys budgets on the authenticated actor, falling back to
// IP for anonymous traffic. A student on wifi and on mobile data spends
// one budget; two students behind the same NAT spend two.
func ActorKeyFunc() KeyFunc {
	ipFunc := IPKeyFunc()
	return func(r *http.Request) string {
		if actorID := GetActorID(r.Context()); actorID != "" {
			return "actor:" + actorID
		}
		return "ip:" + ipFunc(r)
	}
}

// keyType extracts the key's leading segment for metrics labels.
func keyType(key string) string {
	if idx := strings.Index(key, ":"); idx != -1 {
		return key[:idx]
	}
	return "unknown"
}

// RateLimiter rejects requests over budget with 429, Retry-After, and an
// X-RateLimit-Reset Unix timestamp. metrics may be nil.
func RateLimiter(store RateLimitStore, config RateLimitConfig, keyFunc KeyFunc, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			allowed, retryAfter := store.Allow(r.Context(), key, config)

			if metrics != nil {
				metrics.IncRateLimitRequests(r.URL.Path, keyType(key))
			}

			if !allowed {
				if metrics != nil {
					metrics.IncRateLimitBlocked(r.URL.Path, keyType(key))
				}
				r = r.WithContext(SetErrorCode(r.Context(), "rate_limit_exceeded"))

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				resetTime := time.Now().Add(time.Duration(retryAfter) * time.Second).Unix()
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
