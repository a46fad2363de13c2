// Package idempotency stores keys that make listing creates safe to retry.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Key statuses.
//
// StatusCompleted means the create finished and its response is cached.
// StatusProcessing marks a key as in-flight; the Go code does not set it
// yet, but the database CHECK constraint lists both values, so the
// constant must stay in sync with the schema.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

// MaxKeyLength bounds client-chosen keys.
const MaxKeyLength = 64

var (
	ErrKeyNotFound = errors.New("idempotency key not found")
	ErrKeyExists   = errors.New("idempotency key already exists")
	ErrInvalidKey  = errors.New("invalid idempotency key")
	ErrKeyTooLong  = errors.New("idempotency key exceeds maximum length of 64 characters")
)

// IdempotencyKey is a stored key together with the response it caches.
// ListingID links the key to the listing the guarded create produced.
type IdempotencyKey struct {
	Key                string    `json:"key"`
	Method             string    `json:"method"`
	Route              string    `json:"route"`
	CreatedAt          time.Time `json:"created_at"`
	ListingID          *string   `json:"listing_id,omitempty"`
	ResponseHash       string    `json:"response_hash"`
	Status             string    `json:"status"`
	ResponseBody       string    `json:"response_body"`
	ResponseStatusCode int       `json:"response_status_code"`
}

// ValidateKey rejects empty keys and keys longer than MaxKeyLength.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}

// ComputeResponseHash hashes a cached response body so replays can be
// checked against what was originally stored.
func ComputeResponseHash(responseBody string) string {
	sum := sha256.Sum256([]byte(responseBody))
	return hex.EncodeToString(sum[:])
}

// Repository persists idempotency keys.
type Repository interface {
	// Get returns the record for key, or ErrKeyNotFound.
	Get(key string) (*IdempotencyKey, error)

	// Store saves a new record; the first writer wins and later
	// attempts get ErrKeyExists.
	Store(record *IdempotencyKey) error

	// DeleteOlderThan drops records past their retention window and
	// reports how many went.
	DeleteOlderThan(duration time.Duration) (int64, error)
}
