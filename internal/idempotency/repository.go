package idempotency

import (
	"sync"
	"time"
)

// InMemoryRepository keeps idempotency keys in a map. The API tests and
// local development run on it; production uses PostgresRepository.
type InMemoryRepository struct {
	mu   sync.RWMutex
	keys map[string]*IdempotencyKey
}

// NewInMemoryRepository creates an empty in-memory key store.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		keys: make(map[string]*IdempotencyKey),
	}
}

// Get returns a copy of the record for key, or ErrKeyNotFound.
func (r *InMemoryRepository) Get(key string) (*IdempotencyKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.keys[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return r.copyRecord(record), nil
}

// Store saves record under its key. The first create wins; a concurrent
// retry that loses the race gets ErrKeyExists and replays the stored
// response instead.
func (r *InMemoryRepository) Store(record *IdempotencyKey) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.keys[record.Key]; exists {
		return ErrKeyExists
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	// Copies on both write and read keep caller mutations out of the map.
	r.keys[record.Key] = r.copyRecord(record)
	return nil
}

// DeleteOlderThan drops records created before now minus duration.
func (r *InMemoryRepository) DeleteOlderThan(duration time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-duration)
	var deleted int64
	for key, record := range r.keys {
		if record.CreatedAt.Before(cutoff) {
			delete(r.keys, key)
			deleted++
		}
	}
	return deleted, nil
}

func (r *InMemoryRepository) copyRecord(record *IdempotencyKey) *IdempotencyKey {
	if record == nil {
		return nil
	}
	copied := *record
	if record.ListingID != nil {
		listingID := *record.ListingID
		copied.ListingID = &listingID
	}
	return &copied
}
