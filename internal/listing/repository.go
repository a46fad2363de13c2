package listing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unilist/unilist/internal/market"
)

// Repository defines the data operations the ranking and grading engine
// needs from the listing store.
type Repository interface {
	// Create inserts a new listing with a generated UUID. New listings
	// start at BaseScore with no grade.
	Create(ctx context.Context, l *Listing) error

	// GetByID retrieves a listing by ID, including inactive ones.
	GetByID(ctx context.Context, id string) (*Listing, error)

	// Deactivate soft-removes a listing; inactive listings are excluded
	// from all scoring and grading.
	Deactivate(ctx context.Context, id string) error

	// ListActiveByMarket returns all active listings in a market bucket
	// ordered by final_score descending (ID ascending on ties).
	ListActiveByMarket(ctx context.Context, size market.Size) ([]*Listing, error)

	// UpdateScore persists a recomputed final score using optimistic
	// versioning. Returns ErrVersionConflict if the row changed since the
	// caller read it.
	UpdateScore(ctx context.Context, id string, expectedVersion int64, finalScore float64) error

	// UpdateGrade assigns a relative grade to one listing.
	UpdateGrade(ctx context.Context, id string, grade string) error

	// BulkUpdateGrades assigns grades to many listings in one pass.
	// Unknown IDs are skipped; returns the number of rows updated.
	BulkUpdateGrades(ctx context.Context, grades map[string]string) (int, error)

	// UpdateMarketSize refreshes the denormalized market bucket on a listing.
	UpdateMarketSize(ctx context.Context, id string, size market.Size) error

	// AddInteraction appends one interaction and bumps the matching
	// counter. Returns ErrDuplicateInteraction if the (listing, actor,
	// kind) pair already exists.
	AddInteraction(ctx context.Context, in Interaction) error

	// RemoveInteraction deletes one interaction and decrements the
	// matching counter. Returns ErrInteractionNotFound if absent.
	RemoveInteraction(ctx context.Context, listingID, actorID string, kind Kind) error

	// InteractionStats aggregates a listing's interaction history as of now.
	InteractionStats(ctx context.Context, listingID string, now time.Time) (*InteractionStats, error)

	// SetScope stores or replaces the targeting scope of a listing.
	SetScope(ctx context.Context, s Scope) error

	// GetScope returns the targeting scope of a listing.
	// Returns ErrScopeNotFound if the listing has no scope record.
	GetScope(ctx context.Context, listingID string) (*Scope, error)
}

// interactionKey identifies one (listing, actor, kind) interaction.
type interactionKey struct {
	listingID string
	actorID   string
	kind      Kind
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu           sync.RWMutex
	listings     map[string]*Listing
	interactions map[interactionKey]Interaction
	scopes       map[string]*Scope
	now          func() time.Time
}

// NewInMemoryRepository creates a new in-memory listing repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		listings:     make(map[string]*Listing),
		interactions: make(map[interactionKey]Interaction),
		scopes:       make(map[string]*Scope),
		now:          time.Now,
	}
}

// SetClock overrides the repository clock. Test hook.
func (r *InMemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Create inserts a new listing with a generated UUID.
func (r *InMemoryRepository) Create(ctx context.Context, l *Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	l.BaseScore = BaseScore
	if l.FinalScore == 0 {
		l.FinalScore = BaseScore
	}
	l.RelativeGrade = nil
	l.Active = true
	l.Version = 1

	listingCopy := *l
	r.listings[l.ID] = &listingCopy
	return nil
}

// GetByID retrieves a listing by ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.listings[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	listingCopy := *l
	return &listingCopy, nil
}

// Deactivate soft-removes a listing.
func (r *InMemoryRepository) Deactivate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	if !ok || !l.Active {
		return ErrListingNotFound
	}
	l.Active = false
	l.UpdatedAt = r.now()
	return nil
}

// ListActiveByMarket returns active listings in a bucket, best score first.
func (r *InMemoryRepository) ListActiveByMarket(ctx context.Context, size market.Size) ([]*Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*Listing
	for _, l := range r.listings {
		if !l.Active || l.MarketSize != size {
			continue
		}
		listingCopy := *l
		results = append(results, &listingCopy)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// UpdateScore persists a recomputed final score with optimistic versioning.
func (r *InMemoryRepository) UpdateScore(ctx context.Context, id string, expectedVersion int64, finalScore float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	if !ok {
		return ErrListingNotFound
	}
	if l.Version != expectedVersion {
		return ErrVersionConflict
	}
	l.FinalScore = finalScore
	l.Version++
	l.UpdatedAt = r.now()
	return nil
}

// UpdateGrade assigns a relative grade to one listing.
func (r *InMemoryRepository) UpdateGrade(ctx context.Context, id string, grade string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	if !ok {
		return ErrListingNotFound
	}
	l.RelativeGrade = &grade
	l.UpdatedAt = r.now()
	return nil
}

// BulkUpdateGrades assigns grades to many listings in one pass.
func (r *InMemoryRepository) BulkUpdateGrades(ctx context.Context, grades map[string]string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	updated := 0
	now := r.now()
	for id, grade := range grades {
		l, ok := r.listings[id]
		if !ok {
			continue
		}
		g := grade
		l.RelativeGrade = &g
		l.UpdatedAt = now
		updated++
	}
	return updated, nil
}

// UpdateMarketSize refreshes the denormalized market bucket on a listing.
func (r *InMemoryRepository) UpdateMarketSize(ctx context.Context, id string, size market.Size) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	if !ok {
		return ErrListingNotFound
	}
	l.MarketSize = size
	l.UpdatedAt = r.now()
	return nil
}

// AddInteraction appends one interaction and bumps the matching counter.
func (r *InMemoryRepository) AddInteraction(ctx context.Context, in Interaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[in.ListingID]
	if !ok || !l.Active {
		return ErrListingNotFound
	}

	key := interactionKey{in.ListingID, in.ActorID, in.Kind}
	if _, exists := r.interactions[key]; exists {
		return ErrDuplicateInteraction
	}

	if in.CreatedAt.IsZero() {
		in.CreatedAt = r.now()
	}
	r.interactions[key] = in

	bumpCounter(l, in.Kind, 1)
	at := in.CreatedAt
	l.LastInteractionAt = &at
	l.UpdatedAt = r.now()
	return nil
}

// RemoveInteraction deletes one interaction and decrements the counter.
func (r *InMemoryRepository) RemoveInteraction(ctx context.Context, listingID, actorID string, kind Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[listingID]
	if !ok {
		return ErrListingNotFound
	}

	key := interactionKey{listingID, actorID, kind}
	if _, exists := r.interactions[key]; !exists {
		return ErrInteractionNotFound
	}
	delete(r.interactions, key)

	bumpCounter(l, kind, -1)
	l.UpdatedAt = r.now()
	return nil
}

// InteractionStats aggregates a listing's interaction history as of now.
func (r *InMemoryRepository) InteractionStats(ctx context.Context, listingID string, now time.Time) (*InteractionStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.listings[listingID]; !ok {
		return nil, ErrListingNotFound
	}

	stats := &InteractionStats{
		Counts: make(map[Kind]int),
	}
	recentCutoff := now.Add(-RecentWindow)
	repostCutoff := now.Add(-RepostWindow)

	for key, in := range r.interactions {
		if key.listingID != listingID {
			continue
		}
		stats.Counts[in.Kind]++
		stats.Total++
		if in.CreatedAt.After(recentCutoff) {
			stats.Recent++
		}
		if in.Kind == KindRepost {
			stats.TotalReposts++
			if in.CreatedAt.After(repostCutoff) {
				stats.RecentReposts++
			}
		}
		if stats.LastInteractionAt == nil || in.CreatedAt.After(*stats.LastInteractionAt) {
			at := in.CreatedAt
			stats.LastInteractionAt = &at
		}
	}
	stats.Historical = stats.Total - stats.Recent
	return stats, nil
}

// SetScope stores or replaces the targeting scope of a listing.
func (r *InMemoryRepository) SetScope(ctx context.Context, s Scope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[s.ListingID]; !ok {
		return ErrListingNotFound
	}
	scopeCopy := Scope{
		ListingID:       s.ListingID,
		TenantIDs:       append([]string(nil), s.TenantIDs...),
		PrimaryTenantID: s.PrimaryTenantID,
	}
	r.scopes[s.ListingID] = &scopeCopy
	return nil
}

// GetScope returns the targeting scope of a listing.
func (r *InMemoryRepository) GetScope(ctx context.Context, listingID string) (*Scope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scopes[listingID]
	if !ok {
		return nil, ErrScopeNotFound
	}
	scopeCopy := Scope{
		ListingID:       s.ListingID,
		TenantIDs:       append([]string(nil), s.TenantIDs...),
		PrimaryTenantID: s.PrimaryTenantID,
	}
	return &scopeCopy, nil
}

// bumpCounter adjusts the counter matching kind by delta, flooring at zero.
func bumpCounter(l *Listing, kind Kind, delta int) {
	switch kind {
	case KindMessage:
		l.Messages = max(0, l.Messages+delta)
	case KindShare:
		l.Shares = max(0, l.Shares+delta)
	case KindBookmark:
		l.Bookmarks = max(0, l.Bookmarks+delta)
	case KindRepost:
		l.Reposts = max(0, l.Reposts+delta)
	}
}
