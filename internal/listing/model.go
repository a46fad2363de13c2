// Package listing provides models and repositories for marketplace
// listings, their interaction history, and their targeting scope.
package listing

import (
	"errors"
	"time"

	"github.com/unilist/unilist/internal/market"
)

// Kind identifies an interaction type on a listing.
type Kind string

// Interaction kinds. Each (listing, actor, kind) pair may exist at most
// once; duplicates are rejected, not merged.
const (
	KindMessage  Kind = "message"
	KindShare    Kind = "share"
	KindBookmark Kind = "bookmark"
	KindRepost   Kind = "repost"
)

// AllKinds returns the interaction kinds in a stable order.
func AllKinds() []Kind {
	return []Kind{KindMessage, KindShare, KindBookmark, KindRepost}
}

// ValidKind reports whether k is a known interaction kind.
func ValidKind(k Kind) bool {
	switch k {
	case KindMessage, KindShare, KindBookmark, KindRepost:
		return true
	}
	return false
}

// DurationClass describes how long a listing is expected to stay relevant.
type DurationClass string

// Duration classes.
const (
	DurationOneTime   DurationClass = "one-time"
	DurationEvent     DurationClass = "event"
	DurationRecurring DurationClass = "recurring"
)

// ValidDurationClass reports whether d is a known duration class.
func ValidDurationClass(d DurationClass) bool {
	switch d {
	case DurationOneTime, DurationEvent, DurationRecurring:
		return true
	}
	return false
}

// Score anchors. Every listing starts at BaseScore and the final score is
// clamped to [0, MaxScore], except while the new-listing boost pins it to
// MaxScore.
const (
	BaseScore = 25.0
	MaxScore  = 50.0
)

// Common errors for listing operations.
var (
	ErrListingNotFound      = errors.New("listing not found")
	ErrDuplicateInteraction = errors.New("interaction already recorded")
	ErrInteractionNotFound  = errors.New("interaction not found")
	ErrScopeNotFound        = errors.New("listing scope not found")
	ErrVersionConflict      = errors.New("listing version conflict")
)

// Listing is a marketplace post. Interaction counters are mutated only by
// the interaction pipeline; FinalScore and RelativeGrade are owned by the
// scoring and grading engines. Version guards concurrent score updates.
type Listing struct {
	ID            string        `json:"id"`
	TenantID      string        `json:"tenant_id"`
	Title         string        `json:"title"`
	DurationClass DurationClass `json:"duration_class"`

	Messages  int `json:"messages"`
	Shares    int `json:"shares"`
	Bookmarks int `json:"bookmarks"`
	Reposts   int `json:"reposts"`

	BaseScore        float64     `json:"base_score"`
	FinalScore       float64     `json:"final_score"`
	RelativeGrade    *string     `json:"relative_grade,omitempty"`
	MarketSize       market.Size `json:"market_size"`
	ReviewScoreBonus float64     `json:"review_score_bonus"`

	Active  bool  `json:"active"`
	Version int64 `json:"version"`

	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`
}

// Counts returns the interaction counters keyed by kind.
func (l *Listing) Counts() map[Kind]int {
	return map[Kind]int{
		KindMessage:  l.Messages,
		KindShare:    l.Shares,
		KindBookmark: l.Bookmarks,
		KindRepost:   l.Reposts,
	}
}

// TotalInteractions returns the sum of all interaction counters.
func (l *Listing) TotalInteractions() int {
	return l.Messages + l.Shares + l.Bookmarks + l.Reposts
}

// AgeHours returns the listing's age in hours at the given instant.
func (l *Listing) AgeHours(now time.Time) float64 {
	return now.Sub(l.CreatedAt).Hours()
}

// AgeDays returns the listing's age in days at the given instant.
func (l *Listing) AgeDays(now time.Time) float64 {
	return l.AgeHours(now) / 24.0
}

// Interaction is one engagement event on a listing. Append-only.
type Interaction struct {
	ListingID string    `json:"listing_id"`
	ActorID   string    `json:"actor_id"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// Scope records which tenants a listing targets. PrimaryTenantID is the
// tenant whose market bucket the listing is graded in.
type Scope struct {
	ListingID       string   `json:"listing_id"`
	TenantIDs       []string `json:"tenant_ids"`
	PrimaryTenantID string   `json:"primary_tenant_id"`
}

// Windows used when splitting interaction history for scoring.
const (
	// RecentWindow separates recent from historical engagement for the
	// sustained-engagement evaluator.
	RecentWindow = 7 * 24 * time.Hour

	// RepostWindow bounds which reposts count as recent for the
	// amplification boost.
	RepostWindow = 72 * time.Hour
)

// InteractionStats is the aggregate view of a listing's interaction
// history that the score aggregator consumes.
type InteractionStats struct {
	Counts        map[Kind]int `json:"counts"`
	Total         int          `json:"total"`
	Recent        int          `json:"recent"`
	Historical    int          `json:"historical"`
	TotalReposts  int          `json:"total_reposts"`
	RecentReposts int          `json:"recent_reposts"`

	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`
}
