// Package market provides tenant market-size classification for the
// ranking and grading engine. Tenants (universities) are bucketed into
// population-size categories from their cluster membership and active
// listing density.
package market

import (
	"errors"
	"time"
)

// Size is a market-size bucket. Listings are weighted and graded within
// their tenant's bucket so that small campuses and massive networks are
// never compared against each other directly.
type Size string

// Market-size buckets, smallest to largest.
const (
	SizeSmall   Size = "small"
	SizeMedium  Size = "medium"
	SizeLarge   Size = "large"
	SizeMassive Size = "massive"
)

// AllSizes returns the market-size buckets in ascending order.
// The slice is a fresh copy and safe for callers to modify.
func AllSizes() []Size {
	return []Size{SizeSmall, SizeMedium, SizeLarge, SizeMassive}
}

// ValidSize reports whether s is a known market-size bucket.
func ValidSize(s Size) bool {
	switch s {
	case SizeSmall, SizeMedium, SizeLarge, SizeMassive:
		return true
	}
	return false
}

// Lookup errors for tenant and cluster data.
var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrClusterNotFound = errors.New("cluster not found")
)

// Tenant represents a university on the platform. MarketSize is derived
// state owned by the Classifier; nothing else writes it.
type Tenant struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Population int       `json:"population"`
	ClusterID  string    `json:"cluster_id"`
	MarketSize Size      `json:"market_size"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Cluster groups tenants whose individual listing density is too small
// to classify alone.
type Cluster struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
