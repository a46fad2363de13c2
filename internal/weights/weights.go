// Package weights provides the interaction weight tables used to score
// listings, with per-market-size context tables, cross-market
// normalization, and calibration-file support.
package weights

import (
	"github.com/unilist/unilist/internal/listing"
	"github.com/unilist/unilist/internal/market"
)

// Table maps each interaction kind to its scoring weight.
type Table struct {
	Message  float64 `json:"message"`
	Share    float64 `json:"share"`
	Bookmark float64 `json:"bookmark"`
	Repost   float64 `json:"repost"`
}

// For returns the weight for one interaction kind. Unknown kinds weigh 0.
func (t Table) For(kind listing.Kind) float64 {
	switch kind {
	case listing.KindMessage:
		return t.Message
	case listing.KindShare:
		return t.Share
	case listing.KindBookmark:
		return t.Bookmark
	case listing.KindRepost:
		return t.Repost
	default:
		return 0
	}
}

// Sum returns the total of all weights in the table.
func (t Table) Sum() float64 {
	return t.Message + t.Share + t.Bookmark + t.Repost
}

// WeightedCount computes the weighted sum of interaction counts under
// this table.
func (t Table) WeightedCount(counts map[listing.Kind]int) float64 {
	var total float64
	for kind, count := range counts {
		total += t.For(kind) * float64(count)
	}
	return total
}

// Tables holds the base weight table plus one context table per market
// size. The base table anchors cross-market normalization; the context
// tables shift emphasis between direct engagement and amplification as
// markets grow.
type Tables struct {
	Base    Table `json:"base"`
	Small   Table `json:"small"`
	Medium  Table `json:"medium"`
	Large   Table `json:"large"`
	Massive Table `json:"massive"`
}

// Context returns the weight table for a market size. An unknown size
// falls back to the base table.
func (t *Tables) Context(size market.Size) Table {
	switch size {
	case market.SizeSmall:
		return t.Small
	case market.SizeMedium:
		return t.Medium
	case market.SizeLarge:
		return t.Large
	case market.SizeMassive:
		return t.Massive
	default:
		return t.Base
	}
}

// NormalizationRatio returns the correction factor for one interaction
// profile under one market's context table: base-weighted total divided
// by context-weighted total. Multiplying the context-weighted sum by
// this ratio projects it back onto the base scale, so the choice of
// context table never changes a listing's comparable score. A zero
// context-weighted sum (no interactions) yields 1.0.
func (t *Tables) NormalizationRatio(size market.Size, counts map[listing.Kind]int) float64 {
	contextWeighted := t.Context(size).WeightedCount(counts)
	if contextWeighted == 0 {
		return 1.0
	}
	return t.Base.WeightedCount(counts) / contextWeighted
}

// DefaultTables returns the default weight configuration.
//
// The base table values direct conversation and amplification most:
// messages signal purchase intent, reposts spread reach, shares sit in
// between, bookmarks are passive. The context tables tilt that balance
// by market size: small markets reward direct engagement (messages,
// bookmarks) since reach matters less, while large and massive markets
// reward amplification (reposts, shares) since visibility is the
// bottleneck.
func DefaultTables() *Tables {
	return &Tables{
		Base: Table{
			Message:  3.0,
			Share:    2.5,
			Bookmark: 2.0,
			Repost:   4.0,
		},
		Small: Table{
			Message:  4.0,
			Share:    2.0,
			Bookmark: 2.5,
			Repost:   3.0,
		},
		Medium: Table{
			Message:  3.5,
			Share:    2.5,
			Bookmark: 2.0,
			Repost:   3.5,
		},
		Large: Table{
			Message:  2.5,
			Share:    3.0,
			Bookmark: 1.5,
			Repost:   4.5,
		},
		Massive: Table{
			Message:  2.0,
			Share:    3.5,
			Bookmark: 1.5,
			Repost:   5.0,
		},
	}
}
