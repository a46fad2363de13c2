// Package grading converts listing scores into relative letter grades
// per market bucket using percentile thresholds recomputed as the
// population shifts.
package grading

import (
	"time"

	"github.com/unilist/unilist/internal/market"
)

// Letter grades, best to worst.
const (
	GradeA = "A"
	GradeB = "B"
	GradeC = "C"
	GradeD = "D"
)

// Thresholds is a per-bucket grade-threshold snapshot: the three score
// cut-points and the population they were computed from. Derived state;
// always reconstructible from the listing rows.
type Thresholds struct {
	MarketSize market.Size `json:"market_size"`
	ACut       float64     `json:"a_cut"`
	BCut       float64     `json:"b_cut"`
	CCut       float64     `json:"c_cut"`
	Population int         `json:"population"`
	ComputedAt time.Time   `json:"computed_at"`
}

// ComputeThresholds derives percentile cut-points from scores sorted
// descending (best first). The top 20% grade A, the next 30% B, the
// next 30% C, and the bottom 20% D. Returns nil for an empty bucket.
//
// Each cut is the score at rank ⌊fraction×n⌋, and GradeFor compares
// with >=, so the listing holding the cut rank itself takes the better
// grade. With n distinct scores the A bracket therefore holds
// ⌊0.2n⌋+1 listings, rounding in the seller's favor at every boundary.
func ComputeThresholds(size market.Size, sortedScores []float64, now time.Time) *Thresholds {
	n := len(sortedScores)
	if n == 0 {
		return nil
	}

	return &Thresholds{
		MarketSize: size,
		ACut:       sortedScores[rankIndex(n, 0.2)],
		BCut:       sortedScores[rankIndex(n, 0.5)],
		CCut:       sortedScores[rankIndex(n, 0.8)],
		Population: n,
		ComputedAt: now,
	}
}

// rankIndex returns ⌊fraction×n⌋ clamped to a valid index.
func rankIndex(n int, fraction float64) int {
	idx := int(fraction * float64(n))
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// GradeFor maps a score onto a letter grade under these thresholds.
// Boundary scores take the better grade, so the cut-point listing itself
// lands in the bracket it anchors.
func (t *Thresholds) GradeFor(score float64) string {
	switch {
	case score >= t.ACut:
		return GradeA
	case score >= t.BCut:
		return GradeB
	case score >= t.CCut:
		return GradeC
	default:
		return GradeD
	}
}
