package scoring

import "math"

// NewListingWindowHours is the visibility window during which a new
// listing's score is pinned to the maximum regardless of engagement.
const NewListingWindowHours = 24.0

// Repost amplification constants. The multiplier scales the
// engagement-impact term; the bonus is added as flat points. Both grow
// logarithmically so repost farming hits diminishing returns fast.
const (
	repostBaseMultiplier = 1.5
	repostLogMultiplier  = 0.3
	repostLogBonus       = 2.0
	repostRecentBonus    = 5.0 * 0.2
	repostBonusCap       = 10.0
)

// Zero-interaction decay penalty constants.
const (
	penaltyRatePerDay   = 0.10
	penaltyPerDayCap    = 8.0
	penaltyScoreCeiling = 0.16
)

// NewListingPinActive reports whether the new-listing boost pins the
// score to the maximum at the given age.
func NewListingPinActive(ageHours float64) bool {
	return ageHours >= 0 && ageHours < NewListingWindowHours
}

// RepostBoost is the amplification applied for reposts.
type RepostBoost struct {
	Multiplier float64 `json:"multiplier"`
	Bonus      float64 `json:"bonus"`
}

// ComputeRepostBoost derives the amplification boost from total reposts
// and reposts within the recent window. Zero total reposts yields a
// neutral boost (multiplier 1.0, no bonus points).
func ComputeRepostBoost(totalReposts, recentReposts int) RepostBoost {
	if totalReposts <= 0 {
		return RepostBoost{Multiplier: 1.0}
	}

	logTerm := math.Log(float64(totalReposts) + 1)
	recentFraction := float64(recentReposts) / float64(totalReposts)

	bonus := logTerm*repostLogBonus + recentFraction*repostRecentBonus
	if bonus > repostBonusCap {
		bonus = repostBonusCap
	}

	return RepostBoost{
		Multiplier: repostBaseMultiplier + logTerm*repostLogMultiplier,
		Bonus:      bonus,
	}
}

// ZeroInteractionPenalty computes the decay penalty for a listing that
// has gone fullDays complete days without any interaction. The per-day
// accumulation is capped, and the total is further bounded to a fixed
// fraction of the current score so decay erodes rather than erases.
// Callers clamp the subtracted result at zero.
func ZeroInteractionPenalty(currentScore float64, fullDays int) float64 {
	if fullDays <= 0 || currentScore <= 0 {
		return 0
	}

	penalty := currentScore * penaltyRatePerDay * float64(fullDays)
	if penalty > penaltyPerDayCap {
		penalty = penaltyPerDayCap
	}
	if ceiling := currentScore * penaltyScoreCeiling; penalty > ceiling {
		penalty = ceiling
	}
	return penalty
}
