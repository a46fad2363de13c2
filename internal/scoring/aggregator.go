package scoring

import (
	"time"

	"github.com/unilist/unilist/internal/listing"
	"github.com/unilist/unilist/internal/market"
	"github.com/unilist/unilist/internal/weights"
)

// recurringReviewBonusCap bounds how many points a recurring listing's
// review score can add.
const recurringReviewBonusCap = 5.0

// Input carries everything the aggregator needs to score one listing.
// Now is supplied by the caller so the computation stays idempotent:
// re-running on identical inputs yields an identical score.
type Input struct {
	Listing    *listing.Listing
	Stats      *listing.InteractionStats
	Scope      ScopeFactors
	MarketSize market.Size
	Now        time.Time
}

// Explain breaks a final score into its components so callers (and the
// feed service) can see why a listing ranks where it does.
type Explain struct {
	BaseScore          float64      `json:"base_score"`
	MarketSize         market.Size  `json:"market_size"`
	ContextWeighted    float64      `json:"context_weighted"`
	NormalizationRatio float64      `json:"normalization_ratio"`
	Scope              ScopeFactors `json:"scope"`
	TimeWeight         TimeWeight   `json:"time_weight"`
	EngagementImpact   float64      `json:"engagement_impact"`
	RecurringBonus     float64      `json:"recurring_bonus"`
	RepostBoost        RepostBoost  `json:"repost_boost"`
	DecayPenalty       float64      `json:"decay_penalty"`
	NewListingPinned   bool         `json:"new_listing_pinned"`
	FinalScore         float64      `json:"final_score"`
}

// Aggregator composes the weight registry, scope normalizer, time-decay
// evaluator, and boost calculators into one bounded final score.
type Aggregator struct {
	tables *weights.Tables
}

// NewAggregator creates a score aggregator. A nil tables uses the
// default weight configuration.
func NewAggregator(tables *weights.Tables) *Aggregator {
	if tables == nil {
		tables = weights.DefaultTables()
	}
	return &Aggregator{tables: tables}
}

// maxEngagementImpact caps the normalized engagement term before boosts
// so engagement alone can at most double the base score.
const maxEngagementImpact = listing.BaseScore

// Score computes a listing's final score and its explain breakdown.
//
// The pipeline: context-weighted engagement is projected back onto the
// base weight scale by the normalization ratio, adjusted for targeting
// scope, scaled by the time weight, and capped. Recurring listings add a
// capped review bonus. Reposts amplify the engagement term and add flat
// bonus points. The zero-interaction penalty then erodes the total.
// Listings under 24 hours old are pinned to the maximum; everything else
// clamps to [0, MaxScore].
func (a *Aggregator) Score(in Input) (float64, *Explain) {
	if in.Scope.EngagementThreshold <= 0 || in.Scope.NormalizationFactor <= 0 {
		in.Scope = NeutralFactors()
	}

	l := in.Listing
	stats := in.Stats
	if stats == nil {
		stats = &listing.InteractionStats{Counts: l.Counts()}
		for _, n := range stats.Counts {
			stats.Total += n
		}
		stats.TotalReposts = l.Reposts
		stats.LastInteractionAt = l.LastInteractionAt
	}

	explain := &Explain{
		BaseScore:  listing.BaseScore,
		MarketSize: in.MarketSize,
		Scope:      in.Scope,
	}

	ageDays := l.AgeDays(in.Now)

	explain.ContextWeighted = a.tables.Context(in.MarketSize).WeightedCount(stats.Counts)
	explain.NormalizationRatio = a.tables.NormalizationRatio(in.MarketSize, stats.Counts)
	explain.TimeWeight = EvaluateTimeWeight(ageDays, stats.Recent, stats.Historical, in.Scope.EngagementThreshold)

	impact := explain.ContextWeighted * explain.NormalizationRatio
	impact *= in.Scope.NormalizationFactor
	impact /= in.Scope.EngagementThreshold
	impact *= explain.TimeWeight.Multiplier
	if impact > maxEngagementImpact {
		impact = maxEngagementImpact
	}
	explain.EngagementImpact = impact

	if l.DurationClass == listing.DurationRecurring {
		explain.RecurringBonus = min(l.ReviewScoreBonus, recurringReviewBonusCap)
	}

	explain.RepostBoost = ComputeRepostBoost(stats.TotalReposts, stats.RecentReposts)

	score := listing.BaseScore +
		impact*explain.RepostBoost.Multiplier +
		explain.RecurringBonus +
		explain.RepostBoost.Bonus

	explain.DecayPenalty = ZeroInteractionPenalty(score, fullDaysSinceLastInteraction(l, stats, in.Now))
	score -= explain.DecayPenalty

	if NewListingPinActive(l.AgeHours(in.Now)) {
		explain.NewListingPinned = true
		score = listing.MaxScore
	} else if score < 0 {
		score = 0
	} else if score > listing.MaxScore {
		score = listing.MaxScore
	}

	explain.FinalScore = score
	return score, explain
}

// fullDaysSinceLastInteraction counts complete days since the last
// interaction, falling back to creation time when the listing has never
// been interacted with.
func fullDaysSinceLastInteraction(l *listing.Listing, stats *listing.InteractionStats, now time.Time) int {
	since := l.CreatedAt
	if stats.LastInteractionAt != nil {
		since = *stats.LastInteractionAt
	}
	days := int(now.Sub(since).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
