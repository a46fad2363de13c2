package scoring

// Tier classifies how durable a listing's engagement is over time.
type Tier string

// Sustained-engagement tiers, lowest to highest.
const (
	TierLow         Tier = "low"
	TierModerate    Tier = "moderate"
	TierHigh        Tier = "high"
	TierExceptional Tier = "exceptional"
)

// Tier bonuses added on top of the age-band base weight.
const (
	bonusModerate    = 0.5
	bonusHigh        = 0.7
	bonusExceptional = 1.0
)

// minTimeWeight floors the final multiplier so even ancient listings
// retain a sliver of their engagement impact.
const minTimeWeight = 0.1

// sustainedEngagementMinAgeDays is the minimum age before the
// sustained-engagement bonus can apply; younger listings have too little
// history to distinguish durable engagement from a launch spike.
const sustainedEngagementMinAgeDays = 7.0

// TimeWeight is the result of the time-decay evaluation.
type TimeWeight struct {
	Base            float64 `json:"base"`
	Tier            Tier    `json:"tier"`
	TierBonus       float64 `json:"tier_bonus"`
	Multiplier      float64 `json:"multiplier"`
	Velocity        float64 `json:"velocity"`
	HistoricalRatio float64 `json:"historical_ratio"`
}

// baseTimeWeight returns the age-band decay weight.
func baseTimeWeight(ageDays float64) float64 {
	switch {
	case ageDays <= 1:
		return 1.0
	case ageDays <= 7:
		return 0.9
	case ageDays <= 30:
		return 0.8
	case ageDays <= 90:
		return 0.7
	case ageDays <= 180:
		return 0.6
	case ageDays <= 365:
		return 0.5
	default:
		return 0.4
	}
}

// EvaluateTimeWeight converts listing age and the recent/historical
// engagement split into a time-weight multiplier. The engagement
// threshold scales the velocity cut-points so broader-reach listings
// need proportionally more engagement to earn a tier bonus.
//
// The multiplier may exceed 1.0 when a tier bonus applies; it is floored
// at minTimeWeight. Engagement velocity is interactions per day of age;
// the historical ratio measures how much of the engagement predates the
// recent window, rewarding durable interest over launch spikes.
func EvaluateTimeWeight(ageDays float64, recent, historical int, engagementThreshold float64) TimeWeight {
	if engagementThreshold <= 0 {
		engagementThreshold = 1.0
	}

	tw := TimeWeight{
		Base: baseTimeWeight(ageDays),
		Tier: TierLow,
	}

	total := recent + historical
	if ageDays >= sustainedEngagementMinAgeDays && total > 0 {
		tw.Velocity = float64(total) / ageDays
		tw.HistoricalRatio = float64(historical) / float64(total)

		switch {
		case tw.Velocity >= 1.6*engagementThreshold && tw.HistoricalRatio >= 0.5:
			tw.Tier = TierExceptional
			tw.TierBonus = bonusExceptional
		case tw.Velocity >= 1.3*engagementThreshold && tw.HistoricalRatio >= 0.4:
			tw.Tier = TierHigh
			tw.TierBonus = bonusHigh
		case tw.Velocity >= 1.0*engagementThreshold && tw.HistoricalRatio >= 0.3:
			tw.Tier = TierModerate
			tw.TierBonus = bonusModerate
		}
	}

	tw.Multiplier = tw.Base + tw.TierBonus
	if tw.Multiplier < minTimeWeight {
		tw.Multiplier = minTimeWeight
	}
	return tw
}
