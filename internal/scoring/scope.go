// Package scoring computes final listing scores: scope normalization,
// time decay with sustained-engagement tiers, boost and penalty terms,
// and the aggregator that composes them into a bounded final score.
package scoring

// ScopeClass describes how broadly a listing targets tenants.
type ScopeClass string

// Scope classes by targeted tenant count.
const (
	ScopeSingle  ScopeClass = "single"  // exactly 1 tenant
	ScopeMulti   ScopeClass = "multi"   // 2-5 tenants
	ScopeCluster ScopeClass = "cluster" // 6+ tenants
)

// ScopeFactors carries the adjustments one scope class applies to raw
// engagement impact. NormalizationFactor multiplies the impact;
// EngagementThreshold divides it and also scales the velocity cut-points
// of the sustained-engagement tiering. Broader reach means a larger
// potential audience, so broader scopes get smaller factors and higher
// thresholds.
type ScopeFactors struct {
	Class               ScopeClass `json:"class"`
	NormalizationFactor float64    `json:"normalization_factor"`
	EngagementThreshold float64    `json:"engagement_threshold"`
}

// ClassifyScope maps a targeted tenant count onto a scope class. Counts
// below 1 classify as single.
func ClassifyScope(targetCount int) ScopeClass {
	switch {
	case targetCount <= 1:
		return ScopeSingle
	case targetCount <= 5:
		return ScopeMulti
	default:
		return ScopeCluster
	}
}

// FactorsFor returns the normalization factors for a scope class.
func FactorsFor(class ScopeClass) ScopeFactors {
	switch class {
	case ScopeMulti:
		return ScopeFactors{Class: ScopeMulti, NormalizationFactor: 0.8, EngagementThreshold: 1.5}
	case ScopeCluster:
		return ScopeFactors{Class: ScopeCluster, NormalizationFactor: 0.6, EngagementThreshold: 2.0}
	default:
		return ScopeFactors{Class: ScopeSingle, NormalizationFactor: 1.2, EngagementThreshold: 1.0}
	}
}

// NeutralFactors returns the factors used when a listing has no scope
// record: treated as single-tenant with no bonus or penalty applied.
func NeutralFactors() ScopeFactors {
	return ScopeFactors{Class: ScopeSingle, NormalizationFactor: 1.0, EngagementThreshold: 1.0}
}
