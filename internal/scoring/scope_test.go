package scoring

import "testing"

func TestClassifyScope(t *testing.T) {
	tests := []struct {
		count int
		want  ScopeClass
	}{
		{0, ScopeSingle},
		{1, ScopeSingle},
		{2, ScopeMulti},
		{5, ScopeMulti},
		{6, ScopeCluster},
		{50, ScopeCluster},
		{-1, ScopeSingle},
	}

	for _, tt := range tests {
		if got := ClassifyScope(tt.count); got != tt.want {
			t.Errorf("ClassifyScope(%d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}

func TestFactorsFor(t *testing.T) {
	tests := []struct {
		class         ScopeClass
		wantNorm      float64
		wantThreshold float64
	}{
		{ScopeSingle, 1.2, 1.0},
		{ScopeMulti, 0.8, 1.5},
		{ScopeCluster, 0.6, 2.0},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			f := FactorsFor(tt.class)
			if f.Class != tt.class {
				t.Errorf("Class = %q, want %q", f.Class, tt.class)
			}
			if f.NormalizationFactor != tt.wantNorm {
				t.Errorf("NormalizationFactor = %v, want %v", f.NormalizationFactor, tt.wantNorm)
			}
			if f.EngagementThreshold != tt.wantThreshold {
				t.Errorf("EngagementThreshold = %v, want %v", f.EngagementThreshold, tt.wantThreshold)
			}
		})
	}
}

// Broader scopes must never score an identical interaction profile
// higher than narrower ones.
func TestFactorsFor_BroaderScopeNeverAdvantaged(t *testing.T) {
	single := FactorsFor(ScopeSingle)
	multi := FactorsFor(ScopeMulti)
	cluster := FactorsFor(ScopeCluster)

	impact := func(f ScopeFactors) float64 {
		return 10.0 * f.NormalizationFactor / f.EngagementThreshold
	}

	if !(impact(single) > impact(multi) && impact(multi) > impact(cluster)) {
		t.Errorf("impact ordering violated: single=%v multi=%v cluster=%v",
			impact(single), impact(multi), impact(cluster))
	}
}

func TestNeutralFactors(t *testing.T) {
	f := NeutralFactors()
	if f.Class != ScopeSingle {
		t.Errorf("Class = %q, want %q", f.Class, ScopeSingle)
	}
	if f.NormalizationFactor != 1.0 || f.EngagementThreshold != 1.0 {
		t.Errorf("factors = %+v, want 1.0/1.0", f)
	}
}
