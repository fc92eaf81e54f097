package engine

import (
	"testing"

	"modelguard/internal/config"
	"modelguard/internal/model"
)

func defaultPolicy() SeverityPolicy {
	return PolicyFromConfig(config.DefaultConfig().Severity)
}

func signals(rate, pattern, fail bool) model.SignalSet {
	return model.SignalSet{RateOver: rate, PatternOver: pattern, FailureOver: fail}
}

func TestClassifyLattice(t *testing.T) {
	policy := defaultPolicy()
	cases := []struct {
		name   string
		sig    model.SignalSet
		strong bool
		want   model.Severity
	}{
		{"nothing fired", signals(false, false, false), false, model.SeverityNone},
		{"nothing fired strong ignored", signals(false, false, false), true, model.SeverityNone},
		{"rate only weak", signals(true, false, false), false, model.SeverityLow},
		{"pattern only weak", signals(false, true, false), false, model.SeverityLow},
		{"failures only weak", signals(false, false, true), false, model.SeverityLow},
		{"rate only strong", signals(true, false, false), true, model.SeverityMedium},
		{"pattern only strong", signals(false, true, false), true, model.SeverityMedium},
		{"failures only strong", signals(false, false, true), true, model.SeverityMedium},
		{"rate and failures", signals(true, false, true), false, model.SeverityHigh},
		{"rate and pattern", signals(true, true, false), false, model.SeverityCritical},
		{"pattern and failures", signals(false, true, true), false, model.SeverityCritical},
		{"all three", signals(true, true, true), false, model.SeverityCritical},
		{"all three strong", signals(true, true, true), true, model.SeverityCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := policy.Classify(tc.sig, tc.strong)
			if got != tc.want {
				t.Fatalf("Classify(%+v, strong=%v) = %s, want %s", tc.sig, tc.strong, got, tc.want)
			}
		})
	}
}

// Adding a fired signal must never lower the severity.
func TestClassifyMonotone(t *testing.T) {
	policy := defaultPolicy()
	combos := []model.SignalSet{}
	for _, rate := range []bool{false, true} {
		for _, pattern := range []bool{false, true} {
			for _, fail := range []bool{false, true} {
				combos = append(combos, signals(rate, pattern, fail))
			}
		}
	}
	dominates := func(a, b model.SignalSet) bool {
		return (a.RateOver || !b.RateOver) &&
			(a.PatternOver || !b.PatternOver) &&
			(a.FailureOver || !b.FailureOver)
	}
	for _, strong := range []bool{false, true} {
		for _, a := range combos {
			for _, b := range combos {
				if !dominates(a, b) {
					continue
				}
				if policy.Classify(a, strong) < policy.Classify(b, strong) {
					t.Fatalf("superset %+v ranked below subset %+v (strong=%v)", a, b, strong)
				}
			}
		}
	}
}

func TestClassifyCustomPolicy(t *testing.T) {
	policy := PolicyFromConfig(config.SeverityConfig{
		SingleWeak:   "medium",
		SingleStrong: "high",
		Double:       "high",
		PatternCombo: "high",
		Triple:       "critical",
	})
	if got := policy.Classify(signals(true, false, false), false); got != model.SeverityMedium {
		t.Fatalf("single weak = %s, want medium", got)
	}
	if got := policy.Classify(signals(true, true, false), false); got != model.SeverityHigh {
		t.Fatalf("pattern pair = %s, want high", got)
	}
	if got := policy.Classify(signals(true, true, true), false); got != model.SeverityCritical {
		t.Fatalf("triple = %s, want critical", got)
	}
}

func TestFiredCountsSignals(t *testing.T) {
	if n := signals(true, false, true).Fired(); n != 2 {
		t.Fatalf("Fired = %d, want 2", n)
	}
	if n := (model.SignalSet{}).Fired(); n != 0 {
		t.Fatalf("Fired = %d, want 0", n)
	}
}
