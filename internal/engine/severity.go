package engine

import (
	"modelguard/internal/config"
	"modelguard/internal/model"
)

// SeverityPolicy is the finite lattice mapping fired signals to a tier.
// It is pure and total: every SignalSet maps to exactly one severity,
// and adding a fired signal never lowers the result.
type SeverityPolicy struct {
	SingleWeak   model.Severity
	SingleStrong model.Severity
	Double       model.Severity
	PatternCombo model.Severity
	Triple       model.Severity
}

func PolicyFromConfig(cfg config.SeverityConfig) SeverityPolicy {
	return SeverityPolicy{
		SingleWeak:   mustSeverity(cfg.SingleWeak, model.SeverityLow),
		SingleStrong: mustSeverity(cfg.SingleStrong, model.SeverityMedium),
		Double:       mustSeverity(cfg.Double, model.SeverityHigh),
		PatternCombo: mustSeverity(cfg.PatternCombo, model.SeverityCritical),
		Triple:       mustSeverity(cfg.Triple, model.SeverityCritical),
	}
}

func mustSeverity(name string, fallback model.Severity) model.Severity {
	sev, err := model.ParseSeverity(name)
	if err != nil {
		return fallback
	}
	return sev
}

// Classify maps one event's signals to a severity tier. Two fired
// signals rank Double, except a pair including the pattern signal which
// escalates to PatternCombo; three fired signals rank Triple.
func (p SeverityPolicy) Classify(sig model.SignalSet, strong bool) model.Severity {
	switch sig.Fired() {
	case 0:
		return model.SeverityNone
	case 1:
		if strong {
			return p.SingleStrong
		}
		return p.SingleWeak
	case 2:
		if sig.PatternOver {
			return maxSeverity(p.Double, p.PatternCombo)
		}
		return p.Double
	default:
		return maxSeverity(p.Triple, p.PatternCombo)
	}
}

func maxSeverity(a, b model.Severity) model.Severity {
	if a > b {
		return a
	}
	return b
}
