package model

import (
	"fmt"
	"strings"
	"time"
)

type Outcome string

const (
	OutcomeUnknown Outcome = ""
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Severity is a totally ordered verdict tier.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

func ParseSeverity(value string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "none":
		return SeverityNone, nil
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	}
	return SeverityNone, fmt.Errorf("unknown severity: %q", value)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(data []byte) error {
	parsed, err := ParseSeverity(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// RawEvent is one telemetry record as delivered by a transport, before
// validation.
type RawEvent struct {
	Identity  string `json:"identity"`
	Payload   []byte `json:"payload,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Source    string `json:"source,omitempty"`
}

// RequestEvent is a validated, canonical telemetry record. Immutable
// once created.
type RequestEvent struct {
	Identity  string    `json:"identity"`
	Payload   []byte    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	Source    string    `json:"source,omitempty"`
}

// SignalSet records which detection signals fired for one event and the
// raw readings behind them.
type SignalSet struct {
	RateOver       bool     `json:"rate_over"`
	RateCount      int      `json:"rate_count"`
	PatternOver    bool     `json:"pattern_over"`
	PatternScore   float64  `json:"pattern_score"`
	MatchedRules   []string `json:"matched_rules,omitempty"`
	FailureOver    bool     `json:"failure_over"`
	RecentFailures int      `json:"recent_failures"`
}

// Fired reports how many of the three signals are over their limit.
func (s SignalSet) Fired() int {
	n := 0
	if s.RateOver {
		n++
	}
	if s.PatternOver {
		n++
	}
	if s.FailureOver {
		n++
	}
	return n
}

// ThreatVerdict is the evaluator's classification of one RequestEvent.
type ThreatVerdict struct {
	ID        string    `json:"id"`
	Model     string    `json:"model,omitempty"`
	Identity  string    `json:"identity"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Score     float64   `json:"score"`
	Reasons   []string  `json:"reasons,omitempty"`
	Signals   SignalSet `json:"signals"`
}

// AlertRecord is the dispatcher's decision for one verdict at or above
// the alert floor. Suppressed records are kept for audit.
type AlertRecord struct {
	ID           string    `json:"id"`
	Identity     string    `json:"identity"`
	VerdictID    string    `json:"verdict_id"`
	Severity     Severity  `json:"severity"`
	Reasons      []string  `json:"reasons,omitempty"`
	DispatchedAt time.Time `json:"dispatched_at"`
	Suppressed   bool      `json:"suppressed"`
}

type IdentityCount struct {
	Identity string `json:"identity"`
	Count    int    `json:"count"`
}

type RuleCount struct {
	Rule  string `json:"rule"`
	Count int    `json:"count"`
}

// Summary aggregates ledger verdicts over a time range.
type Summary struct {
	Since            time.Time       `json:"since"`
	Until            time.Time       `json:"until"`
	Total            int             `json:"total"`
	SeverityCounts   map[string]int  `json:"severity_counts"`
	UniqueIdentities int             `json:"unique_identities"`
	TopIdentities    []IdentityCount `json:"top_identities,omitempty"`
	TopRules         []RuleCount     `json:"top_rules,omitempty"`
}
