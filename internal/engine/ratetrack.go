package engine

import (
	"time"

	"modelguard/internal/model"
)

// RateTracker answers whether an identity is over its request budget
// for the configured sliding window.
type RateTracker struct {
	window time.Duration
	limit  int
}

func NewRateTracker(window time.Duration, limit int) *RateTracker {
	return &RateTracker{window: window, limit: limit}
}

// RecordAndCheck records one request and reports the window count. The
// caller holds the identity's lock.
func (t *RateTracker) RecordAndCheck(state *identityState, ts time.Time) (int, bool) {
	state.rate.Evict(ts.Add(-t.window))
	state.rate.Add(ts)
	count := state.rate.Count()
	return count, count > t.limit
}

// FailureTracker counts failed outcomes inside its own lookback window.
// Successes are not recorded and do not reset the window; failures
// simply age out.
type FailureTracker struct {
	window    time.Duration
	threshold int
}

func NewFailureTracker(window time.Duration, threshold int) *FailureTracker {
	return &FailureTracker{window: window, threshold: threshold}
}

// RecordOutcome records the event's outcome and reports the recent
// failure count. The caller holds the identity's lock.
func (t *FailureTracker) RecordOutcome(state *identityState, ts time.Time, outcome model.Outcome) (int, bool) {
	state.failures.Evict(ts.Add(-t.window))
	if outcome == model.OutcomeFailure {
		state.failures.Add(ts)
	}
	count := state.failures.Count()
	return count, count >= t.threshold
}
