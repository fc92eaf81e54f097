// Package ledger keeps a rolling in-memory record of recent verdicts
// and answers time-ranged summary queries over it.
package ledger

import (
	"sort"
	"sync"
	"time"

	"modelguard/internal/model"
)

type Ledger struct {
	mu        sync.RWMutex
	buf       []model.ThreatVerdict
	head      int
	retention time.Duration
	limit     int
	topN      int
	now       func() time.Time
}

func New(retention time.Duration, limit, topN int) *Ledger {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if limit <= 0 {
		limit = 10000
	}
	if topN <= 0 {
		topN = 5
	}
	return &Ledger{retention: retention, limit: limit, topN: topN, now: time.Now}
}

// Append records a verdict in arrival order and lazily prunes entries
// older than the retention horizon.
func (l *Ledger) Append(v model.ThreatVerdict) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.now().UTC())
	l.buf = append(l.buf, v)
	if len(l.buf)-l.head > l.limit {
		l.head++
	}
	l.compactLocked()
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buf) - l.head
}

func (l *Ledger) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.retention)
	for l.head < len(l.buf) {
		if !l.buf[l.head].Timestamp.Before(cutoff) {
			break
		}
		l.head++
	}
	l.compactLocked()
}

func (l *Ledger) compactLocked() {
	if l.head > 0 && l.head*2 >= len(l.buf) {
		l.buf = append([]model.ThreatVerdict{}, l.buf[l.head:]...)
		l.head = 0
	}
}

// Sweep prunes eagerly; run it periodically so retention holds even
// when appends stop.
func (l *Ledger) Sweep() {
	l.mu.Lock()
	l.pruneLocked(l.now().UTC())
	l.mu.Unlock()
}

// Recent returns up to limit verdicts, newest last.
func (l *Ledger) Recent(limit int) []model.ThreatVerdict {
	l.mu.RLock()
	defer l.mu.RUnlock()
	live := l.buf[l.head:]
	if limit <= 0 || limit > len(live) {
		limit = len(live)
	}
	out := make([]model.ThreatVerdict, limit)
	copy(out, live[len(live)-limit:])
	return out
}

// Summarize reports severity counts, top identities and top matched
// rules over [since, until). The snapshot is taken under a read lock
// and aggregation happens on the copy, so appends are only blocked for
// the copy duration.
func (l *Ledger) Summarize(since, until time.Time) model.Summary {
	l.mu.RLock()
	snapshot := make([]model.ThreatVerdict, len(l.buf)-l.head)
	copy(snapshot, l.buf[l.head:])
	l.mu.RUnlock()

	summary := model.Summary{
		Since:          since,
		Until:          until,
		SeverityCounts: make(map[string]int),
	}
	identities := make(map[string]int)
	rules := make(map[string]int)
	for _, v := range snapshot {
		if v.Timestamp.Before(since) || !v.Timestamp.Before(until) {
			continue
		}
		summary.Total++
		summary.SeverityCounts[v.Severity.String()]++
		identities[v.Identity]++
		for _, rule := range v.Signals.MatchedRules {
			rules[rule]++
		}
	}
	summary.UniqueIdentities = len(identities)
	summary.TopIdentities = topIdentities(identities, l.topN)
	summary.TopRules = topRules(rules, l.topN)
	return summary
}

func topIdentities(counts map[string]int, n int) []model.IdentityCount {
	out := make([]model.IdentityCount, 0, len(counts))
	for identity, count := range counts {
		out = append(out, model.IdentityCount{Identity: identity, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Identity < out[j].Identity
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func topRules(counts map[string]int, n int) []model.RuleCount {
	out := make([]model.RuleCount, 0, len(counts))
	for rule, count := range counts {
		out = append(out, model.RuleCount{Rule: rule, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Rule < out[j].Rule
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
