// Package engine implements the detection core: per-identity rate and
// failure tracking, payload pattern analysis and the severity lattice
// that folds the three signals into one verdict per event.
package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"modelguard/internal/alerting"
	"modelguard/internal/config"
	"modelguard/internal/ledger"
	"modelguard/internal/metrics"
	"modelguard/internal/model"
	"modelguard/internal/normalize"
	"modelguard/internal/storage"
)

// pipeline is one immutable detection configuration. Config reloads
// swap the whole pipeline atomically; in-flight evaluations finish on
// the snapshot they started with.
type pipeline struct {
	rate        *RateTracker
	failures    *FailureTracker
	analyzer    *Analyzer
	policy      SeverityPolicy
	rateLimit   int
	failLimit   int
	strongScore float64
	strongRate  float64
	strongFail  float64
	retention   time.Duration
	sweepEvery  time.Duration
}

type Detector struct {
	logger     *slog.Logger
	modelName  string
	pipe       atomic.Value
	identities atomic.Pointer[identityTable]
	ledger     *ledger.Ledger
	dispatcher *alerting.Dispatcher
	store      storage.Store
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewDetector(cfg *config.Config, logger *slog.Logger, incidents *ledger.Ledger, dispatcher *alerting.Dispatcher, store storage.Store, m *metrics.Metrics) (*Detector, error) {
	d := &Detector{
		logger:     logger,
		modelName:  cfg.ModelName,
		ledger:     incidents,
		dispatcher: dispatcher,
		store:      store,
		metrics:    m,
		now:        time.Now,
	}
	d.identities.Store(newIdentityTable())
	if err := d.UpdateConfig(cfg); err != nil {
		return nil, err
	}
	return d, nil
}

// UpdateConfig rebuilds the detection pipeline from a validated config.
func (d *Detector) UpdateConfig(cfg *config.Config) error {
	analyzer, err := NewAnalyzer(cfg.Rules, cfg.Detection, d.logger)
	if err != nil {
		return err
	}
	det := cfg.Detection
	d.pipe.Store(&pipeline{
		rate:        NewRateTracker(det.RateWindow, det.MaxRequestsPerWindow),
		failures:    NewFailureTracker(det.FailureWindow, det.FailedAttemptsThreshold),
		analyzer:    analyzer,
		policy:      PolicyFromConfig(cfg.Severity),
		rateLimit:   det.MaxRequestsPerWindow,
		failLimit:   det.FailedAttemptsThreshold,
		strongScore: det.StrongScore,
		strongRate:  det.StrongRateMultiplier,
		strongFail:  det.StrongFailureMultiplier,
		retention:   det.IdentityRetention,
		sweepEvery:  det.SweepInterval,
	})
	return nil
}

func (d *Detector) pipeline() *pipeline {
	return d.pipe.Load().(*pipeline)
}

// Detect is the sole ingestion entry point. It validates the raw
// record, updates the identity's trackers under that identity's lock,
// classifies the combined signals, appends the verdict to the ledger
// and hands it to the alert dispatcher. Alerting-path failures never
// surface here.
func (d *Detector) Detect(ctx context.Context, raw model.RawEvent) (model.ThreatVerdict, error) {
	ev, err := normalize.Normalize(raw)
	if err != nil {
		if d.metrics != nil {
			d.metrics.InvalidEventsTotal.Inc()
		}
		return model.ThreatVerdict{}, err
	}
	if d.metrics != nil {
		source := ev.Source
		if source == "" {
			source = "direct"
		}
		d.metrics.EventsTotal.WithLabelValues(source).Inc()
	}

	p := d.pipeline()

	// The identity lock spans all three trackers so the signals seen by
	// one evaluation cannot interleave with the next event for the same
	// identity.
	identities := d.identities.Load()
	state := identities.acquire(ev.Identity, d.now().UTC())
	rateCount, rateOver := p.rate.RecordAndCheck(state, ev.Timestamp)
	failCount, failOver := p.failures.RecordOutcome(state, ev.Timestamp, ev.Outcome)
	identities.release(state)

	score, matched := p.analyzer.Score(ev.Payload)
	patternOver := p.analyzer.Suspicious(score)

	sig := model.SignalSet{
		RateOver:       rateOver,
		RateCount:      rateCount,
		PatternOver:    patternOver,
		PatternScore:   score,
		MatchedRules:   matched,
		FailureOver:    failOver,
		RecentFailures: failCount,
	}
	severity := p.policy.Classify(sig, p.strong(sig))
	verdict := model.ThreatVerdict{
		ID:        uuid.NewString(),
		Model:     d.modelName,
		Identity:  ev.Identity,
		Timestamp: ev.Timestamp,
		Severity:  severity,
		Score:     p.composite(sig),
		Reasons:   reasons(sig),
		Signals:   sig,
	}

	if d.metrics != nil {
		d.metrics.VerdictsTotal.WithLabelValues(severity.String()).Inc()
	}
	if d.ledger != nil {
		d.ledger.Append(verdict)
	}
	if d.store != nil {
		_ = d.store.SaveVerdict(ctx, verdict)
	}
	if d.logger != nil && severity > model.SeverityNone {
		d.logger.Warn("threat verdict",
			"identity", verdict.Identity,
			"severity", severity.String(),
			"score", verdict.Score,
			"reasons", verdict.Reasons,
			"payload_bytes", len(ev.Payload),
		)
	}
	if d.dispatcher != nil {
		if record := d.dispatcher.MaybeAlert(verdict); record != nil && d.store != nil {
			_ = d.store.SaveAlert(ctx, *record)
		}
	}
	return verdict, nil
}

// strong reports whether any fired signal is far past its limit.
func (p *pipeline) strong(sig model.SignalSet) bool {
	if sig.PatternOver && sig.PatternScore >= p.strongScore {
		return true
	}
	if sig.RateOver && float64(sig.RateCount) >= p.strongRate*float64(p.rateLimit) {
		return true
	}
	if sig.FailureOver && float64(sig.RecentFailures) >= p.strongFail*float64(p.failLimit) {
		return true
	}
	return false
}

// composite folds the fired signals' readings into a single [0,1]
// score. Readings whose signal did not fire contribute nothing, so the
// score always agrees with the verdict's reasons.
func (p *pipeline) composite(sig model.SignalSet) float64 {
	var score float64
	if sig.PatternOver {
		score = sig.PatternScore
	}
	if sig.RateOver {
		if rate := float64(sig.RateCount) / (p.strongRate * float64(p.rateLimit)); rate > score {
			score = rate
		}
	}
	if sig.FailureOver {
		if fail := float64(sig.RecentFailures) / (p.strongFail * float64(p.failLimit)); fail > score {
			score = fail
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

func reasons(sig model.SignalSet) []string {
	var out []string
	if sig.RateOver {
		out = append(out, "rate_limit_exceeded")
	}
	if sig.PatternOver {
		out = append(out, "suspicious_pattern")
		out = append(out, sig.MatchedRules...)
	}
	if sig.FailureOver {
		out = append(out, "repeated_failures")
	}
	return out
}

// Start drains an ingest channel until the context is canceled.
func (d *Detector) Start(ctx context.Context, in <-chan model.RawEvent) {
	go func() {
		for {
			select {
			case raw := <-in:
				if _, err := d.Detect(ctx, raw); err != nil {
					if d.logger != nil {
						d.logger.Warn("event rejected", "source", raw.Source, "err", err)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// TrackedIdentities reports the current size of the identity table.
func (d *Detector) TrackedIdentities() int {
	return d.identities.Load().size()
}

// Reset drops all per-identity state and cooldowns.
func (d *Detector) Reset() {
	d.identities.Store(newIdentityTable())
	if d.dispatcher != nil {
		d.dispatcher.Reset()
	}
}
