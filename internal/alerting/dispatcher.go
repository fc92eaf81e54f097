// Package alerting decides when a verdict becomes a team notification.
// The decision is fast and synchronous; delivery is handed to a worker
// over a bounded queue so notifier latency never reaches the detection
// path.
package alerting

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"modelguard/internal/alerts"
	"modelguard/internal/metrics"
	"modelguard/internal/model"
	"modelguard/internal/notify"
)

type Config struct {
	Floor           model.Severity
	Cooldown        time.Duration
	QueueSize       int
	DeliveryTimeout time.Duration
}

type Dispatcher struct {
	cfg      Config
	cooldown *Cooldown
	notifier notify.Notifier
	store    *alerts.Store
	queue    chan model.AlertRecord
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewDispatcher(cfg Config, notifier notify.Notifier, store *alerts.Store, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 5 * time.Second
	}
	return &Dispatcher{
		cfg:      cfg,
		cooldown: NewCooldown(),
		notifier: notifier,
		store:    store,
		queue:    make(chan model.AlertRecord, cfg.QueueSize),
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// MaybeAlert applies the severity floor and the per-identity cooldown
// to one verdict. A record is returned for every verdict at or above
// the floor, suppressed or not; nil means the verdict was below the
// floor. No identity lock is held here and delivery happens elsewhere.
func (d *Dispatcher) MaybeAlert(verdict model.ThreatVerdict) *model.AlertRecord {
	if verdict.Severity < d.cfg.Floor {
		return nil
	}
	now := d.now().UTC()
	fired := d.cooldown.Allow(verdict.Identity, verdict.Severity, now, d.cfg.Cooldown)
	record := model.AlertRecord{
		ID:           uuid.NewString(),
		Identity:     verdict.Identity,
		VerdictID:    verdict.ID,
		Severity:     verdict.Severity,
		Reasons:      verdict.Reasons,
		DispatchedAt: now,
		Suppressed:   !fired,
	}
	if d.store != nil {
		d.store.Add(record)
	}
	if !fired {
		if d.logger != nil {
			d.logger.Info("alert suppressed by cooldown",
				"identity", record.Identity,
				"severity", record.Severity.String(),
				"verdict_id", record.VerdictID,
			)
		}
		if d.metrics != nil {
			d.metrics.AlertsTotal.WithLabelValues("suppressed").Inc()
		}
		return &record
	}
	if d.logger != nil {
		d.logger.Warn("alert fired",
			"identity", record.Identity,
			"severity", record.Severity.String(),
			"reasons", record.Reasons,
			"verdict_id", record.VerdictID,
		)
	}
	if d.metrics != nil {
		d.metrics.AlertsTotal.WithLabelValues("fired").Inc()
	}
	select {
	case d.queue <- record:
	default:
		// Queue full counts as a failed delivery; detection must not block.
		if d.logger != nil {
			d.logger.Error("alert queue full, delivery dropped", "identity", record.Identity)
		}
		if d.metrics != nil {
			d.metrics.DeliveryFailures.Inc()
		}
	}
	return &record
}

// Run drains the delivery queue until the context is canceled. Each
// delivery gets a bounded timeout and one immediate retry; a second
// failure is logged and counted, never propagated.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case record := <-d.queue:
			d.deliver(ctx, record)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, record model.AlertRecord) {
	if d.notifier == nil {
		return
	}
	err := d.attempt(ctx, record)
	if err == nil {
		return
	}
	if d.logger != nil {
		d.logger.Warn("alert delivery failed, retrying",
			"notifier", d.notifier.Name(),
			"alert_id", record.ID,
			"err", err,
		)
	}
	if err = d.attempt(ctx, record); err == nil {
		return
	}
	if d.logger != nil {
		d.logger.Error("alert delivery failed after retry",
			"notifier", d.notifier.Name(),
			"alert_id", record.ID,
			"identity", record.Identity,
			"err", err,
		)
	}
	if d.metrics != nil {
		d.metrics.DeliveryFailures.Inc()
	}
}

func (d *Dispatcher) attempt(ctx context.Context, record model.AlertRecord) error {
	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	defer cancel()
	return d.notifier.Notify(attemptCtx, record)
}

// SweepCooldowns ages out idle cooldown entries.
func (d *Dispatcher) SweepCooldowns(horizon time.Duration) {
	d.cooldown.Sweep(d.now().UTC(), horizon)
}

func (d *Dispatcher) Reset() {
	d.cooldown.Reset()
}
