package engine

import (
	"context"
	"time"
)

// StartSweeper evicts identities idle past the retention horizon on a
// periodic tick. Eviction is deliberately not done per-call so the hot
// path stays O(1) per event.
func (d *Detector) StartSweeper(ctx context.Context) {
	go func() {
		for {
			p := d.pipeline()
			interval := p.sweepEvery
			if interval <= 0 {
				interval = time.Minute
			}
			timer := time.NewTimer(interval)
			select {
			case <-timer.C:
				now := d.now().UTC()
				removed := d.identities.Load().sweep(now, p.retention)
				if d.dispatcher != nil {
					d.dispatcher.SweepCooldowns(p.retention)
				}
				if d.ledger != nil {
					d.ledger.Sweep()
				}
				if d.metrics != nil {
					d.metrics.TrackedIdentities.Set(float64(d.TrackedIdentities()))
				}
				if removed > 0 && d.logger != nil {
					d.logger.Debug("evicted idle identities", "removed", removed)
				}
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}()
}
