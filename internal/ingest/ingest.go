// Package ingest adapts external transports (REST, Kafka, Redis) into
// the detector's raw event channel.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"modelguard/internal/model"
)

// SendNonBlocking enqueues an event without ever blocking a transport.
// A full channel drops the event with a warning.
func SendNonBlocking(ctx context.Context, out chan<- model.RawEvent, ev model.RawEvent, logger *slog.Logger) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("event channel full, dropping event", "identity", ev.Identity, "source", ev.Source)
		}
		return false
	}
}

// BackoffSleep pauses between failed reads, honoring cancellation.
func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
