package alerting

import (
	"sync"
	"time"

	"modelguard/internal/model"
)

// Cooldown suppresses repeat alerts for an identity inside the debounce
// window unless severity strictly increases.
type Cooldown struct {
	mu   sync.Mutex
	last map[string]lastAlert
}

type lastAlert struct {
	at       time.Time
	severity model.Severity
}

func NewCooldown() *Cooldown {
	return &Cooldown{last: make(map[string]lastAlert)}
}

// Allow decides whether an alert for the identity may fire now. When it
// does, the identity's last-alert record is updated.
func (c *Cooldown) Allow(identity string, severity model.Severity, now time.Time, cooldown time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.last[identity]
	if ok && cooldown > 0 && now.Sub(prev.at) < cooldown && severity <= prev.severity {
		return false
	}
	c.last[identity] = lastAlert{at: now, severity: severity}
	return true
}

// Sweep drops identities whose last alert is older than the horizon.
func (c *Cooldown) Sweep(now time.Time, horizon time.Duration) {
	if horizon <= 0 {
		return
	}
	cutoff := now.Add(-horizon)
	c.mu.Lock()
	for identity, prev := range c.last {
		if prev.at.Before(cutoff) {
			delete(c.last, identity)
		}
	}
	c.mu.Unlock()
}

func (c *Cooldown) Reset() {
	c.mu.Lock()
	c.last = make(map[string]lastAlert)
	c.mu.Unlock()
}
