package pin

import (
	"sync"
	"time"
)

// DefaultCooldown is the minimum interval between two pins in one channel.
const DefaultCooldown = 5 * time.Second

// Cooldown gates pins per channel. The check and the record happen under one lock, so of several
// overlapping callers inside a window exactly one is let through.
type Cooldown struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

// NewCooldown returns a gate with the given interval; non-positive intervals use DefaultCooldown.
func NewCooldown(interval time.Duration) *Cooldown {
	if interval <= 0 {
		interval = DefaultCooldown
	}
	return &Cooldown{interval: interval, last: make(map[string]time.Time)}
}

// TryAcquire reports whether a pin in channelID may proceed at now and, if so, records now as the
// channel's last pin time. A channel never seen before is always allowed.
func (c *Cooldown) TryAcquire(channelID string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.last[channelID]; ok && now.Sub(last) < c.interval {
		return false
	}
	c.last[channelID] = now
	return true
}

// Remaining is how long channelID must still wait at now (zero when a pin would be allowed).
func (c *Cooldown) Remaining(channelID string, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.last[channelID]
	if !ok {
		return 0
	}
	if d := c.interval - now.Sub(last); d > 0 {
		return d
	}
	return 0
}

// Interval returns the configured cooldown.
func (c *Cooldown) Interval() time.Duration { return c.interval }
