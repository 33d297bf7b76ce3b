// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

package notify

import (
	"sync"
	"time"
)

// DefaultCooldownWindow is the bulk-push suppression window per throttle
// key.
const DefaultCooldownWindow = 10 * time.Second

// Cooldown throttles bulk push emissions per key. State is process-local
// and volatile: losing it on restart risks one extra push, never a lost
// notification record.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewCooldown creates a cooldown with the given window. Non-positive
// windows fall back to the default.
func NewCooldown(window time.Duration) *Cooldown {
	if window <= 0 {
		window = DefaultCooldownWindow
	}
	return &Cooldown{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether a bulk push for the key may proceed, recording the
// attempt when it may. The read and the conditional write happen under one
// lock so two concurrent bursts cannot both pass.
func (c *Cooldown) Allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.last[key]; ok && now.Sub(last) < c.window {
		return false
	}
	c.last[key] = now
	return true
}

// Reset clears all cooldown state.
func (c *Cooldown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = make(map[string]time.Time)
}
