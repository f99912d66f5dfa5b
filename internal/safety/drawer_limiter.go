// internal/safety/drawer_limiter.go
package safety

import (
	"sync"
	"time"
)

// DefaultDrawerInterval is the minimum time between two pulses on one profile
const DefaultDrawerInterval = 2 * time.Second

// DrawerLimiter grants at most one drawer pulse per profile per interval.
// Entries never expire; an unseen profile has never been kicked.
type DrawerLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
	now      func() time.Time
}

// NewDrawerLimiter creates a limiter. A non-positive interval uses the default.
func NewDrawerLimiter(interval time.Duration) *DrawerLimiter {
	if interval <= 0 {
		interval = DefaultDrawerInterval
	}
	return &DrawerLimiter{
		interval: interval,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Acquire checks and records a pulse for profileID in one step. When denied
// it returns the time left until the next pulse is allowed.
func (l *DrawerLimiter) Acquire(profileID string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.last[profileID]; ok {
		if elapsed := now.Sub(last); elapsed < l.interval {
			return false, l.interval - elapsed
		}
	}
	l.last[profileID] = now
	return true, 0
}

// Interval returns the configured minimum interval
func (l *DrawerLimiter) Interval() time.Duration {
	return l.interval
}
