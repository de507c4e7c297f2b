package ratelimit

import (
	"context"
	"sync"
	"time"
)

// CooldownLimiter implements Limiter with a fixed cooldown window per key.
//
// An interaction is allowed when at least one window has elapsed since the
// key's last allowed interaction. Denied interactions do not extend the
// window. A background goroutine evicts stale entries every minute to bound
// memory.
type CooldownLimiter struct {
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time

	stopOnce sync.Once
	done     chan struct{}

	// now is swapped in tests to drive the clock.
	now func() time.Time
}

// NewCooldownLimiter creates a cooldown limiter. window is the minimum gap
// between allowed interactions for one key. Call Close to stop the eviction
// goroutine.
func NewCooldownLimiter(window time.Duration) *CooldownLimiter {
	c := &CooldownLimiter{
		window: window,
		last:   make(map[string]time.Time),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	go c.cleanup()
	return c
}

// Allow records the interaction and returns true when the key is outside its
// cooldown window.
func (c *CooldownLimiter) Allow(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if prev, ok := c.last[key]; ok && now.Sub(prev) < c.window {
		return false, nil
	}
	c.last[key] = now
	return true, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (c *CooldownLimiter) Close() error {
	c.stopOnce.Do(func() { close(c.done) })
	return nil
}

// staleAfter is how many idle windows a key survives before eviction.
const staleAfter = 10

func (c *CooldownLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictStale()
		}
	}
}

func (c *CooldownLimiter) evictStale() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-time.Duration(staleAfter) * c.window)
	for key, last := range c.last {
		if last.Before(cutoff) {
			delete(c.last, key)
		}
	}
}
