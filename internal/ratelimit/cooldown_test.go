package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func closeLimiter(t *testing.T, c *CooldownLimiter) {
	t.Helper()
	if err := c.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}

func TestCooldownDeniesWithinWindow(t *testing.T) {
	c := NewCooldownLimiter(time.Minute)
	defer closeLimiter(t, c)

	ctx := context.Background()
	ok, err := c.Allow(ctx, KeyFor("chat", "u1"))
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if !ok {
		t.Fatal("first interaction should be allowed")
	}

	ok, err = c.Allow(ctx, KeyFor("chat", "u1"))
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if ok {
		t.Fatal("second interaction within the window should be denied")
	}
}

func TestCooldownAllowsAfterWindow(t *testing.T) {
	c := NewCooldownLimiter(time.Minute)
	defer closeLimiter(t, c)

	now := time.Now()
	c.now = func() time.Time { return now }

	ctx := context.Background()
	if ok, _ := c.Allow(ctx, "k"); !ok {
		t.Fatal("first interaction should be allowed")
	}

	now = now.Add(time.Minute)
	if ok, _ := c.Allow(ctx, "k"); !ok {
		t.Fatal("interaction after a full window should be allowed")
	}
}

func TestCooldownDeniedDoesNotExtendWindow(t *testing.T) {
	c := NewCooldownLimiter(time.Minute)
	defer closeLimiter(t, c)

	now := time.Now()
	c.now = func() time.Time { return now }

	ctx := context.Background()
	_, _ = c.Allow(ctx, "k")

	now = now.Add(30 * time.Second)
	if ok, _ := c.Allow(ctx, "k"); ok {
		t.Fatal("interaction at half window should be denied")
	}

	// A denial must not reset the clock: the original window still expires
	// a full minute after the allowed interaction.
	now = now.Add(30 * time.Second)
	if ok, _ := c.Allow(ctx, "k"); !ok {
		t.Fatal("window should be measured from the last allowed interaction")
	}
}

func TestCooldownKeysIndependent(t *testing.T) {
	c := NewCooldownLimiter(time.Minute)
	defer closeLimiter(t, c)

	ctx := context.Background()
	if ok, _ := c.Allow(ctx, KeyFor("chat", "u1")); !ok {
		t.Fatal("first key should be allowed")
	}
	// Same user, different bot identity: separate budget.
	if ok, _ := c.Allow(ctx, KeyFor("admin", "u1")); !ok {
		t.Fatal("same user on another bot should be allowed")
	}
	// Same bot, different user.
	if ok, _ := c.Allow(ctx, KeyFor("chat", "u2")); !ok {
		t.Fatal("another user on the same bot should be allowed")
	}
}

func TestCooldownConcurrentAccess(t *testing.T) {
	c := NewCooldownLimiter(time.Minute)
	defer closeLimiter(t, c)

	ctx := context.Background()
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.Allow(ctx, "shared")
			if err != nil {
				t.Errorf("Allow error: %v", err)
				return
			}
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 1 {
		t.Fatalf("expected exactly 1 allowed interaction, got %d", allowed)
	}
}

func TestCooldownEvictStale(t *testing.T) {
	c := NewCooldownLimiter(time.Minute)
	defer closeLimiter(t, c)

	ctx := context.Background()
	_, _ = c.Allow(ctx, "old")
	_, _ = c.Allow(ctx, "fresh")

	// Backdate one entry past the stale threshold, then sweep.
	c.mu.Lock()
	c.last["old"] = time.Now().Add(-time.Duration(staleAfter+1) * time.Minute)
	c.mu.Unlock()

	c.evictStale()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.last["old"]; ok {
		t.Fatal("stale entry should have been evicted")
	}
	if _, ok := c.last["fresh"]; !ok {
		t.Fatal("fresh entry should survive the sweep")
	}
}

func TestNoopLimiterAllowsEverything(t *testing.T) {
	var n NoopLimiter
	for i := 0; i < 3; i++ {
		ok, err := n.Allow(context.Background(), "k")
		if err != nil || !ok {
			t.Fatalf("NoopLimiter should always allow, got ok=%v err=%v", ok, err)
		}
	}
	if err := n.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}
