package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock steps time manually so window tests never sleep.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(t *testing.T) (*Memory, *fakeClock) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	clk := newFakeClock()
	// long janitor interval so it never interferes with a test
	m := NewMemory(ctx, WithClock(clk.Now), WithCleanupEvery(time.Hour))
	return m, clk
}

func TestCheck_AdmitsUpToLimit(t *testing.T) {
	m, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := m.Check(ctx, "user:1", 5, time.Minute, 0)
		if err != nil {
			t.Fatalf("check %d: %v", i+1, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be admitted", i+1)
		}
		if want := 5 - (i + 1); d.Remaining != want {
			t.Errorf("request %d: remaining = %d, want %d", i+1, d.Remaining, want)
		}
	}

	d, _ := m.Check(ctx, "user:1", 5, time.Minute, 0)
	if d.Allowed {
		t.Fatal("request 6 should be denied")
	}
	if d.Remaining != 0 {
		t.Errorf("denied remaining = %d, want 0", d.Remaining)
	}
	if d.Blocked {
		t.Error("plain denial should not report a lockout")
	}
}

func TestCheck_ResetAtPointsAtOldestExpiry(t *testing.T) {
	m, clk := newTestLimiter(t)
	ctx := context.Background()
	window := time.Minute

	first, _ := m.Check(ctx, "user:1", 2, window, 0)
	if !first.Allowed {
		t.Fatal("first request should be admitted")
	}
	oldestExpiry := clk.Now().Add(window)

	clk.Advance(10 * time.Second)
	m.Check(ctx, "user:1", 2, window, 0)

	clk.Advance(10 * time.Second)
	d, _ := m.Check(ctx, "user:1", 2, window, 0)
	if d.Allowed {
		t.Fatal("third request should be denied")
	}
	if !d.ResetAt.Equal(oldestExpiry) {
		t.Errorf("reset_at = %v, want oldest entry expiry %v", d.ResetAt, oldestExpiry)
	}
}

func TestCheck_WindowSlides(t *testing.T) {
	m, clk := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m.Check(ctx, "ip:10.0.0.1", 3, time.Minute, 0)
	}
	if d, _ := m.Check(ctx, "ip:10.0.0.1", 3, time.Minute, 0); d.Allowed {
		t.Fatal("should be denied at capacity")
	}

	// after the window passes with no traffic, full capacity returns
	clk.Advance(time.Minute + time.Second)
	d, _ := m.Check(ctx, "ip:10.0.0.1", 3, time.Minute, 0)
	if !d.Allowed {
		t.Fatal("should be admitted after window elapsed")
	}
	if d.Remaining != 2 {
		t.Errorf("remaining = %d, want 2 (fresh window)", d.Remaining)
	}
}

func TestCheck_BlockOnExceed(t *testing.T) {
	m, clk := newTestLimiter(t)
	ctx := context.Background()
	window := 15 * time.Minute
	block := 30 * time.Minute

	for i := 0; i < 5; i++ {
		if d, _ := m.Check(ctx, "ip:1.2.3.4", 5, window, block); !d.Allowed {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}

	d, _ := m.Check(ctx, "ip:1.2.3.4", 5, window, block)
	if d.Allowed {
		t.Fatal("6th request should be denied")
	}
	if !d.Blocked {
		t.Fatal("6th request should have triggered a lockout")
	}
	wantUntil := clk.Now().Add(block)
	if !d.ResetAt.Equal(wantUntil) {
		t.Errorf("blocked until %v, want %v", d.ResetAt, wantUntil)
	}

	// the window itself would recover here, but the block holds
	clk.Advance(16 * time.Minute)
	d, _ = m.Check(ctx, "ip:1.2.3.4", 5, window, block)
	if d.Allowed {
		t.Fatal("request during lockout should be denied")
	}
	if !d.Blocked || !d.ResetAt.Equal(wantUntil) {
		t.Errorf("lockout decision = %+v, want blocked until %v", d, wantUntil)
	}

	// once the block expires a fresh window opens
	clk.Advance(15 * time.Minute) // 31m after the block started
	d, _ = m.Check(ctx, "ip:1.2.3.4", 5, window, block)
	if !d.Allowed {
		t.Fatal("request after lockout expiry should be admitted")
	}
	if d.Remaining != 4 {
		t.Errorf("remaining = %d, want 4 (fresh window)", d.Remaining)
	}
}

func TestCheck_BlockedKeyLogUntouched(t *testing.T) {
	m, clk := newTestLimiter(t)
	ctx := context.Background()

	m.Check(ctx, "user:7", 1, time.Minute, time.Hour)
	m.Check(ctx, "user:7", 1, time.Minute, time.Hour) // triggers the block

	// hammer the key while blocked, then verify the stored log did not grow
	for i := 0; i < 20; i++ {
		clk.Advance(time.Second)
		if d, _ := m.Check(ctx, "user:7", 1, time.Minute, time.Hour); d.Allowed {
			t.Fatal("blocked key must not be admitted")
		}
	}

	m.mu.Lock()
	got := len(m.entries["user:7"].log)
	m.mu.Unlock()
	if got != 1 {
		t.Errorf("log length = %d, want 1 (untouched while blocked)", got)
	}
}

func TestCheck_SeparateKeysIndependent(t *testing.T) {
	m, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m.Check(ctx, "user:1", 3, time.Minute, 0)
	}
	if d, _ := m.Check(ctx, "user:1", 3, time.Minute, 0); d.Allowed {
		t.Fatal("user:1 should be at capacity")
	}
	if d, _ := m.Check(ctx, "user:2", 3, time.Minute, 0); !d.Allowed {
		t.Fatal("user:2 should have a fresh window")
	}
}

func TestCheck_ZeroLimitResetNow(t *testing.T) {
	m, clk := newTestLimiter(t)

	d, _ := m.Check(context.Background(), "ip:5.5.5.5", 0, time.Minute, 0)
	if d.Allowed {
		t.Fatal("limit 0 admits nothing")
	}
	if !d.ResetAt.Equal(clk.Now()) {
		t.Errorf("empty-log denial reset_at = %v, want now %v", d.ResetAt, clk.Now())
	}
}

func TestCheck_Concurrent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMemory(ctx, WithCleanupEvery(time.Hour))

	const limit = 50
	const callers = 200

	var admitted int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := m.Check(ctx, "user:9", limit, time.Minute, 0)
			if d.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != limit {
		t.Errorf("admitted %d concurrent requests, want exactly %d", admitted, limit)
	}
}

func TestCleanup_ZeroAgePrunesEverything(t *testing.T) {
	m, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		m.Check(ctx, fmt.Sprintf("user:%d", i), 100, time.Hour, 0)
	}
	if s := m.Stats(); s.Keys != 10 {
		t.Fatalf("tracked keys = %d, want 10", s.Keys)
	}

	if err := m.Cleanup(ctx, 0); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if s := m.Stats(); s.Keys != 0 {
		t.Errorf("tracked keys after Cleanup(0) = %d, want 0", s.Keys)
	}
}

func TestCleanup_KeepsActiveBlocks(t *testing.T) {
	m, clk := newTestLimiter(t)
	ctx := context.Background()

	m.Check(ctx, "ip:1.1.1.1", 1, time.Minute, time.Hour)
	m.Check(ctx, "ip:1.1.1.1", 1, time.Minute, time.Hour) // blocked now

	clk.Advance(2 * time.Minute)
	m.Cleanup(ctx, 0)

	// the block outlives the pruned log, the key stays tracked and denied
	if s := m.Stats(); s.Keys != 1 || s.Blocked != 1 {
		t.Fatalf("stats after cleanup = %+v, want 1 tracked, 1 blocked", s)
	}
	if d, _ := m.Check(ctx, "ip:1.1.1.1", 1, time.Minute, time.Hour); d.Allowed {
		t.Error("blocked key admitted after cleanup")
	}

	// expired block goes away on the next cleanup
	clk.Advance(2 * time.Hour)
	m.Cleanup(ctx, 0)
	if s := m.Stats(); s.Keys != 0 {
		t.Errorf("tracked keys = %d, want 0 after block expiry", s.Keys)
	}
}

func TestCleanup_OldEntriesOnly(t *testing.T) {
	m, clk := newTestLimiter(t)
	ctx := context.Background()

	m.Check(ctx, "user:1", 10, 24*time.Hour, 0)
	clk.Advance(3 * time.Hour)
	m.Check(ctx, "user:1", 10, 24*time.Hour, 0)

	// maxAge 2h drops the first entry, keeps the second
	m.Cleanup(ctx, 2*time.Hour)

	m.mu.Lock()
	got := len(m.entries["user:1"].log)
	m.mu.Unlock()
	if got != 1 {
		t.Errorf("log length after cleanup = %d, want 1", got)
	}
}
