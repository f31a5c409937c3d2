// Package ratelimit implements per-key sliding-window admission with an
// explicit lockout on abuse.
//
// Each key keeps an insertion-ordered log of admitted request timestamps.
// A check prunes entries older than the window, then either admits the
// request or denies it; policies with a block duration additionally lock
// the key out for that duration once the window is full. While a key is
// blocked every request is denied without touching the log.
//
// The in-memory implementation is the default and is safe for concurrent
// use; a Redis-backed implementation of the same contract exists for
// multi-process deployments.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of a single admission check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// Remaining is the number of requests left in the current window.
	// Zero when denied.
	Remaining int
	// ResetAt is when the caller regains capacity: the end of the block
	// when locked out, the expiry of the oldest logged request on a plain
	// denial, or the end of the fresh window on admission.
	ResetAt time.Time
	// Blocked reports that the denial came from an active lockout, not
	// just a full window.
	Blocked bool
}

// Limiter is the admission contract shared by the memory and Redis
// implementations. The memory implementation never returns an error.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window, block time.Duration) (Decision, error)
	Cleanup(ctx context.Context, maxAge time.Duration) error
}

// Stats is a point-in-time view of tracked limiter state.
type Stats struct {
	Keys    int
	Blocked int
}

type entry struct {
	// log holds admitted timestamps, oldest first; timestamps are
	// monotonically non-decreasing so pruning is a FIFO cut.
	log          []time.Time
	blockedUntil time.Time
}

// Memory is the in-process Limiter. All keys share one mutex: checks are
// map lookups plus a slice cut, so contention is negligible next to
// request handling.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry

	// now is replaceable in tests
	now func() time.Time

	maxAge       time.Duration
	cleanupEvery time.Duration
}

type Option func(*Memory)

// WithClock substitutes the time source, used by tests to step through
// windows without sleeping.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// WithMaxAge sets how old a log entry may get before the janitor drops it.
func WithMaxAge(d time.Duration) Option {
	return func(m *Memory) { m.maxAge = d }
}

// WithCleanupEvery sets the janitor tick interval.
func WithCleanupEvery(d time.Duration) Option {
	return func(m *Memory) { m.cleanupEvery = d }
}

// NewMemory creates the in-memory limiter and starts the background
// janitor goroutine, which stops when ctx is cancelled.
func NewMemory(ctx context.Context, opts ...Option) *Memory {
	m := &Memory{
		entries:      make(map[string]*entry),
		now:          time.Now,
		maxAge:       time.Hour,
		cleanupEvery: 10 * time.Minute,
	}
	for _, o := range opts {
		o(m)
	}
	go m.janitor(ctx)
	return m
}

// Check decides whether one request for key may proceed under
// limit/window, locking the key out for block when the window is full and
// block is positive. It never returns an error.
func (m *Memory) Check(_ context.Context, key string, limit int, window, block time.Duration) (Decision, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entries[key]
	if e == nil {
		e = &entry{}
		m.entries[key] = e
	}

	// an active block denies outright, the log is neither read nor pruned
	if now.Before(e.blockedUntil) {
		return Decision{ResetAt: e.blockedUntil, Blocked: true}, nil
	}

	// evict entries that have aged out of the window
	cutoff := now.Add(-window)
	i := 0
	for i < len(e.log) && !e.log[i].After(cutoff) {
		i++
	}
	if i > 0 {
		e.log = append(e.log[:0], e.log[i:]...)
	}

	if len(e.log) >= limit {
		if block > 0 {
			e.blockedUntil = now.Add(block)
			return Decision{ResetAt: e.blockedUntil, Blocked: true}, nil
		}
		// no lockout: capacity frees up when the oldest entry expires
		resetAt := now
		if len(e.log) > 0 {
			resetAt = e.log[0].Add(window)
		}
		return Decision{ResetAt: resetAt}, nil
	}

	e.log = append(e.log, now)
	return Decision{
		Allowed:   true,
		Remaining: limit - len(e.log),
		ResetAt:   now.Add(window),
	}, nil
}

// Cleanup drops log entries older than maxAge, clears expired blocks, and
// removes keys left with neither. Runs off the request path.
func (m *Memory) Cleanup(_ context.Context, maxAge time.Duration) error {
	now := m.now()
	cutoff := now.Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, e := range m.entries {
		i := 0
		for i < len(e.log) && !e.log[i].After(cutoff) {
			i++
		}
		if i > 0 {
			e.log = append(e.log[:0], e.log[i:]...)
		}
		if !e.blockedUntil.After(now) {
			e.blockedUntil = time.Time{}
		}
		if len(e.log) == 0 && e.blockedUntil.IsZero() {
			delete(m.entries, key)
		}
	}
	return nil
}

// Stats reports how many keys are tracked and how many are locked out.
func (m *Memory) Stats() Stats {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Keys: len(m.entries)}
	for _, e := range m.entries {
		if now.Before(e.blockedUntil) {
			s.Blocked++
		}
	}
	return s
}

func (m *Memory) janitor(ctx context.Context) {
	ticker := time.NewTicker(m.cleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = m.Cleanup(ctx, m.maxAge)
		}
	}
}
