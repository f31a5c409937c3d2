package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/RuslanFatikhov/Collections/internal/httpmw"
	"github.com/RuslanFatikhov/Collections/internal/log"
)

// Enforcer binds a Limiter to HTTP handlers. Each route opts into a
// policy with an explicit Limit(policy) wrap; there is no implicit
// attachment.
type Enforcer struct {
	limiter Limiter
	logger  log.Logger
	now     func() time.Time

	// OnDenied fires on every denial, OnBlocked only when a denial
	// triggered a lockout. Both are used for metrics counters.
	onDenied  func(policy, key string)
	onBlocked func(policy, key string)
}

type EnforcerOption func(*Enforcer)

// WithOnDenied sets a callback for every denied request.
func WithOnDenied(fn func(policy, key string)) EnforcerOption {
	return func(e *Enforcer) { e.onDenied = fn }
}

// WithOnBlocked sets a callback for denials that started a lockout.
func WithOnBlocked(fn func(policy, key string)) EnforcerOption {
	return func(e *Enforcer) { e.onBlocked = fn }
}

// WithEnforcerClock substitutes the time source used for Retry-After.
func WithEnforcerClock(now func() time.Time) EnforcerOption {
	return func(e *Enforcer) { e.now = now }
}

func NewEnforcer(l Limiter, logger log.Logger, opts ...EnforcerOption) *Enforcer {
	e := &Enforcer{
		limiter: l,
		logger:  logger,
		now:     time.Now,
	}
	if e.logger == nil {
		e.logger = log.Nop()
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Limit returns middleware enforcing the given policy. The admission
// decision completes before the wrapped handler runs. On denial the
// response is a 429 with Retry-After; on admission the X-RateLimit-*
// headers describe the caller's remaining budget.
func (e *Enforcer) Limit(pol Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := e.key(r, pol)

			d, err := e.limiter.Check(ctx, key, pol.Limit, pol.Window, pol.Block)
			if err != nil {
				// backend failure (Redis): fail open rather than take the
				// whole API down with it
				e.logger.Error(ctx, err, "rate limit check failed, admitting",
					"policy", pol.Name, "key", key)
				next.ServeHTTP(w, r)
				return
			}

			if !d.Allowed {
				retryAfter := ceilSeconds(d.ResetAt.Sub(e.now()))

				if e.onDenied != nil {
					e.onDenied(pol.Name, key)
				}
				if d.Blocked && e.onBlocked != nil {
					e.onBlocked(pol.Name, key)
				}
				e.logger.Warn(ctx, "rate limit exceeded",
					"policy", pol.Name,
					"key", key,
					"retry_after", retryAfter,
					"blocked", d.Blocked,
				)

				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(pol.Limit))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"error":"rate limit exceeded","retry_after":%d}`, retryAfter)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(pol.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			next.ServeHTTP(w, r)
		})
	}
}

// key resolves the limiter key: the authenticated user when the policy
// allows it, otherwise the resolved client IP.
func (e *Enforcer) key(r *http.Request, pol Policy) string {
	ctx := r.Context()
	if pol.PerUser {
		if uid, ok := httpmw.UserFromContext(ctx); ok {
			return UserKey(uid)
		}
	}
	if ip := httpmw.ClientIPFromContext(ctx); ip != "" {
		return IPKey(ip)
	}
	// client IP middleware did not run, resolve directly without
	// trusting proxy headers
	return IPKey(httpmw.ResolveClientIP(r, false))
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	s := int(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
