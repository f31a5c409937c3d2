package ratelimit

import (
	"net/http"

	"golang.org/x/time/rate"
)

// Ceiling is a process-wide token bucket applied ahead of the per-key
// sliding window. The window enforcer tracks per-user and per-IP state;
// the ceiling bounds total throughput so a flood of distinct keys cannot
// grow that state without limit.
type Ceiling struct {
	limiter *rate.Limiter
}

// NewCeiling allows perSecond sustained requests with the given burst.
// perSecond <= 0 disables the ceiling.
func NewCeiling(perSecond float64, burst int) *Ceiling {
	if perSecond <= 0 {
		return &Ceiling{}
	}
	return &Ceiling{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Middleware rejects with 503 once the bucket is empty. Unlike the
// per-key enforcer this carries no Retry-After, the client did nothing
// wrong, the process is overloaded.
func (c *Ceiling) Middleware(next http.Handler) http.Handler {
	if c == nil || c.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.limiter.Allow() {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"server overloaded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
