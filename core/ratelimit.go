// core/ratelimit.go
package core

// Per-requester backpressure (spec §5 "bounded concurrency"), one token
// bucket per requester id using golang.org/x/time/rate — the teacher's
// dependency set already pulls in x/time transitively; this gives it a
// concrete caller.

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter hands out one *rate.Limiter per requester, lazily created.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewRateLimiter constructs a limiter granting each requester rps tokens
// per second with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (r *RateLimiter) limiterFor(requesterID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[requesterID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(r.rps), r.burst)
		r.limiters[requesterID] = l
	}
	return l
}

// Allow reports whether requesterID may proceed now, consuming a token if
// so (spec §5 backpressure check, applied ahead of the collapse gate).
func (r *RateLimiter) Allow(requesterID string) bool {
	return r.limiterFor(requesterID).Allow()
}
