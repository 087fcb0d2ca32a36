package fetch

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces requests.
type Limiter interface {
	// Wait blocks until the next request is permitted.
	Wait(ctx context.Context) error
}

// RateLimiter allows one request per delay. The first request passes
// immediately.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter with the given inter-request delay.
// A non-positive delay never blocks.
func NewRateLimiter(delay time.Duration) *RateLimiter {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next request is permitted or ctx is done.
func (l *RateLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// NoLimit never blocks.
type NoLimit struct{}

// Wait returns immediately unless ctx is already done.
func (NoLimit) Wait(ctx context.Context) error {
	return ctx.Err()
}
