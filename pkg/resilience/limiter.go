package resilience

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/WessleyAI/carfinder/pkg/fn"
)

// ErrRateLimited is returned when no request token is available in time.
var ErrRateLimited = errors.New("resilience: rate limited")

// LimiterOpts configures a token bucket.
type LimiterOpts struct {
	// PerSecond is the refill rate. Zero or less means unlimited.
	PerSecond float64
	Burst     int
}

// Limiter is a token bucket shared by every call to one source.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a Limiter.
func NewLimiter(opts LimiterOpts) *Limiter {
	limit := rate.Limit(opts.PerSecond)
	if opts.PerSecond <= 0 {
		limit = rate.Inf
	}
	return &Limiter{lim: rate.NewLimiter(limit, max(opts.Burst, 1))}
}

// Allow takes a token if one is available now.
func (l *Limiter) Allow() bool { return l.lim.Allow() }

// Wait blocks for a token. It fails fast with ErrRateLimited when ctx would
// expire before one is available.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.lim.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return nil
}

// Stage waits for a token before running stage.
func Stage[In, Out any](l *Limiter, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		if err := l.Wait(ctx); err != nil {
			return fn.Err[Out](err)
		}
		return stage(ctx, in)
	}
}
