package fn

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryOpts configures Retry.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
	// Retryable decides whether an error is worth another attempt. Nil retries all.
	Retryable func(error) bool
}

// DefaultRetry suits calls to a local model server.
var DefaultRetry = RetryOpts{
	MaxAttempts: 3,
	InitialWait: 200 * time.Millisecond,
	MaxWait:     2 * time.Second,
	Jitter:      true,
}

// Retry calls f until it succeeds, the attempts run out, the error is not
// retryable, or ctx is done. Waits double between attempts.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	attempts := max(opts.MaxAttempts, 1)
	wait := opts.InitialWait
	var r Result[T]
	for attempt := 1; ; attempt++ {
		r = f(ctx)
		err := r.Error()
		if err == nil || attempt == attempts || (opts.Retryable != nil && !opts.Retryable(err)) {
			return r
		}

		sleep := wait
		if opts.Jitter {
			sleep = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if opts.MaxWait > 0 {
			sleep = min(sleep, opts.MaxWait)
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Err[T](ctx.Err())
		case <-timer.C:
		}
		wait *= 2
	}
}

// RetryStage retries a stage.
func RetryStage[In, Out any](opts RetryOpts, stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		return Retry(ctx, opts, func(ctx context.Context) Result[Out] { return stage(ctx, in) })
	}
}
