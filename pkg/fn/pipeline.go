package fn

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/WessleyAI/carfinder/pkg/fn"

// Stage transforms In to Out.
type Stage[In, Out any] func(context.Context, In) Result[Out]

// Then runs second on the output of first, stopping at the first failure.
func Then[A, B, C any](first Stage[A, B], second Stage[B, C]) Stage[A, C] {
	return func(ctx context.Context, a A) Result[C] {
		b, err := first(ctx, a).Unwrap()
		if err != nil {
			return Err[C](err)
		}
		return second(ctx, b)
	}
}

// Lift wraps a fallible function as a Stage.
func Lift[In, Out any](f func(context.Context, In) (Out, error)) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		return FromPair(f(ctx, in))
	}
}

// Traced wraps a stage in an OpenTelemetry span named name.
func Traced[In, Out any](name string, stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		ctx, span := otel.Tracer(tracerName).Start(ctx, name)
		defer span.End()
		r := stage(ctx, in)
		if err := r.Error(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return r
	}
}
