// Package fn holds the small generic helpers the engine pipelines are built
// from: a Result type, staged pipelines with tracing, bounded fan-out and
// retries.
package fn

// Result carries either a value or an error through a pipeline.
type Result[T any] struct {
	val T
	err error
}

// Ok wraps a value.
func Ok[T any](v T) Result[T] {
	return Result[T]{val: v}
}

// Err wraps an error. A nil err still yields a failed Result.
func Err[T any](err error) Result[T] {
	if err == nil {
		err = errNil
	}
	return Result[T]{err: err}
}

// FromPair converts a (value, error) return into a Result.
func FromPair[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

// IsOk reports success.
func (r Result[T]) IsOk() bool { return r.err == nil }

// IsErr reports failure.
func (r Result[T]) IsErr() bool { return r.err != nil }

// Unwrap returns the value and error.
func (r Result[T]) Unwrap() (T, error) { return r.val, r.err }

// Error returns the failure, or nil.
func (r Result[T]) Error() error { return r.err }

// UnwrapOr returns the value, or fallback on failure.
func (r Result[T]) UnwrapOr(fallback T) T {
	if r.err != nil {
		return fallback
	}
	return r.val
}

// Partition splits results into values and errors, keeping order within each.
func Partition[T any](results []Result[T]) ([]T, []error) {
	var vals []T
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		vals = append(vals, r.val)
	}
	return vals, errs
}
