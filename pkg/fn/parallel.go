package fn

import (
	"context"
	"sync"
)

// ParMap applies f to every item with at most workers running at once and
// returns the results in input order. Items not started before ctx is done
// fail with ctx.Err().
func ParMap[T, U any](ctx context.Context, items []T, workers int, f func(context.Context, T) Result[U]) []Result[U] {
	out := make([]Result[U], len(items))
	if len(items) == 0 {
		return out
	}
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, item := range items {
		select {
		case <-ctx.Done():
			out[i] = Err[U](ctx.Err())
			continue
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func() {
			defer func() { <-sem; wg.Done() }()
			out[i] = f(ctx, item)
		}()
	}
	wg.Wait()
	return out
}
