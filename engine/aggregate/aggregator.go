package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/WessleyAI/carfinder/engine/domain"
	"github.com/WessleyAI/carfinder/pkg/cache"
	"github.com/WessleyAI/carfinder/pkg/fn"
	"github.com/WessleyAI/carfinder/pkg/metrics"
	"github.com/WessleyAI/carfinder/pkg/resilience"
)

// ErrSourceTimeout is recorded when a source does not answer within its timeout.
var ErrSourceTimeout = errors.New("aggregate: source timed out")

const cachePrefix = "listings"

// Options configures an Aggregator.
type Options struct {
	MaxConcurrent int
	Timeout       time.Duration
	CacheTTL      time.Duration
	Breaker       resilience.BreakerOpts
	Limiter       resilience.LimiterOpts
	Cache         cache.Client
	Metrics       *metrics.Registry
	Logger        *slog.Logger
}

// DefaultOptions returns the settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxConcurrent: 4,
		Timeout:       10 * time.Second,
		CacheTTL:      2 * time.Hour,
		Breaker:       resilience.DefaultBreakerOpts,
		Limiter:       resilience.LimiterOpts{PerSecond: 2, Burst: 4},
	}
}

// SourceStatus is the outcome of the last query against one source.
type SourceStatus struct {
	Name      string    `json:"name"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	Count     int       `json:"count"`
	LatencyMS int64     `json:"latency_ms"`
	Cached    bool      `json:"cached"`
	Breaker   string    `json:"breaker"`
	CheckedAt time.Time `json:"checked_at,omitzero"`
}

// Result is a merged aggregate response.
type Result struct {
	Listings []domain.Listing `json:"listings"`
	Sources  []SourceStatus   `json:"sources"`
}

// Failed returns the names of sources that contributed an error.
func (r Result) Failed() []string {
	var out []string
	for _, s := range r.Sources {
		if !s.OK {
			out = append(out, s.Name)
		}
	}
	return out
}

type sourceState struct {
	src     Source
	breaker *resilience.Breaker
	limiter *resilience.Limiter
}

type sourceMetrics struct {
	queries *metrics.Counter
	errors  *metrics.Counter
	latency *metrics.Histogram
}

// Aggregator fans a query out to every source and merges the answers.
type Aggregator struct {
	sources []sourceState
	opts    Options
	cache   cache.Client
	logger  *slog.Logger
	metrics map[string]sourceMetrics

	mu     sync.RWMutex
	status map[string]SourceStatus
}

// New creates an Aggregator over sources.
func New(opts Options, sources ...Source) *Aggregator {
	def := DefaultOptions()
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = def.MaxConcurrent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Breaker.FailThreshold <= 0 {
		opts.Breaker = def.Breaker
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	a := &Aggregator{
		opts:    opts,
		cache:   opts.Cache,
		logger:  opts.Logger.With("component", "aggregate"),
		metrics: make(map[string]sourceMetrics),
		status:  make(map[string]SourceStatus),
	}
	var queries, failures *metrics.CounterVec
	var latency *metrics.HistogramVec
	if opts.Metrics != nil {
		queries = opts.Metrics.CounterVec("carfinder_source_queries_total", "Listing source queries", "source")
		failures = opts.Metrics.CounterVec("carfinder_source_errors_total", "Listing source failures", "source")
		latency = opts.Metrics.HistogramVec("carfinder_source_duration_seconds", "Listing source latency", "source", nil)
	}
	for _, s := range sources {
		b := resilience.NewBreaker(s.Name(), opts.Breaker)
		a.sources = append(a.sources, sourceState{
			src:     s,
			breaker: b,
			limiter: resilience.NewLimiter(opts.Limiter),
		})
		a.status[s.Name()] = SourceStatus{Name: s.Name(), OK: true, Breaker: b.State().String()}
		if opts.Metrics != nil {
			a.metrics[s.Name()] = sourceMetrics{
				queries: queries.With(s.Name()),
				errors:  failures.With(s.Name()),
				latency: latency.With(s.Name()),
			}
		}
	}
	return a
}

// Search queries every source in parallel and returns the merged listings.
// Source failures never fail the search; they are reported in Result.Sources.
func (a *Aggregator) Search(ctx context.Context, c Criteria) Result {
	outcomes := make([]fn.Result[[]domain.Listing], len(a.sources))
	statuses := make([]SourceStatus, len(a.sources))

	var g errgroup.Group
	g.SetLimit(a.opts.MaxConcurrent)
	for i, s := range a.sources {
		g.Go(func() error {
			outcomes[i], statuses[i] = a.query(ctx, s, c)
			return nil
		})
	}
	_ = g.Wait()

	a.mu.Lock()
	for _, st := range statuses {
		a.status[st.Name] = st
	}
	a.mu.Unlock()

	all, errs := fn.Partition(outcomes)
	var merged []domain.Listing
	for _, ls := range all {
		merged = append(merged, ls...)
	}
	merged = Dedup(merged)
	a.logger.InfoContext(ctx, "aggregated listings",
		"sources", len(a.sources), "failed", len(errs), "listings", len(merged))
	return Result{Listings: merged, Sources: statuses}
}

// Refresh drops cached listings and queries every source again.
func (a *Aggregator) Refresh(ctx context.Context, c Criteria) Result {
	if a.cache != nil {
		if err := a.cache.DeleteByPrefix(ctx, cachePrefix+":"); err != nil {
			a.logger.WarnContext(ctx, "cache invalidation failed", "err", err)
		}
	}
	return a.Search(ctx, c)
}

// Status returns the last known status of every source.
func (a *Aggregator) Status() []SourceStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]SourceStatus, 0, len(a.sources))
	for _, s := range a.sources {
		st := a.status[s.src.Name()]
		st.Breaker = s.breaker.State().String()
		out = append(out, st)
	}
	return out
}

func (a *Aggregator) query(ctx context.Context, s sourceState, c Criteria) (fn.Result[[]domain.Listing], SourceStatus) {
	name := s.src.Name()
	start := time.Now()
	key := cache.Key(cachePrefix, name, c.Hash())
	m, hasMetrics := a.metrics[name]

	if a.cache != nil {
		var cached []domain.Listing
		err := cache.GetJSON(ctx, a.cache, key, &cached)
		switch {
		case err == nil:
			return fn.Ok(cached), SourceStatus{
				Name: name, OK: true, Count: len(cached), Cached: true,
				Breaker: s.breaker.State().String(), CheckedAt: start,
			}
		case !errors.Is(err, cache.ErrCacheMiss):
			a.logger.WarnContext(ctx, "cache read failed", "source", name, "err", err)
		}
	}

	res := a.call(ctx, s, c)
	elapsed := time.Since(start)
	if hasMetrics {
		m.queries.Inc()
		m.latency.Observe(elapsed.Seconds())
	}

	st := SourceStatus{
		Name:      name,
		LatencyMS: elapsed.Milliseconds(),
		Breaker:   s.breaker.State().String(),
		CheckedAt: start,
	}
	listings, err := res.Unwrap()
	if err != nil {
		if hasMetrics {
			m.errors.Inc()
		}
		st.Error = err.Error()
		a.logger.WarnContext(ctx, "source failed", "source", name, "err", err, "elapsed", elapsed)
		return res, st
	}

	st.OK = true
	st.Count = len(listings)
	if a.cache != nil && len(listings) > 0 {
		if err := cache.SetJSON(ctx, a.cache, key, listings, a.opts.CacheTTL); err != nil {
			a.logger.WarnContext(ctx, "cache write failed", "source", name, "err", err)
		}
	}
	return res, st
}

// call runs one source behind its limiter and breaker. The source keeps the
// caller's context; when the timeout fires first its eventual result is dropped.
func (a *Aggregator) call(ctx context.Context, s sourceState, c Criteria) fn.Result[[]domain.Listing] {
	if !s.limiter.Allow() {
		return fn.Err[[]domain.Listing](fmt.Errorf("%s: %w", s.src.Name(), resilience.ErrRateLimited))
	}

	done := make(chan fn.Result[[]domain.Listing], 1)
	go func() {
		done <- resilience.Call(ctx, s.breaker, func(ctx context.Context) ([]domain.Listing, error) {
			ls, err := s.src.Search(ctx, c)
			if err != nil {
				return nil, err
			}
			for i := range ls {
				ls[i].Source = s.src.Name()
				ls[i].Sources = withSource(ls[i].Sources, s.src.Name())
			}
			return ls, nil
		})
	}()

	timer := time.NewTimer(a.opts.Timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r
	case <-timer.C:
		return fn.Err[[]domain.Listing](fmt.Errorf("%s: after %s: %w", s.src.Name(), a.opts.Timeout, ErrSourceTimeout))
	case <-ctx.Done():
		return fn.Err[[]domain.Listing](ctx.Err())
	}
}
