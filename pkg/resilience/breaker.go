// Package resilience guards calls to external listing sources with circuit
// breakers and rate limiters.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/WessleyAI/carfinder/pkg/fn"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling through while a breaker is open.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// BreakerOpts configures a Breaker.
type BreakerOpts struct {
	// FailThreshold consecutive failures open the breaker.
	FailThreshold int
	// Cooldown is how long the breaker stays open before a probe is allowed.
	Cooldown time.Duration
	// HalfOpenMax is the number of concurrent probes allowed while half-open.
	HalfOpenMax int
	// OnStateChange, if set, is called outside the lock after every transition.
	OnStateChange func(name string, from, to State)
}

// DefaultBreakerOpts trips after three failures and probes again after a minute.
var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 3,
	Cooldown:      time.Minute,
	HalfOpenMax:   1,
}

// Breaker is a named circuit breaker, one per external source.
type Breaker struct {
	name string
	opts BreakerOpts
	now  func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	probes   int
	openedAt time.Time
}

// NewBreaker creates a closed breaker. Zero options take the defaults.
func NewBreaker(name string, opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultBreakerOpts.Cooldown
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = DefaultBreakerOpts.HalfOpenMax
	}
	return &Breaker{name: name, opts: opts, now: time.Now}
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	st, notify := b.refresh()
	b.mu.Unlock()
	if notify != nil {
		notify()
	}
	return st
}

// refresh moves open to half-open once the cooldown elapsed. Callers hold mu.
func (b *Breaker) refresh() (State, func()) {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Cooldown {
		return StateHalfOpen, b.transition(StateHalfOpen)
	}
	return b.state, nil
}

// transition sets the state and returns the notification to run after unlock.
func (b *Breaker) transition(to State) func() {
	from := b.state
	b.state = to
	switch to {
	case StateOpen:
		b.openedAt = b.now()
		b.probes = 0
	case StateHalfOpen:
		b.probes = 0
	case StateClosed:
		b.failures = 0
	}
	if b.opts.OnStateChange == nil || from == to {
		return nil
	}
	name, cb := b.name, b.opts.OnStateChange
	return func() { cb(name, from, to) }
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	st, notify := b.refresh()
	var err error
	switch st {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if b.probes >= b.opts.HalfOpenMax {
			err = ErrCircuitOpen
		} else {
			b.probes++
		}
	}
	b.mu.Unlock()
	if notify != nil {
		notify()
	}
	return err
}

// record counts the outcome of a call. A cancelled caller is not the
// source's fault and is not counted.
func (b *Breaker) record(err error) {
	if errors.Is(err, context.Canceled) {
		b.mu.Lock()
		if b.state == StateHalfOpen && b.probes > 0 {
			b.probes--
		}
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	var notify func()
	if err != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.opts.FailThreshold {
			notify = b.transition(StateOpen)
		}
	} else {
		b.failures = 0
		if b.state != StateClosed {
			notify = b.transition(StateClosed)
		}
	}
	b.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// Do runs f unless the breaker is open, and records its outcome.
func (b *Breaker) Do(ctx context.Context, f func(context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := f(ctx)
	b.record(err)
	return err
}

// Call is Do for functions that return a value.
func Call[T any](ctx context.Context, b *Breaker, f func(context.Context) (T, error)) fn.Result[T] {
	if err := b.acquire(); err != nil {
		return fn.Err[T](err)
	}
	v, err := f(ctx)
	b.record(err)
	return fn.FromPair(v, err)
}
