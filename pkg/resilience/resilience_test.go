package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var errSource = errors.New("source down")

func fail(context.Context) error { return errSource }
func succeed(context.Context) error { return nil }

func TestBreakerLifecycle(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var transitions []string
	b := NewBreaker("autotrader", BreakerOpts{
		FailThreshold: 2,
		Cooldown:      time.Minute,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})
	b.now = clock.now
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	if b.State() != StateClosed {
		t.Fatalf("opened after one failure")
	}
	_ = b.Do(ctx, fail)
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker let a call through: %v", err)
	}

	clock.advance(time.Minute)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half-open", b.State())
	}
	if err := b.Do(ctx, succeed); err != nil {
		t.Fatal(err)
	}
	if b.State() != StateClosed {
		t.Errorf("probe success did not close the breaker")
	}

	want := []string{
		"autotrader:closed->open",
		"autotrader:open->half-open",
		"autotrader:half-open->closed",
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := NewBreaker("cars.com", BreakerOpts{FailThreshold: 1, Cooldown: time.Second})
	b.now = clock.now
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	clock.advance(time.Second)
	if err := b.Do(ctx, fail); !errors.Is(err, errSource) {
		t.Fatalf("probe err = %v", err)
	}
	if b.State() != StateOpen {
		t.Errorf("state = %s, want open", b.State())
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b := NewBreaker("cargurus", BreakerOpts{FailThreshold: 1})
	_ = b.Do(context.Background(), func(context.Context) error { return context.Canceled })
	if b.State() != StateClosed {
		t.Errorf("caller cancellation opened the breaker")
	}
}

func TestCall(t *testing.T) {
	b := NewBreaker("auto.dev", BreakerOpts{FailThreshold: 1})
	r := Call(context.Background(), b, func(context.Context) (int, error) { return 7, nil })
	if v, err := r.Unwrap(); err != nil || v != 7 {
		t.Errorf("got %d, %v", v, err)
	}
	Call(context.Background(), b, func(context.Context) (int, error) { return 0, errSource })
	if r := Call(context.Background(), b, func(context.Context) (int, error) { return 1, nil }); !errors.Is(r.Error(), ErrCircuitOpen) {
		t.Errorf("err = %v", r.Error())
	}
}

func TestLimiter(t *testing.T) {
	l := NewLimiter(LimiterOpts{PerSecond: 1, Burst: 2})
	if !l.Allow() || !l.Allow() {
		t.Fatal("burst not available")
	}
	if l.Allow() {
		t.Fatal("allowed beyond burst")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); !errors.Is(err, ErrRateLimited) && !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait err = %v", err)
	}
}

func TestLimiterUnlimited(t *testing.T) {
	l := NewLimiter(LimiterOpts{})
	for range 100 {
		if !l.Allow() {
			t.Fatal("unlimited limiter refused")
		}
	}
}
