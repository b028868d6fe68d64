package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestClient(t *testing.T, size int) (*MemoryClient, *clock) {
	t.Helper()
	c := NewMemoryClient(size)
	t.Cleanup(func() { c.Close() })
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c.now = clk.now
	return c, clk
}

func TestMemoryGetSetExpiry(t *testing.T) {
	c, clk := newTestClient(t, 10)
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("err = %v", err)
	}
	if err := c.Set(ctx, "a", []byte("1"), time.Hour); err != nil {
		t.Fatal(err)
	}
	if v, err := c.Get(ctx, "a"); err != nil || string(v) != "1" {
		t.Fatalf("got %q, %v", v, err)
	}
	clk.advance(time.Hour)
	if _, err := c.Get(ctx, "a"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expired entry returned: %v", err)
	}
	c.removeExpired()
	if c.Len() != 0 {
		t.Errorf("len = %d after sweep", c.Len())
	}
}

func TestMemoryNoTTL(t *testing.T) {
	c, clk := newTestClient(t, 10)
	ctx := context.Background()
	_ = c.Set(ctx, "k", []byte("v"), 0)
	clk.advance(24 * 365 * time.Hour)
	if _, err := c.Get(ctx, "k"); err != nil {
		t.Errorf("zero TTL expired: %v", err)
	}
}

func TestMemoryEviction(t *testing.T) {
	c, _ := newTestClient(t, 2)
	ctx := context.Background()
	_ = c.Set(ctx, "soon", []byte("1"), time.Minute)
	_ = c.Set(ctx, "later", []byte("2"), time.Hour)
	_ = c.Set(ctx, "new", []byte("3"), time.Hour)

	if c.Len() != 2 {
		t.Fatalf("len = %d", c.Len())
	}
	if _, err := c.Get(ctx, "soon"); !errors.Is(err, ErrCacheMiss) {
		t.Error("entry closest to expiry was not evicted")
	}
}

func TestMemoryDeleteByPrefix(t *testing.T) {
	c, _ := newTestClient(t, 10)
	ctx := context.Background()
	_ = c.Set(ctx, Key("listings", "autotrader", "x"), []byte("1"), time.Hour)
	_ = c.Set(ctx, Key("listings", "cars.com", "y"), []byte("2"), time.Hour)
	_ = c.Set(ctx, Key("status"), []byte("3"), time.Hour)

	if err := c.DeleteByPrefix(ctx, "listings:"); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
	_ = c.Delete(ctx, "status")
	if c.Len() != 0 {
		t.Errorf("len = %d after delete", c.Len())
	}
}

func TestJSONHelpers(t *testing.T) {
	c, _ := newTestClient(t, 10)
	ctx := context.Background()
	type listing struct {
		VIN   string  `json:"vin"`
		Price float64 `json:"price"`
	}
	in := []listing{{VIN: "1HGCM82633A004352", Price: 21000}}
	if err := SetJSON(ctx, c, "k", in, time.Minute); err != nil {
		t.Fatal(err)
	}
	var out []listing
	if err := GetJSON(ctx, c, "k", &out); err != nil || len(out) != 1 || out[0] != in[0] {
		t.Errorf("got %+v, %v", out, err)
	}
	_ = c.Set(ctx, "bad", []byte("{"), time.Minute)
	if err := GetJSON(ctx, c, "bad", &out); err == nil || errors.Is(err, ErrCacheMiss) {
		t.Errorf("decode err = %v", err)
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	c, _ := newTestClient(t, 10)
	ctx := context.Background()
	buf := []byte("abc")
	_ = c.Set(ctx, "k", buf, 0)
	buf[0] = 'z'
	v, _ := c.Get(ctx, "k")
	if string(v) != "abc" {
		t.Errorf("stored value aliased caller buffer: %q", v)
	}
}
