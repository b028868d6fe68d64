//go:build integration

package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx := context.Background()
	c, err := NewRedisClient(ctx, RedisConfig{Addr: addr, Prefix: "carfinder-test:"})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer c.Close()

	if err := c.Set(ctx, "a:1", []byte("x"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if v, err := c.Get(ctx, "a:1"); err != nil || string(v) != "x" {
		t.Fatalf("got %q, %v", v, err)
	}
	if err := c.DeleteByPrefix(ctx, "a:"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "a:1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("err = %v", err)
	}
}
