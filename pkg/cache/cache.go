// Package cache stores short-lived listing results in Redis, or in process
// memory when no Redis address is configured.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCacheMiss is returned for absent or expired keys.
var ErrCacheMiss = errors.New("cache: miss")

// Client is a byte-oriented TTL cache.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// Key joins parts with ":".
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// GetJSON decodes the value at key into out.
func GetJSON(ctx context.Context, c Client, key string, out any) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, c Client, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}
