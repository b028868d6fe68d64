package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// Prefix namespaces every key. Defaults to "carfinder:".
	Prefix string
}

// RedisClient is a Client backed by Redis.
type RedisClient struct {
	client *redis.Client
	prefix string
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis ping %s: %w", cfg.Addr, err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "carfinder:"
	}
	return &RedisClient{client: client, prefix: prefix}, nil
}

// Get returns the value at key.
func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: redis get: %w", err)
	}
	return val, nil
}

// Set stores value with a TTL. Zero means no expiry.
func (c *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (c *RedisClient) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("cache: redis delete: %w", err)
	}
	return nil
}

// DeleteByPrefix removes every key starting with prefix.
func (c *RedisClient) DeleteByPrefix(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, c.prefix+prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("cache: redis delete by prefix: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("cache: redis delete by prefix: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (c *RedisClient) Close() error {
	return c.client.Close()
}
