package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryClient is an in-process Client.
type MemoryClient struct {
	mu      sync.RWMutex
	data    map[string]entry
	maxSize int
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemoryClient creates a cache holding at most maxSize entries and starts
// a sweeper that runs until Close.
func NewMemoryClient(maxSize int) *MemoryClient {
	if maxSize <= 0 {
		maxSize = 10_000
	}
	c := &MemoryClient{
		data:    make(map[string]entry),
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweep(time.Minute)
	return c
}

// Get returns a copy of the value at key.
func (c *MemoryClient) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	if !ok || e.expired(c.now()) {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value. A zero ttl never expires.
func (c *MemoryClient) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxSize {
		c.evictSoonest()
	}
	c.data[key] = e
	return nil
}

// Delete removes key.
func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
	return nil
}

// DeleteByPrefix removes every key starting with prefix.
func (c *MemoryClient) DeleteByPrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryClient) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Close stops the sweeper.
func (c *MemoryClient) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// evictSoonest drops the entry closest to expiry. Callers hold mu.
func (c *MemoryClient) evictSoonest() {
	var victim string
	var soonest time.Time
	for key, e := range c.data {
		if e.expiresAt.IsZero() {
			continue
		}
		if victim == "" || e.expiresAt.Before(soonest) {
			victim, soonest = key, e.expiresAt
		}
	}
	if victim == "" {
		for key := range c.data {
			victim = key
			break
		}
	}
	delete(c.data, victim)
}

func (c *MemoryClient) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *MemoryClient) removeExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.data {
		if e.expired(now) {
			delete(c.data, key)
		}
	}
}
