package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

type LayeredOption func(*layeredConfig)

type layeredConfig struct {
	maxEntries int64
	localTTL   time.Duration
}

// WithLocalEntries bounds the in-process tier. Default 1000.
func WithLocalEntries(n int64) LayeredOption {
	return func(c *layeredConfig) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithLocalTTL caps how long the in-process tier serves an entry. It bounds
// how stale a replica can be after another one invalidates Redis. Default 30s.
func WithLocalTTL(d time.Duration) LayeredOption {
	return func(c *layeredConfig) {
		if d > 0 {
			c.localTTL = d
		}
	}
}

// LayeredCache reads through an in-process ristretto tier in front of Redis.
// Writes go to Redis first. Locks always go to Redis.
type LayeredCache struct {
	local    *ristretto.Cache[string, []byte]
	remote   *RedisCache
	localTTL time.Duration
}

func NewLayeredCache(remote *RedisCache, opts ...LayeredOption) (*LayeredCache, error) {
	cfg := &layeredConfig{maxEntries: 1000, localTTL: 30 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}
	local, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: cfg.maxEntries * 10,
		MaxCost:     cfg.maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("local cache: %w", err)
	}
	return &LayeredCache{local: local, remote: remote, localTTL: cfg.localTTL}, nil
}

func (l *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if data, ok := l.local.Get(key); ok {
		return decode(data, dest)
	}
	var data []byte
	if err := l.remote.Get(ctx, key, &data); err != nil {
		return err
	}
	l.local.SetWithTTL(key, data, 1, l.localTTL)
	return decode(data, dest)
}

func (l *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := l.remote.Set(ctx, key, data, ttl); err != nil {
		return err
	}
	local := l.localTTL
	if ttl > 0 && ttl < local {
		local = ttl
	}
	l.local.SetWithTTL(key, data, 1, local)
	return nil
}

func (l *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		l.local.Del(k)
	}
	return l.remote.Delete(ctx, keys...)
}

// DeleteByPattern clears the whole local tier; ristretto cannot enumerate keys.
func (l *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	l.local.Clear()
	return l.remote.DeleteByPattern(ctx, pattern)
}

func (l *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return l.remote.Exists(ctx, keys...)
}

func (l *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.remote.TryLock(ctx, key, ttl)
}

func (l *LayeredCache) Unlock(ctx context.Context, key string) error {
	return l.remote.Unlock(ctx, key)
}

// Close closes the local tier only. The Redis connection is shared with the
// scenario queue and closed by its owner.
func (l *LayeredCache) Close() error {
	l.local.Close()
	return nil
}
