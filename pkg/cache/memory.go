package cache

import (
	"container/list"
	"context"
	"fmt"
	"path"
	"sync"
	"time"
)

const defaultTTL = 7 * 24 * time.Hour

type MemoryOption func(*MemoryCache)

// WithMemoryMaxSize bounds the number of entries. Default 1000.
func WithMemoryMaxSize(n int) MemoryOption {
	return func(m *MemoryCache) {
		if n > 0 {
			m.maxSize = n
		}
	}
}

// WithMemoryCleanup sets how often expired entries are swept. Default 5m.
func WithMemoryCleanup(every time.Duration) MemoryOption {
	return func(m *MemoryCache) {
		if every > 0 {
			m.sweepEvery = every
		}
	}
}

type memoryEntry struct {
	key      string
	value    []byte
	expireAt time.Time
}

// MemoryCache is an in-process Service with LRU eviction. It backs the
// pipeline lock and analytics when Redis is disabled, so everything it
// guards is process local.
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	lru        *list.List // front is most recently used
	maxSize    int
	sweepEvery time.Duration
	now        func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	m := &MemoryCache{
		items:      make(map[string]*list.Element),
		lru:        list.New(),
		maxSize:    1000,
		sweepEvery: 5 * time.Minute,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.sweep()
	return m
}

func (m *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	e, ok := m.live(key)
	var data []byte
	if ok {
		m.lru.MoveToFront(m.items[key])
		data = e.value
	}
	m.mu.Unlock()
	if !ok {
		return ErrCacheMiss
	}
	return decode(data, dest)
}

func (m *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	m.mu.Lock()
	m.put(key, data, ttl)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.remove(k)
	}
	return nil
}

// DeleteByPattern removes keys matching a glob such as "analytics:*".
func (m *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.items {
		if ok, _ := path.Match(pattern, k); ok {
			m.remove(k)
		}
	}
	return nil
}

func (m *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if _, ok := m.live(k); ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.live(key); held {
		return false, nil
	}
	m.put(key, []byte("locked"), ttl)
	return true, nil
}

func (m *MemoryCache) Unlock(ctx context.Context, key string) error {
	return m.Delete(ctx, key)
}

// Close stops the sweeper. The cache stays usable.
func (m *MemoryCache) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

// Len counts entries, expired ones included until swept.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

// live returns the unexpired entry under key, dropping it if expired.
// Callers hold mu.
func (m *MemoryCache) live(key string) (*memoryEntry, bool) {
	el, ok := m.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*memoryEntry)
	if !m.now().Before(e.expireAt) {
		m.remove(key)
		return nil, false
	}
	return e, true
}

func (m *MemoryCache) put(key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	exp := m.now().Add(ttl)
	if el, ok := m.items[key]; ok {
		e := el.Value.(*memoryEntry)
		e.value, e.expireAt = data, exp
		m.lru.MoveToFront(el)
		return
	}
	for m.lru.Len() >= m.maxSize {
		oldest := m.lru.Back()
		m.remove(oldest.Value.(*memoryEntry).key)
	}
	m.items[key] = m.lru.PushFront(&memoryEntry{key: key, value: data, expireAt: exp})
}

func (m *MemoryCache) remove(key string) {
	if el, ok := m.items[key]; ok {
		m.lru.Remove(el)
		delete(m.items, key)
	}
}

func (m *MemoryCache) sweep() {
	t := time.NewTicker(m.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-t.C:
		}
		m.mu.Lock()
		now := m.now()
		for k, el := range m.items {
			if !now.Before(el.Value.(*memoryEntry).expireAt) {
				m.remove(k)
			}
		}
		m.mu.Unlock()
	}
}
