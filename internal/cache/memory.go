package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryCache is an in-process Cache bounded by an LRU. It is used when no
// Redis URL is configured and in tests.
type MemoryCache struct {
	mu       sync.Mutex
	entries  *lru.Cache[string, memoryEntry]
	counters map[string]memoryCounter
	now      func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

type memoryCounter struct {
	n         int64
	expiresAt time.Time
}

// NewMemoryCache creates a MemoryCache holding at most size entries.
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = 1024
	}
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{
		entries:  entries,
		counters: make(map[string]memoryCounter),
		now:      time.Now,
	}, nil
}

func (c *MemoryCache) Ping(_ context.Context) error { return nil }

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.counters = make(map[string]memoryCounter)
	return nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value, ttl)
	return nil
}

func (c *MemoryCache) set(key string, value []byte, ttl time.Duration) {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries.Add(key, e)
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.get(key)
	return v, ok, nil
}

func (c *MemoryCache) get(key string) ([]byte, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.entries.Remove(key)
		return nil, false
	}
	return append([]byte(nil), e.value...), true
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
	return nil
}

func (c *MemoryCache) SetAnalysisStatus(ctx context.Context, recordID string, status string, ttl time.Duration) error {
	return c.Set(ctx, AnalysisStatusKey(recordID), []byte(status), ttl)
}

func (c *MemoryCache) GetAnalysisStatus(ctx context.Context, recordID string) (string, bool, error) {
	v, ok, err := c.Get(ctx, AnalysisStatusKey(recordID))
	if err != nil || !ok {
		return "", false, err
	}
	return string(v), true, nil
}

// IncrWithExpiry mirrors the Redis INCR+EXPIRE pipeline: every call refreshes the expiry.
func (c *MemoryCache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	ctr := c.counters[key]
	if !ctr.expiresAt.IsZero() && !now.Before(ctr.expiresAt) {
		ctr = memoryCounter{}
	}
	ctr.n++
	ctr.expiresAt = now.Add(expiry)
	c.counters[key] = ctr
	return ctr.n, nil
}

var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = (*MemoryCache)(nil)
)
