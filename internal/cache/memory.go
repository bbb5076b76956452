package cache

import (
	"context"
	"entryready/internal/metrics"
	. "entryready/internal/models"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const backendMemory = "memory"

// MemoryCache is a bounded process-local LRU whose entries expire after ttl.
type MemoryCache struct {
	lru     *expirable.LRU[Key, ComputedRequirements]
	metrics *metrics.Metrics
	hits    atomic.Uint64
	misses  atomic.Uint64
}

func NewMemoryCache(size int, ttl time.Duration, m *metrics.Metrics) *MemoryCache {
	if size <= 0 {
		size = 512
	}
	if m == nil {
		m = metrics.Nop()
	}

	return &MemoryCache{
		lru:     expirable.NewLRU[Key, ComputedRequirements](size, nil, ttlOrDefault(ttl)),
		metrics: m,
	}
}

func (c *MemoryCache) Get(_ context.Context, key Key) (ComputedRequirements, bool) {
	value, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		c.metrics.CacheMiss(backendMemory)
		return ComputedRequirements{}, false
	}

	c.hits.Add(1)
	c.metrics.CacheHit(backendMemory)
	return value.Clone(), true
}

func (c *MemoryCache) Set(_ context.Context, key Key, value ComputedRequirements) {
	c.lru.Add(key, value.Clone())
}

func (c *MemoryCache) Clear(context.Context) error {
	c.lru.Purge()
	return nil
}

func (c *MemoryCache) Stats() Stats {
	return Stats{
		Backend: backendMemory,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Size:    c.lru.Len(),
	}
}
