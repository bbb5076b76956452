package cache

import (
	"context"
	"entryready/internal/metrics"
	. "entryready/internal/models"
	"sync/atomic"
)

const backendNone = "none"

type NoopCache struct {
	metrics *metrics.Metrics
	misses  atomic.Uint64
}

func NewNoopCache(m *metrics.Metrics) *NoopCache {
	if m == nil {
		m = metrics.Nop()
	}
	return &NoopCache{metrics: m}
}

func (c *NoopCache) Get(context.Context, Key) (ComputedRequirements, bool) {
	c.misses.Add(1)
	c.metrics.CacheMiss(backendNone)
	return ComputedRequirements{}, false
}

func (c *NoopCache) Set(context.Context, Key, ComputedRequirements) {}

func (c *NoopCache) Clear(context.Context) error {
	return nil
}

func (c *NoopCache) Stats() Stats {
	return Stats{Backend: backendNone, Misses: c.misses.Load()}
}
