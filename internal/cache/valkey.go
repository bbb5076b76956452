package cache

import (
	"context"
	"entryready/internal/database"
	"entryready/internal/logger"
	"entryready/internal/metrics"
	. "entryready/internal/models"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	backendValkey = "valkey"
	keyPrefix     = "requirements:"
)

// ValkeyCache shares computed requirements between instances. Reads retry with
// bounded backoff; any remaining failure is reported as a miss.
type ValkeyCache struct {
	client  database.CacheClient
	ttl     time.Duration
	metrics *metrics.Metrics
	log     logger.Logger
	hits    atomic.Uint64
	misses  atomic.Uint64
}

func NewValkeyCache(client database.CacheClient, ttl time.Duration, m *metrics.Metrics) *ValkeyCache {
	if m == nil {
		m = metrics.Nop()
	}

	return &ValkeyCache{
		client:  client,
		ttl:     ttlOrDefault(ttl),
		metrics: m,
		log:     logger.New("ValkeyCache"),
	}
}

func (c *ValkeyCache) Get(ctx context.Context, key Key) (ComputedRequirements, bool) {
	log := c.log.Function("Get")

	var value ComputedRequirements
	var found bool
	read := func() error {
		var err error
		found, err = database.NewCacheBuilder(c.client, keyPrefix+key.String()).
			WithContext(ctx).
			Get(&value)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxElapsedTime = 500 * time.Millisecond
	if err := backoff.Retry(read, backoff.WithContext(backoff.WithMaxRetries(policy, 3), ctx)); err != nil {
		log.Warn("requirements cache read failed", "key", key.String(), "error", err)
		found = false
	}

	if !found {
		c.misses.Add(1)
		c.metrics.CacheMiss(backendValkey)
		return ComputedRequirements{}, false
	}

	c.hits.Add(1)
	c.metrics.CacheHit(backendValkey)
	return value.Clone(), true
}

func (c *ValkeyCache) Set(ctx context.Context, key Key, value ComputedRequirements) {
	err := database.NewCacheBuilder(c.client, keyPrefix+key.String()).
		WithStruct(value).
		WithTTL(c.ttl).
		WithContext(ctx).
		Set()
	if err != nil {
		c.log.Function("Set").Warn("requirements cache write failed", "key", key.String(), "error", err)
	}
}

func (c *ValkeyCache) Clear(ctx context.Context) error {
	deleted, err := database.NewCacheBuilder(c.client, keyPrefix+"*").WithContext(ctx).DeletePattern()
	if err != nil {
		return c.log.Function("Clear").Err("failed to clear requirements cache", err)
	}

	c.log.Function("Clear").Info("Cleared requirements cache", "keys", deleted)
	return nil
}

// Stats reports this instance's hit and miss counts; Size is not tracked.
func (c *ValkeyCache) Stats() Stats {
	return Stats{
		Backend: backendValkey,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
