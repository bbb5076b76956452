// Package cache holds the requirements cache backends. Every backend keys on
// the (nationality, destination) pair and hands out copies, so callers can
// never mutate a cached value.
package cache

import (
	"context"
	"entryready/config"
	"entryready/internal/database"
	"entryready/internal/metrics"
	. "entryready/internal/models"
	"fmt"
	"strings"
	"time"
)

type Key struct {
	Nationality string
	Destination string
}

func NewKey(nationality, destination string) Key {
	return Key{
		Nationality: strings.ToUpper(strings.TrimSpace(nationality)),
		Destination: strings.ToUpper(strings.TrimSpace(destination)),
	}
}

func (k Key) String() string {
	return k.Destination + ":" + k.Nationality
}

type Stats struct {
	Backend string `json:"backend"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Size    int    `json:"size"`
}

// RequirementsCache memoizes computed requirements. It is a pure
// optimization: a miss or a backend failure only costs a recomputation.
type RequirementsCache interface {
	Get(ctx context.Context, key Key) (ComputedRequirements, bool)
	Set(ctx context.Context, key Key, value ComputedRequirements)
	Clear(ctx context.Context) error
	Stats() Stats
}

// New picks the backend named by REQUIREMENTS_CACHE_BACKEND.
func New(cfg config.Config, db database.DB, m *metrics.Metrics) (RequirementsCache, error) {
	switch cfg.RequirementsCacheBackend {
	case config.CacheBackendMemory, "":
		return NewMemoryCache(cfg.RequirementsCacheSize, cfg.RequirementsCacheTTL, m), nil
	case config.CacheBackendValkey:
		if db.Cache.Requirements == nil {
			return nil, fmt.Errorf("valkey requirements cache selected but no cache client is configured")
		}
		return NewValkeyCache(db.Cache.Requirements, cfg.RequirementsCacheTTL, m), nil
	case config.CacheBackendNone:
		return NewNoopCache(m), nil
	default:
		return nil, fmt.Errorf("unknown requirements cache backend %q", cfg.RequirementsCacheBackend)
	}
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 5 * time.Minute
	}
	return ttl
}
