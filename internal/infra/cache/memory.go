package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"ananse-reader/internal/domain"
	"ananse-reader/internal/infra/metrics"
)

// MemoryCache is an in-process domain.Cache for single-instance deployments.
type MemoryCache struct {
	store *gocache.Cache
}

var _ domain.Cache = (*MemoryCache)(nil)

// NewMemory creates a cache whose entries expire after defaultTTL unless Set says otherwise.
func NewMemory(defaultTTL time.Duration) *MemoryCache {
	cleanup := defaultTTL * 2
	if cleanup <= 0 {
		cleanup = 10 * time.Minute
	}
	return &MemoryCache{store: gocache.New(defaultTTL, cleanup)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := c.store.Get(key)
	metrics.ObserveCacheLookup("memory", ok)
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	data, _ := v.([]byte)
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.store.Set(key, stored, ttl)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.store.Delete(k)
	}
	return nil
}
