package componentcache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryProvider is the default "in-process map" provider named in spec
// §4.D, backed by github.com/patrickmn/go-cache: a sharded-lock TTL cache
// that is already concurrency-safe, matching §5's requirement that a cache
// provider "must itself be concurrency-safe."
type MemoryProvider struct {
	c *gocache.Cache
}

// NewMemoryProvider builds an in-process Provider. cleanupInterval controls
// how often expired entries are purged; 0 or a negative value means once a
// minute.
func NewMemoryProvider(cleanupInterval time.Duration) *MemoryProvider {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryProvider{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// Get implements Provider.
func (m *MemoryProvider) Get(_ context.Context, key string) (any, bool, error) {
	v, ok := m.c.Get(key)
	return v, ok, nil
}

// Set implements Provider.
func (m *MemoryProvider) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.c.Set(key, value, ttl)
	return nil
}

// Delete implements Provider.
func (m *MemoryProvider) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

var _ Provider = (*MemoryProvider)(nil)
