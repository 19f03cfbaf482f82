// Package preparedcache implements the prepared-statement cache of spec
// §4.C: an LRU of query-shape to reusable SQL text, fingerprinted on
// structure rather than parameter values.
package preparedcache

import (
	"context"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// ShapeKey fingerprints a query's structure: the components requested, the
// filter operators and field paths (never literal values), OR-group
// presence, sort fields, limit/offset presence, populate flag, and row vs
// count mode. Two queries differing only in parameter values must produce
// an identical ShapeKey; differing in operator or field path must not.
type ShapeKey string

// Entry is what the cache stores per shape: the SQL text and the ordered
// parameter placeholders a caller must fill in at execution time.
type Entry struct {
	SQL        string
	ParamNames []string
}

// Cache is a process-wide, thread-safe LRU keyed by ShapeKey. The
// underlying hashicorp/golang-lru/v2 list already serializes access, so
// this type only adds the hit/miss/eviction metrics the spec requires.
type Cache struct {
	lru *lru.Cache[ShapeKey, Entry]

	mu        sync.Mutex
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	hitCounter      metric.Int64Counter
	missCounter     metric.Int64Counter
	evictionCounter metric.Int64Counter
}

// New builds a Cache bounded to capacity entries (spec's preparedCacheSize,
// default 50).
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = 50
	}
	c := &Cache{}
	l, err := lru.NewWithEvict(capacity, func(_ ShapeKey, _ Entry) {
		c.evictions.Add(1)
		if c.evictionCounter != nil {
			c.evictionCounter.Add(context.Background(), 1)
		}
	})
	if err != nil {
		return nil, err
	}
	c.lru = l

	meter := otel.GetMeterProvider().Meter("ecsdb/preparedcache")
	c.hitCounter, _ = meter.Int64Counter("preparedcache.hits")
	c.missCounter, _ = meter.Int64Counter("preparedcache.misses")
	c.evictionCounter, _ = meter.Int64Counter("preparedcache.evictions")
	return c, nil
}

// GetOrCreate returns the cached Entry for key, or calls build to produce
// and insert one on a miss. build is only invoked on a miss.
func (c *Cache) GetOrCreate(key ShapeKey, build func() Entry) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		if c.hitCounter != nil {
			c.hitCounter.Add(context.Background(), 1)
		}
		return e
	}

	c.misses.Add(1)
	if c.missCounter != nil {
		c.missCounter.Add(context.Background(), 1)
	}
	e := build()
	c.lru.Add(key, e)
	return e
}

// Stats reports cumulative hit/miss/eviction counts.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Len       int
}

// Stats returns the current cumulative counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Len:       c.lru.Len(),
	}
}

// Purge clears the cache. Mainly useful in tests.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
