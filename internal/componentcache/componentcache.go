// Package componentcache implements the write-through component cache of
// spec §4.D: a keyed cache of ComponentRecord values that sits in front of
// the components table on hot read paths.
package componentcache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is the cached unit: a full component row, independent of the
// in-memory typed payload the entity layer eventually builds from it.
type Record struct {
	ID        uuid.UUID
	EntityID  uuid.UUID
	TypeID    int64
	Data      []byte // raw JSON payload, verbatim
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key is component:{entityId}:{typeId}, the keying scheme spec §4.D names.
func Key(entityID uuid.UUID, typeID int64) string {
	return fmt.Sprintf("component:%s:%d", entityID, typeID)
}

// entry is the value cached per key: either a Record, or a tombstone that
// remembers a (entityId, typeId) pair is known-missing, closing the open question in
// spec §9 in favor of fewer repeat misses. A *Record field of nil paired
// with a true tombstone flag distinguishes "never looked up" (cache miss,
// go to the database) from "looked up and confirmed absent" (skip the
// database).
type entry struct {
	record    *Record
	tombstone bool
}

// Provider is the seam behind which a concrete cache implementation
// (in-process map or external KV) lives. Caching is optional: a Cache with
// a nil Provider degrades to always-miss without error (spec's CacheError
// kind is never fatal).
type Provider interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache is the write-through component cache. Callers read through
// GetMulti/Get, and the entity save pipeline writes through via PutMulti
// after a successful commit (spec §4.D, §5: "cache write-through happens
// after commit").
type Cache struct {
	provider Provider
	ttl      time.Duration
	negTTL   time.Duration
}

// New builds a Cache backed by provider. A nil provider disables caching:
// every Get reports a miss and every Set/Delete is a no-op, so callers
// never need to branch on whether caching is enabled.
func New(provider Provider, ttl, negativeTTL time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if negativeTTL <= 0 {
		negativeTTL = 10 * time.Second
	}
	return &Cache{provider: provider, ttl: ttl, negTTL: negativeTTL}
}

// Enabled reports whether a provider is configured.
func (c *Cache) Enabled() bool { return c.provider != nil }

// Get reads one component record through the cache. The second return
// value is false when the key is unknown to the cache (caller must fall
// through to storage); it is true with a nil Record when the key is a
// known tombstone (caller must treat this as confirmed-absent without
// touching storage).
func (c *Cache) Get(ctx context.Context, entityID uuid.UUID, typeID int64) (record *Record, found bool) {
	if c.provider == nil {
		return nil, false
	}
	raw, ok, err := c.provider.Get(ctx, Key(entityID, typeID))
	if err != nil || !ok {
		return nil, false
	}
	e, ok := raw.(entry)
	if !ok {
		return nil, false
	}
	if e.tombstone {
		return nil, true
	}
	return e.record, true
}

// GetMulti is the batch form Get backs the request loader with: a parallel
// array aligned to keys, with misses (including "not in cache at all") as
// explicit nils and a parallel bool array marking which positions were
// resolved by the cache at all (hit or tombstone) versus needing storage.
func (c *Cache) GetMulti(ctx context.Context, entityIDs []uuid.UUID, typeID int64) (records []*Record, resolved []bool) {
	records = make([]*Record, len(entityIDs))
	resolved = make([]bool, len(entityIDs))
	if c.provider == nil {
		return records, resolved
	}
	for i, id := range entityIDs {
		rec, found := c.Get(ctx, id, typeID)
		records[i] = rec
		resolved[i] = found
	}
	return records, resolved
}

// Put writes a fetched or freshly-saved record through to the cache.
func (c *Cache) Put(ctx context.Context, rec Record) error {
	if c.provider == nil {
		return nil
	}
	return c.provider.Set(ctx, Key(rec.EntityID, rec.TypeID), entry{record: &rec}, c.ttl)
}

// PutMulti write-throughs several records at once, e.g. after a batched
// save commits (spec §4.D "write-through on save").
func (c *Cache) PutMulti(ctx context.Context, recs []Record) error {
	var firstErr error
	for _, rec := range recs {
		if err := c.Put(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Tombstone records a confirmed-absent (entityId, typeId) pair with a
// short TTL, so repeated lookups for a component an entity never had don't
// keep round-tripping to storage.
func (c *Cache) Tombstone(ctx context.Context, entityID uuid.UUID, typeID int64) error {
	if c.provider == nil {
		return nil
	}
	return c.provider.Set(ctx, Key(entityID, typeID), entry{tombstone: true}, c.negTTL)
}

// Invalidate erases one cached component, called on soft/hard delete of
// that component (spec §4.D "invalidate on remove/delete").
func (c *Cache) Invalidate(ctx context.Context, entityID uuid.UUID, typeID int64) error {
	if c.provider == nil {
		return nil
	}
	return c.provider.Delete(ctx, Key(entityID, typeID))
}

// InvalidateAllEntityComponents erases every cached component for an
// entity, called when the entity itself is deleted. typeIDs is the set of
// type-IDs the entity is known to have had attached; the in-process
// provider has no way to enumerate keys by prefix, so the caller (entity
// layer, which already knows its attached components) supplies them.
func (c *Cache) InvalidateAllEntityComponents(ctx context.Context, entityID uuid.UUID, typeIDs []int64) error {
	var firstErr error
	for _, typeID := range typeIDs {
		if err := c.Invalidate(ctx, entityID, typeID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
