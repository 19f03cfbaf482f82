// Package entity implements the in-memory entity core of spec §4.F: an
// entity with attached components, dirty/persisted tracking, transactional
// save, soft/hard delete, clone, and reference construction.
package entity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecsdb/ecsdb/internal/componentcache"
	"github.com/ecsdb/ecsdb/internal/ecserr"
	"github.com/ecsdb/ecsdb/internal/hooks"
	"github.com/ecsdb/ecsdb/internal/registry"
	"github.com/ecsdb/ecsdb/internal/storage"
)

// DefaultSaveTimeout is the hard ceiling spec §4.F/§5 puts on a single
// save (spec's saveTimeoutMs default).
const DefaultSaveTimeout = 30 * time.Second

// ComponentLoader is the read-through seam Get uses when a Context is
// supplied: spec §4.F prefers fetching via the request loader in ctx over
// a direct database round trip. Declared here (not imported from the
// loader package) so entity never depends on loader — loader depends on
// entity instead, breaking the cycle the source language's lazy imports
// papered over (see Design Notes in SPEC_FULL.md).
type ComponentLoader interface {
	ComponentByEntityType(ctx context.Context, entityID uuid.UUID, typeID int64) (*storage.ComponentRow, error)
}

// Context carries request-scoped collaborators into read paths: batching
// loaders, a cache-bypass hint, and (via ctx.Context, passed alongside)
// cancellation. The zero Context means "direct DB, no batching, honor
// cache" per the Design Notes.
type Context struct {
	Loaders     ComponentLoader
	BypassCache bool
}

// Deps bundles the process-wide collaborators an Entity needs to persist
// itself: the connection pool, the component registry, the write-through
// cache, and the hook dispatcher. Constructed once at startup and shared
// by every Entity instance — never a package-level singleton.
type Deps struct {
	Pool        *pgxpool.Pool
	Registry    *registry.Registry
	Cache       *componentcache.Cache
	Hooks       *hooks.Dispatcher
	SaveTimeout time.Duration
}

func (d Deps) saveTimeout() time.Duration {
	if d.SaveTimeout > 0 {
		return d.SaveTimeout
	}
	return DefaultSaveTimeout
}

// componentSlot is one attached component instance, in memory.
type componentSlot struct {
	id        uuid.UUID
	typeID    int64
	name      string
	payload   any
	persisted bool
	dirty     bool

	// extra holds JSON object keys present on the stored payload that the
	// registered Go type doesn't declare, captured on decode and merged
	// back in on encode so a load/save round-trip doesn't silently drop
	// them (spec §6: unknown fields are preserved verbatim).
	extra map[string]json.RawMessage
}

// Entity is an opaque ID with its attached components. Not safe for
// concurrent use by multiple goroutines — spec §5: "one entity, one owner
// at a time."
type Entity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time

	persisted bool
	dirty     bool

	components     map[int64]*componentSlot
	pendingRemoval map[int64]bool

	deps Deps
}

// New creates a brand-new, unpersisted entity (persisted=false,
// dirty=true per spec §3 lifecycle).
func New(deps Deps) *Entity {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	now := time.Now().UTC()
	return &Entity{
		ID:             id,
		CreatedAt:      now,
		UpdatedAt:      now,
		persisted:      false,
		dirty:          true,
		components:     make(map[int64]*componentSlot),
		pendingRemoval: make(map[int64]bool),
		deps:           deps,
	}
}

// fromRow rehydrates an Entity shell from a persisted row, with no
// components attached yet. Used by bulk loaders and the query executor.
func fromRow(deps Deps, row storage.EntityRow) *Entity {
	return &Entity{
		ID:             row.ID,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		DeletedAt:      row.DeletedAt,
		persisted:      true,
		dirty:          false,
		components:     make(map[int64]*componentSlot),
		pendingRemoval: make(map[int64]bool),
		deps:           deps,
	}
}

// FromRow exposes fromRow to sibling packages (query, loader) that
// assemble entities from bulk-fetched rows without going through Save.
func FromRow(deps Deps, row storage.EntityRow) *Entity { return fromRow(deps, row) }

// IsPersisted reports whether this entity has ever been successfully
// saved.
func (e *Entity) IsPersisted() bool { return e.persisted }

// IsDirty reports whether this entity or any attached component has
// unsaved changes, or has a pending removal.
func (e *Entity) IsDirty() bool { return e.dirty }

// AttachedTypeIDs returns the type-IDs currently attached in memory
// (loaded or newly added), used by cache invalidation on delete.
func (e *Entity) AttachedTypeIDs() []int64 {
	out := make([]int64, 0, len(e.components))
	for id := range e.components {
		out = append(out, id)
	}
	return out
}

// Add attaches a new component instance of the named, registered type, or
// replaces the payload of an already-attached one as Set does. Marks the
// entity dirty. Add queues no event: the next successful Save emits
// ComponentAdded for every attached component that has never been
// persisted.
func (e *Entity) Add(componentName string, data any) error {
	typeID, ok := e.deps.Registry.TypeIDOf(componentName)
	if !ok {
		return ecserr.Validation("component %q is not registered", componentName)
	}
	if _, exists := e.components[typeID]; exists {
		return e.setLocked(typeID, componentName, data)
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	e.components[typeID] = &componentSlot{
		id:        id,
		typeID:    typeID,
		name:      componentName,
		payload:   data,
		persisted: false,
		dirty:     true,
	}
	delete(e.pendingRemoval, typeID)
	e.markDirty()
	return nil
}

// Set updates the payload of an already-attached component in place, or
// attaches it as new if absent (spec §4.F: "if already attached, update
// payload in place ... else add").
func (e *Entity) Set(componentName string, data any) error {
	typeID, ok := e.deps.Registry.TypeIDOf(componentName)
	if !ok {
		return ecserr.Validation("component %q is not registered", componentName)
	}
	if _, exists := e.components[typeID]; !exists {
		return e.Add(componentName, data)
	}
	return e.setLocked(typeID, componentName, data)
}

func (e *Entity) setLocked(typeID int64, componentName string, data any) error {
	slot := e.components[typeID]
	slot.payload = data
	slot.extra = nil
	slot.dirty = true
	slot.name = componentName
	e.markDirty()
	return nil
}

// Remove queues the named component for deletion on the next Save. Marks
// the entity dirty.
func (e *Entity) Remove(componentName string) error {
	typeID, ok := e.deps.Registry.TypeIDOf(componentName)
	if !ok {
		return ecserr.Validation("component %q is not registered", componentName)
	}
	if _, exists := e.components[typeID]; !exists {
		return nil
	}
	delete(e.components, typeID)
	e.pendingRemoval[typeID] = true
	e.markDirty()
	return nil
}

// Get returns the payload for the named component. If not already loaded
// in memory, it fetches via ctx.Loaders if supplied, else directly from
// storage, caching the result on the entity before returning it.
func (e *Entity) Get(ctx context.Context, componentName string, rc *Context) (any, error) {
	typeID, ok := e.deps.Registry.TypeIDOf(componentName)
	if !ok {
		return nil, ecserr.Validation("component %q is not registered", componentName)
	}
	if slot, ok := e.components[typeID]; ok {
		return slot.payload, nil
	}

	row, err := e.fetchComponentRow(ctx, typeID, rc)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ecserr.NotFound("entity %s has no live component %q", e.ID, componentName)
	}

	ctor, _ := e.deps.Registry.ConstructorOf(typeID)
	payload, extra, err := decodePayload(ctor, row.Data)
	if err != nil {
		return nil, err
	}

	e.components[typeID] = &componentSlot{
		id:        row.ID,
		typeID:    typeID,
		name:      componentName,
		payload:   payload,
		persisted: true,
		dirty:     false,
		extra:     extra,
	}
	return payload, nil
}

func (e *Entity) fetchComponentRow(ctx context.Context, typeID int64, rc *Context) (*storage.ComponentRow, error) {
	if rc != nil && rc.Loaders != nil {
		return rc.Loaders.ComponentByEntityType(ctx, e.ID, typeID)
	}
	bypass := rc != nil && rc.BypassCache
	if !bypass && e.deps.Cache != nil {
		if rec, found := e.deps.Cache.Get(ctx, e.ID, typeID); found {
			if rec == nil {
				return nil, nil
			}
			return &storage.ComponentRow{ID: rec.ID, EntityID: rec.EntityID, TypeID: rec.TypeID, Data: rec.Data, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}, nil
		}
	}
	row, err := fetchComponentDirect(ctx, e.deps.Pool, e.ID, typeID)
	if err != nil {
		return nil, err
	}
	if !bypass && e.deps.Cache != nil {
		if row == nil {
			_ = e.deps.Cache.Tombstone(ctx, e.ID, typeID)
		} else {
			_ = e.deps.Cache.Put(ctx, componentcache.Record{ID: row.ID, EntityID: row.EntityID, TypeID: row.TypeID, Data: row.Data, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt})
		}
	}
	return row, nil
}

func (e *Entity) markDirty() {
	e.dirty = true
}
