package entity

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ecsdb/ecsdb/internal/componentcache"
	"github.com/ecsdb/ecsdb/internal/ecserr"
	"github.com/ecsdb/ecsdb/internal/hooks"
	"github.com/ecsdb/ecsdb/internal/schema"
)

// Save persists every pending change on e: new or updated components,
// pending removals, and the entity row itself, inside a single
// transaction, then write-throughs the cache and dispatches lifecycle
// hooks. A no-op, successful call when the entity has nothing dirty.
//
// The algorithm (spec §4.F):
//  1. No-op if !e.IsDirty().
//  2. Await registry readiness for every component type touched by this
//     save (new attaches and updates only — removals don't need a ready
//     partition, they write to wherever the row already lives).
//  3. Begin a transaction.
//  4. Upsert the entities row: insert on first save, else bump updated_at.
//  5. For each dirty attached component: insert if this is its first save,
//     update in place otherwise, maintaining the single-live-component-
//     per-type invariant — never more than one non-deleted row per
//     (entity_id, type_id).
//  6. Keep entity_components in sync with every insert/update.
//  7. For each pending removal: soft-delete the components row and its
//     entity_components row (deleted_at = now()).
//  8. Commit. Roll back and return on any failure before this point — no
//     partial writes are ever visible.
//  9. After commit: write fresh/updated rows through the component cache,
//     invalidate removed ones, and dispatch EntityCreated/EntityUpdated
//     plus one ComponentAdded/ComponentUpdated/ComponentRemoved per
//     touched component. Hook failures never unwind the already-committed
//     write; they're reported via the returned BatchHookResult only if the
//     caller asks for it through SaveWithHookResults.
func (e *Entity) Save(ctx context.Context) error {
	_, err := e.save(ctx)
	return err
}

// SaveWithHookResults behaves like Save but also returns the lifecycle
// hook dispatch outcomes for every event this save triggered, so callers
// that care about hook failures (spec §7: ErrHook is reported, not fatal)
// can inspect them without Save itself failing.
func (e *Entity) SaveWithHookResults(ctx context.Context) ([]hooks.BatchHookResult, error) {
	return e.save(ctx)
}

func (e *Entity) save(ctx context.Context) ([]hooks.BatchHookResult, error) {
	if !e.dirty {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.deps.saveTimeout())
	defer cancel()

	if err := e.awaitReadiness(ctx); err != nil {
		return nil, err
	}

	wasPersisted := e.persisted
	var dirtyComponents []*componentSlot
	for _, slot := range e.components {
		if slot.dirty {
			dirtyComponents = append(dirtyComponents, slot)
		}
	}
	var removedTypeIDs []int64
	for typeID := range e.pendingRemoval {
		removedTypeIDs = append(removedTypeIDs, typeID)
	}

	wasNew := make(map[int64]bool, len(dirtyComponents))
	for _, slot := range dirtyComponents {
		wasNew[slot.typeID] = !slot.persisted
	}

	now := time.Now().UTC()
	err := schema.WithTx(ctx, e.deps.Pool, func(tx pgx.Tx) error {
		if err := e.upsertEntityRow(ctx, tx, now); err != nil {
			return err
		}
		for _, slot := range dirtyComponents {
			if err := e.upsertComponentRow(ctx, tx, slot, now); err != nil {
				return err
			}
		}
		for _, typeID := range removedTypeIDs {
			if err := e.softDeleteComponentRow(ctx, tx, typeID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.persisted = true
	e.dirty = false
	e.UpdatedAt = now
	if !wasPersisted {
		e.CreatedAt = now
	}
	for _, slot := range dirtyComponents {
		slot.persisted = true
		slot.dirty = false
	}
	clear(e.pendingRemoval)

	return e.afterCommit(ctx, wasPersisted, wasNew, dirtyComponents, removedTypeIDs, now), nil
}

func (e *Entity) awaitReadiness(ctx context.Context) error {
	for _, slot := range e.components {
		if !slot.dirty {
			continue
		}
		if err := e.deps.Registry.ReadyPromise(ctx, slot.name); err != nil {
			return ecserr.Wrap("entity.Save", ecserr.ErrFatal, err)
		}
	}
	return nil
}

func (e *Entity) upsertEntityRow(ctx context.Context, tx pgx.Tx, now time.Time) error {
	const q = `
INSERT INTO entities (id, created_at, updated_at)
VALUES ($1, $2, $2)
ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at`
	if _, err := tx.Exec(ctx, q, e.ID, now); err != nil {
		return wrapTx("entity.upsertEntityRow", err)
	}
	return nil
}

func (e *Entity) upsertComponentRow(ctx context.Context, tx pgx.Tx, slot *componentSlot, now time.Time) error {
	data, err := encodePayload(slot.payload, slot.extra)
	if err != nil {
		return err
	}
	if slot.persisted {
		const q = `
UPDATE components SET data = $1, name = $2, updated_at = $3
WHERE type_id = $4 AND id = $5 AND deleted_at IS NULL`
		tag, err := tx.Exec(ctx, q, data, slot.name, now, slot.typeID, slot.id)
		if err != nil {
			return wrapTx("entity.upsertComponentRow", err)
		}
		if tag.RowsAffected() == 0 {
			// The live row vanished under us (e.g. a concurrent hard delete):
			// fall through to inserting a fresh one rather than losing the write.
			return e.insertComponentRow(ctx, tx, slot, data, now)
		}
		return nil
	}
	return e.insertComponentRow(ctx, tx, slot, data, now)
}

func (e *Entity) insertComponentRow(ctx context.Context, tx pgx.Tx, slot *componentSlot, data []byte, now time.Time) error {
	// The single-live-component-per-type invariant is enforced here: any
	// previously live row for this (entity, type) is soft-deleted before
	// the new one is inserted, so a second Add/Set on an already-attached
	// type never leaves two live rows behind even if Save races with
	// itself across processes.
	const deleteLive = `
UPDATE components SET deleted_at = $1
WHERE type_id = $2 AND entity_id = $3 AND deleted_at IS NULL`
	if _, err := tx.Exec(ctx, deleteLive, now, slot.typeID, e.ID); err != nil {
		return wrapTx("entity.insertComponentRow", err)
	}
	const deleteLiveJoin = `
UPDATE entity_components SET deleted_at = $1, updated_at = $1
WHERE entity_id = $2 AND type_id = $3 AND deleted_at IS NULL`
	if _, err := tx.Exec(ctx, deleteLiveJoin, now, e.ID, slot.typeID); err != nil {
		return wrapTx("entity.insertComponentRow", err)
	}

	const insert = `
INSERT INTO components (id, entity_id, type_id, name, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)`
	if _, err := tx.Exec(ctx, insert, slot.id, e.ID, slot.typeID, slot.name, data, now); err != nil {
		return wrapTx("entity.insertComponentRow", err)
	}

	const joinUpsert = `
INSERT INTO entity_components (entity_id, type_id, component_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (entity_id, type_id, component_id) DO UPDATE SET updated_at = EXCLUDED.updated_at, deleted_at = NULL`
	if _, err := tx.Exec(ctx, joinUpsert, e.ID, slot.typeID, slot.id, now); err != nil {
		return wrapTx("entity.insertComponentRow", err)
	}
	return nil
}

func (e *Entity) softDeleteComponentRow(ctx context.Context, tx pgx.Tx, typeID int64, now time.Time) error {
	const q = `
UPDATE components SET deleted_at = $1
WHERE type_id = $2 AND entity_id = $3 AND deleted_at IS NULL`
	if _, err := tx.Exec(ctx, q, now, typeID, e.ID); err != nil {
		return wrapTx("entity.softDeleteComponentRow", err)
	}
	const joinQ = `
UPDATE entity_components SET deleted_at = $1, updated_at = $1
WHERE entity_id = $2 AND type_id = $3`
	if _, err := tx.Exec(ctx, joinQ, now, e.ID, typeID); err != nil {
		return wrapTx("entity.softDeleteComponentRow", err)
	}
	return nil
}

// afterCommit runs the post-commit side effects: cache write-through and
// invalidation, then lifecycle hook dispatch. None of these can undo the
// already-committed write, so failures here are collected, not propagated.
func (e *Entity) afterCommit(ctx context.Context, wasPersisted bool, wasNew map[int64]bool, dirtyComponents []*componentSlot, removedTypeIDs []int64, now time.Time) []hooks.BatchHookResult {
	var batches []hooks.BatchHookResult

	if e.deps.Cache != nil {
		var puts []componentcache.Record
		for _, slot := range dirtyComponents {
			data, err := encodePayload(slot.payload, slot.extra)
			if err != nil {
				continue
			}
			puts = append(puts, componentcache.Record{
				ID: slot.id, EntityID: e.ID, TypeID: slot.typeID, Data: data,
				CreatedAt: now, UpdatedAt: now,
			})
		}
		if len(puts) > 0 {
			_ = e.deps.Cache.PutMulti(ctx, puts)
		}
		for _, typeID := range removedTypeIDs {
			_ = e.deps.Cache.Invalidate(ctx, e.ID, typeID)
		}
	}

	if e.deps.Hooks == nil {
		return nil
	}

	entityKind := hooks.EntityUpdated
	if !wasPersisted {
		entityKind = hooks.EntityCreated
	}
	batches = append(batches, e.deps.Hooks.Dispatch(ctx, hooks.Event{
		Kind: entityKind, EntityID: e.ID, OccurredAt: now,
	}))

	for _, slot := range dirtyComponents {
		kind := hooks.ComponentUpdated
		if wasNew[slot.typeID] {
			kind = hooks.ComponentAdded
		}
		batches = append(batches, e.deps.Hooks.Dispatch(ctx, hooks.Event{
			Kind: kind, EntityID: e.ID, ComponentID: slot.id,
			ComponentName: slot.name, Payload: slot.payload, OccurredAt: now,
		}))
	}
	for _, typeID := range removedTypeIDs {
		d, _ := e.deps.Registry.DescribeByID(typeID)
		name := ""
		if d != nil {
			name = d.Name
		}
		batches = append(batches, e.deps.Hooks.Dispatch(ctx, hooks.Event{
			Kind: hooks.ComponentRemoved, EntityID: e.ID, ComponentName: name, OccurredAt: now,
		}))
	}

	return batches
}
