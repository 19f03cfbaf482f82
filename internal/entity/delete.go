package entity

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ecsdb/ecsdb/internal/hooks"
	"github.com/ecsdb/ecsdb/internal/schema"
)

// Delete soft-deletes the entity: it stamps deleted_at on the entities row
// and cascades to every live component row (spec's resolved Open Question:
// soft-delete does cascade, closing the window where a deleted entity
// would otherwise still surface live components through a direct fetch).
// A no-op if the entity was never persisted.
func (e *Entity) Delete(ctx context.Context) error {
	_, err := e.delete(ctx, false)
	return err
}

// HardDelete permanently removes the entity and all of its component rows,
// bypassing the soft-delete tombstone entirely. Irreversible.
func (e *Entity) HardDelete(ctx context.Context) error {
	_, err := e.delete(ctx, true)
	return err
}

func (e *Entity) delete(ctx context.Context, hard bool) ([]hooks.BatchHookResult, error) {
	if !e.persisted {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.deps.saveTimeout())
	defer cancel()

	typeIDs := e.AttachedTypeIDs()
	now := time.Now().UTC()

	err := schema.WithTx(ctx, e.deps.Pool, func(tx pgx.Tx) error {
		if hard {
			if _, err := tx.Exec(ctx, `DELETE FROM entity_components WHERE entity_id = $1`, e.ID); err != nil {
				return wrapTx("entity.delete", err)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM components WHERE entity_id = $1`, e.ID); err != nil {
				return wrapTx("entity.delete", err)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM entities WHERE id = $1`, e.ID); err != nil {
				return wrapTx("entity.delete", err)
			}
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE entities SET deleted_at = $1 WHERE id = $2`, now, e.ID); err != nil {
			return wrapTx("entity.delete", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE components SET deleted_at = $1 WHERE entity_id = $2 AND deleted_at IS NULL`, now, e.ID); err != nil {
			return wrapTx("entity.delete", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE entity_components SET deleted_at = $1, updated_at = $1 WHERE entity_id = $2`, now, e.ID); err != nil {
			return wrapTx("entity.delete", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.DeletedAt = &now
	e.dirty = false
	for _, typeID := range typeIDs {
		delete(e.components, typeID)
	}

	var batches []hooks.BatchHookResult
	if e.deps.Cache != nil {
		_ = e.deps.Cache.InvalidateAllEntityComponents(ctx, e.ID, typeIDs)
	}
	if e.deps.Hooks != nil {
		for _, typeID := range typeIDs {
			d, _ := e.deps.Registry.DescribeByID(typeID)
			name := ""
			if d != nil {
				name = d.Name
			}
			batches = append(batches, e.deps.Hooks.Dispatch(ctx, hooks.Event{
				Kind: hooks.ComponentRemoved, EntityID: e.ID, ComponentName: name, OccurredAt: now,
			}))
		}
		batches = append(batches, e.deps.Hooks.Dispatch(ctx, hooks.Event{
			Kind: hooks.EntityDeleted, EntityID: e.ID, OccurredAt: now,
		}))
	}

	return batches, nil
}

// IsDeleted reports whether the entity has been soft-deleted.
func (e *Entity) IsDeleted() bool { return e.DeletedAt != nil }
