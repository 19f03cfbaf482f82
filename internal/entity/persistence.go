package entity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecsdb/ecsdb/internal/ecserr"
	"github.com/ecsdb/ecsdb/internal/storage"
)

// fetchComponentDirect is the non-batched, non-cached single-row fallback
// Get reaches for when the caller supplied no request Context: a live
// (entity_id, type_id) lookup against the partitioned components table.
// Returns (nil, nil) when no live row exists, distinguishing "confirmed
// absent" from an error per spec §4.D's tombstone semantics.
func fetchComponentDirect(ctx context.Context, pool *pgxpool.Pool, entityID uuid.UUID, typeID int64) (*storage.ComponentRow, error) {
	if pool == nil {
		return nil, ecserr.Wrap("entity.fetchComponentDirect", ecserr.ErrFatal, errors.New("nil connection pool"))
	}
	const q = `
SELECT id, entity_id, type_id, name, data, created_at, updated_at, deleted_at
FROM components
WHERE entity_id = $1 AND type_id = $2 AND deleted_at IS NULL
LIMIT 1`
	var row storage.ComponentRow
	err := pool.QueryRow(ctx, q, entityID, typeID).Scan(
		&row.ID, &row.EntityID, &row.TypeID, &row.Name, &row.Data,
		&row.CreatedAt, &row.UpdatedAt, &row.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ecserr.Wrap("entity.fetchComponentDirect", ecserr.ErrTransient, err)
	}
	return &row, nil
}

// fetchEntityDirect loads the entities row for id, including soft-deleted
// ones — callers decide what a non-nil DeletedAt means for them.
func fetchEntityDirect(ctx context.Context, pool *pgxpool.Pool, id uuid.UUID) (*storage.EntityRow, error) {
	const q = `SELECT id, created_at, updated_at, deleted_at FROM entities WHERE id = $1`
	var row storage.EntityRow
	err := pool.QueryRow(ctx, q, id).Scan(&row.ID, &row.CreatedAt, &row.UpdatedAt, &row.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ecserr.Wrap("entity.fetchEntityDirect", ecserr.ErrTransient, err)
	}
	return &row, nil
}

// Load fetches a single entity directly by ID, skipping any request-scoped
// loader. Returns nil, nil when the entity doesn't exist or is
// soft-deleted, mirroring Get's "confirmed absent" semantics.
func Load(ctx context.Context, deps Deps, id uuid.UUID) (*Entity, error) {
	row, err := fetchEntityDirect(ctx, deps.Pool, id)
	if err != nil {
		return nil, err
	}
	if row == nil || row.DeletedAt != nil {
		return nil, nil
	}
	return fromRow(deps, *row), nil
}

func wrapTx(op string, err error) error {
	return ecserr.Wrap(op, ecserr.ErrTransient, err)
}
