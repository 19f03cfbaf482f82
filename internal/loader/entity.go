package loader

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecsdb/ecsdb/internal/storage"
)

// EntityLoader batches Entity-by-ID fetches the same way ComponentLoader
// batches component fetches, for callers resolving a set of entity
// references (e.g. a relation field's targets) without issuing one query
// per reference.
type EntityLoader struct {
	pool  *pgxpool.Pool
	batch *Batcher[uuid.UUID, *storage.EntityRow]
}

// NewEntityLoader builds a request-scoped entity loader.
func NewEntityLoader(pool *pgxpool.Pool) *EntityLoader {
	l := &EntityLoader{pool: pool}
	l.batch = NewBatcher[uuid.UUID, *storage.EntityRow](l.fetchBatch, DefaultBatchWindow, DefaultMaxBatchSize)
	return l
}

// ByID resolves one entity row, or nil if it doesn't exist or is
// soft-deleted.
func (l *EntityLoader) ByID(ctx context.Context, id uuid.UUID) (*storage.EntityRow, error) {
	return l.batch.Load(ctx, id)
}

func (l *EntityLoader) fetchBatch(ctx context.Context, ids []uuid.UUID) ([]*storage.EntityRow, error) {
	const q = `SELECT id, created_at, updated_at, deleted_at FROM entities WHERE id = ANY($1) AND deleted_at IS NULL`
	rows, err := l.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("loader.EntityLoader: bulk fetch: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*storage.EntityRow, len(ids))
	for rows.Next() {
		var row storage.EntityRow
		if err := rows.Scan(&row.ID, &row.CreatedAt, &row.UpdatedAt, &row.DeletedAt); err != nil {
			return nil, fmt.Errorf("loader.EntityLoader: scan: %w", err)
		}
		byID[row.ID] = &row
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loader.EntityLoader: rows: %w", err)
	}

	out := make([]*storage.EntityRow, len(ids))
	for i, id := range ids {
		out[i] = byID[id]
	}
	return out, nil
}
