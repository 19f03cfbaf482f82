package loader

import (
	"fmt"
	"log/slog"

	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultForeignKeyCandidates are the field-name guesses
// EntitiesReferencingAny tries, in order, when the caller doesn't know the
// exact field path a component uses to reference another entity — the
// source's LIST relation-loader fallback (spec.md §9 Open Question),
// resolved in favor of keeping the guess but logging it (SPEC_FULL §6).
var DefaultForeignKeyCandidates = []string{"user_id", "parent_id"}

// relationKey batches reverse-relation lookups by (component type, JSON
// field path, target entity) — "which entities have a Profile.managerId
// pointing at this entity", for instance.
type relationKey struct {
	typeID    int64
	fieldPath string
	targetID  uuid.UUID
}

// RelationLoader resolves the LIST-partition-targeted relation fields
// named in spec §4.E: a component field that stores another entity's ID,
// queried in reverse (given a target, find every entity whose component
// field points at it).
type RelationLoader struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	batch  *Batcher[relationKey, []uuid.UUID]
}

// NewRelationLoader builds a request-scoped relation loader. logger may be
// nil; EntitiesReferencingAny only uses it to warn when it falls back to a
// guessed field name.
func NewRelationLoader(pool *pgxpool.Pool, logger *slog.Logger) *RelationLoader {
	l := &RelationLoader{pool: pool, logger: logger}
	l.batch = NewBatcher[relationKey, []uuid.UUID](l.fetchBatch, DefaultBatchWindow, DefaultMaxBatchSize)
	return l
}

// EntitiesReferencing returns the IDs of every live entity whose component
// of typeID has fieldPath equal to targetID's string form.
func (l *RelationLoader) EntitiesReferencing(ctx context.Context, typeID int64, fieldPath string, targetID uuid.UUID) ([]uuid.UUID, error) {
	return l.batch.Load(ctx, relationKey{typeID: typeID, fieldPath: fieldPath, targetID: targetID})
}

// EntitiesReferencingAny resolves a reverse relation without an explicit
// field path, trying DefaultForeignKeyCandidates in order and returning
// the first one that yields any match. Every guess that matches logs a
// warning naming the field it guessed (a call where no candidate matches
// logs nothing), since silently guessing a foreign-key name
// is the behavior spec.md §9 flagged as ambiguous; keeping it observable
// was the resolved decision rather than removing it outright.
func (l *RelationLoader) EntitiesReferencingAny(ctx context.Context, typeID int64, targetID uuid.UUID) (fieldPath string, ids []uuid.UUID, err error) {
	for _, candidate := range DefaultForeignKeyCandidates {
		found, err := l.EntitiesReferencing(ctx, typeID, candidate, targetID)
		if err != nil {
			return "", nil, err
		}
		if len(found) > 0 {
			if l.logger != nil {
				l.logger.Warn("relation loader guessed foreign-key field name",
					"typeID", typeID, "field", candidate, "targetID", targetID)
			}
			return candidate, found, nil
		}
	}
	return "", nil, nil
}

// groupKey batches relationKeys that can share one SQL statement: same
// component type and JSON field path, different target entities.
type groupKey struct {
	typeID    int64
	fieldPath string
}

func (l *RelationLoader) fetchBatch(ctx context.Context, keys []relationKey) ([][]uuid.UUID, error) {
	groups := make(map[groupKey][]int, len(keys))
	for i, k := range keys {
		gk := groupKey{typeID: k.typeID, fieldPath: k.fieldPath}
		groups[gk] = append(groups[gk], i)
	}

	out := make([][]uuid.UUID, len(keys))
	for gk, idxs := range groups {
		targetIdx := make(map[string][]int, len(idxs))
		targets := make([]string, 0, len(idxs))
		for _, i := range idxs {
			t := keys[i].targetID.String()
			if _, seen := targetIdx[t]; !seen {
				targets = append(targets, t)
			}
			targetIdx[t] = append(targetIdx[t], i)
		}

		found, err := l.queryGroup(ctx, gk.typeID, gk.fieldPath, targets)
		if err != nil {
			return nil, err
		}
		for target, ids := range found {
			for _, i := range targetIdx[target] {
				out[i] = ids
			}
		}
	}
	return out, nil
}

// queryGroup issues one SQL statement for every relationKey sharing
// (typeID, fieldPath), grouping keys by foreign-key field the way spec's
// loader batching requires, rather than one query per target entity.
func (l *RelationLoader) queryGroup(ctx context.Context, typeID int64, fieldPath string, targets []string) (map[string][]uuid.UUID, error) {
	q := fmt.Sprintf(`
SELECT entity_id, data->>'%s' AS target
FROM components
WHERE type_id = $1 AND deleted_at IS NULL AND data->>'%s' = ANY($2)`, fieldPath, fieldPath)
	rows, err := l.pool.Query(ctx, q, typeID, targets)
	if err != nil {
		return nil, fmt.Errorf("loader.RelationLoader: query type %d field %s: %w", typeID, fieldPath, err)
	}
	defer rows.Close()

	out := make(map[string][]uuid.UUID)
	for rows.Next() {
		var id uuid.UUID
		var target string
		if err := rows.Scan(&id, &target); err != nil {
			return nil, fmt.Errorf("loader.RelationLoader: scan: %w", err)
		}
		out[target] = append(out[target], id)
	}
	return out, rows.Err()
}
