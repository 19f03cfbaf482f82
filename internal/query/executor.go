package query

import (
	"context"

	"github.com/google/uuid"

	"github.com/ecsdb/ecsdb/internal/componentcache"
	"github.com/ecsdb/ecsdb/internal/ecserr"
	"github.com/ecsdb/ecsdb/internal/entity"
	"github.com/ecsdb/ecsdb/internal/preparedcache"
	"github.com/ecsdb/ecsdb/internal/storage"
)

// compileAndPlan resolves the Builder, then returns the SQL and live bind
// values to run, going through the prepared-statement-shape cache unless
// the query uses a custom operator or the caller asked NoCache.
func (b *Builder) compileAndPlan(mode planMode) (sql string, params []any, err error) {
	cq, err := compile(b)
	if err != nil {
		return "", nil, err
	}

	if cq.hasCustomOperator {
		sql, params, err = renderLive(b, cq, mode)
		if err != nil {
			return "", nil, err
		}
		b.recordPlan(sql, nil, mode)
		return sql, params, nil
	}

	prepared := b.deps.Prepared
	eagerCount := len(b.eagerLoad)
	var entry preparedcache.Entry
	if prepared == nil || b.noCache.Prepared {
		s, names := render(cq, mode)
		entry = preparedcache.Entry{SQL: s, ParamNames: names}
	} else {
		key := shapeKey(cq, mode, b.populate, eagerCount)
		entry = prepared.GetOrCreate(key, func() preparedcache.Entry {
			s, names := render(cq, mode)
			return preparedcache.Entry{SQL: s, ParamNames: names}
		})
	}

	params, err = bindValues(b, cq, entry.ParamNames)
	if err != nil {
		return "", nil, err
	}
	b.recordPlan(entry.SQL, entry.ParamNames, mode)
	return entry.SQL, params, nil
}

func (b *Builder) recordPlan(sql string, paramNames []string, mode planMode) {
	if !b.debug && !b.wantExplain {
		return
	}
	b.lastPlan = &PlanInfo{SQL: sql, ParamNames: paramNames, Mode: string(mode)}
}

// Exec runs the compiled query and returns the matching entities, bulk
// loading their components first if Populate or EagerLoadComponents was
// requested.
func (b *Builder) Exec(ctx context.Context) ([]*entity.Entity, error) {
	sql, params, err := b.compileAndPlan(modeRows)
	if err != nil {
		return nil, err
	}

	pool := b.deps.pool()
	rows, err := pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, ecserr.Wrap("query.Exec", ecserr.ErrTransient, err)
	}
	var entityRows []storage.EntityRow
	for rows.Next() {
		var row storage.EntityRow
		if err := rows.Scan(&row.ID, &row.CreatedAt, &row.UpdatedAt, &row.DeletedAt); err != nil {
			rows.Close()
			return nil, ecserr.Wrap("query.Exec", ecserr.ErrTransient, err)
		}
		entityRows = append(entityRows, row)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, ecserr.Wrap("query.Exec", ecserr.ErrTransient, err)
	}

	entities := entity.LoadMultiple(b.deps.Entity, entityRows)

	if b.wantExplain {
		plan, err := b.explainPlan(ctx, sql, params)
		if err == nil && b.lastPlan != nil {
			b.lastPlan.Plan = plan
		}
	}

	componentNames := b.componentsToLoad()
	if len(componentNames) == 0 || len(entities) == 0 {
		return entities, nil
	}
	ids := make([]uuid.UUID, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	byName, err := b.fetchComponentsByName(ctx, ids, componentNames)
	if err != nil {
		return nil, err
	}
	for _, name := range componentNames {
		if err := entity.LoadComponents(ctx, b.deps.Entity, entities, name, byName[name]); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// componentTypeInfo pairs a requested component name with its registered
// type ID, resolved once per fetchComponentsByName call.
type componentTypeInfo struct {
	name   string
	typeID int64
}

// fetchComponentsByName resolves every named component type for ids in one
// bulk SQL statement keyed by entity_id IN (...) AND type_id IN (...)
// (spec's populate/eagerLoad requirement: one combined fetch, not one query
// per component type). When the component cache is enabled, the bulk fetch
// is narrowed to just the (entity, type) pairs the cache doesn't already
// hold, same write-through/tombstone behavior as a single-key lookup, still
// issued as one statement covering every still-missing type at once.
func (b *Builder) fetchComponentsByName(ctx context.Context, ids []uuid.UUID, names []string) (map[string][]storage.ComponentRow, error) {
	var types []componentTypeInfo
	nameByType := make(map[int64]string, len(names))
	for _, name := range names {
		typeID, ok := b.deps.registry().TypeIDOf(name)
		if !ok {
			continue
		}
		types = append(types, componentTypeInfo{name, typeID})
		nameByType[typeID] = name
	}
	if len(types) == 0 {
		return nil, nil
	}

	out := make(map[string][]storage.ComponentRow, len(types))

	cache := b.deps.cache()
	if cache == nil || b.noCache.Component {
		typeIDs := make([]int64, len(types))
		for i, t := range types {
			typeIDs[i] = t.typeID
		}
		rows, err := b.fetchComponentsForTypes(ctx, ids, typeIDs)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			out[nameByType[row.TypeID]] = append(out[nameByType[row.TypeID]], row)
		}
		return out, nil
	}

	type pairKey struct {
		id     uuid.UUID
		typeID int64
	}
	missing := make(map[pairKey]bool)
	var missingIDs []uuid.UUID
	missingIDSeen := make(map[uuid.UUID]bool)
	var missingTypeIDs []int64
	missingTypeSeen := make(map[int64]bool)

	for _, t := range types {
		for _, id := range ids {
			rec, found := cache.Get(ctx, id, t.typeID)
			if !found {
				missing[pairKey{id, t.typeID}] = true
				if !missingIDSeen[id] {
					missingIDSeen[id] = true
					missingIDs = append(missingIDs, id)
				}
				if !missingTypeSeen[t.typeID] {
					missingTypeSeen[t.typeID] = true
					missingTypeIDs = append(missingTypeIDs, t.typeID)
				}
				continue
			}
			if rec != nil {
				out[t.name] = append(out[t.name], storage.ComponentRow{
					ID: rec.ID, EntityID: rec.EntityID, TypeID: rec.TypeID,
					Data: rec.Data, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt,
				})
			}
		}
	}
	if len(missingIDs) == 0 {
		return out, nil
	}

	fetched, err := b.fetchComponentsForTypes(ctx, missingIDs, missingTypeIDs)
	if err != nil {
		return nil, err
	}
	for _, row := range fetched {
		out[nameByType[row.TypeID]] = append(out[nameByType[row.TypeID]], row)
		delete(missing, pairKey{row.EntityID, row.TypeID})
		_ = cache.Put(ctx, componentcache.Record{
			ID: row.ID, EntityID: row.EntityID, TypeID: row.TypeID,
			Data: row.Data, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
		})
	}
	for k := range missing {
		_ = cache.Tombstone(ctx, k.id, k.typeID)
	}
	return out, nil
}

// componentsToLoad merges With's component names (when Populate is set)
// with explicit EagerLoadComponents, de-duplicated.
func (b *Builder) componentsToLoad() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	if b.populate {
		for _, req := range b.requirements {
			switch r := req.(type) {
			case singleRequirement:
				add(r.Component)
			case orRequirement:
				for _, cf := range r {
					add(cf.Component)
				}
			}
		}
	}
	for _, name := range b.eagerLoad {
		add(name)
	}
	return out
}

func (b *Builder) fetchComponentsForTypes(ctx context.Context, ids []uuid.UUID, typeIDs []int64) ([]storage.ComponentRow, error) {
	const q = `
SELECT id, entity_id, type_id, name, data, created_at, updated_at, deleted_at
FROM components
WHERE type_id = ANY($1) AND entity_id = ANY($2) AND deleted_at IS NULL`
	rows, err := b.deps.pool().Query(ctx, q, typeIDs, ids)
	if err != nil {
		return nil, ecserr.Wrap("query.populate", ecserr.ErrTransient, err)
	}
	defer rows.Close()

	var out []storage.ComponentRow
	for rows.Next() {
		var row storage.ComponentRow
		if err := rows.Scan(&row.ID, &row.EntityID, &row.TypeID, &row.Name, &row.Data, &row.CreatedAt, &row.UpdatedAt, &row.DeletedAt); err != nil {
			return nil, ecserr.Wrap("query.populate", ecserr.ErrTransient, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Count runs the compiled query in count mode, stripping projection,
// ordering, and pagination per spec §4.G.
func (b *Builder) Count(ctx context.Context) (int64, error) {
	sql, params, err := b.compileAndPlan(modeCount)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := b.deps.pool().QueryRow(ctx, sql, params...).Scan(&n); err != nil {
		return 0, ecserr.Wrap("query.Count", ecserr.ErrTransient, err)
	}
	return n, nil
}

// ExplainAnalyze runs EXPLAIN ANALYZE against the compiled query and
// returns the server's plan text, without going through entity resolution.
func (b *Builder) ExplainAnalyze(ctx context.Context) (string, error) {
	sql, params, err := b.compileAndPlan(modeRows)
	if err != nil {
		return "", err
	}
	return b.explainPlan(ctx, sql, params)
}

func (b *Builder) explainPlan(ctx context.Context, sql string, params []any) (string, error) {
	rows, err := b.deps.pool().Query(ctx, "EXPLAIN ANALYZE "+sql, params...)
	if err != nil {
		return "", ecserr.Wrap("query.ExplainAnalyze", ecserr.ErrTransient, err)
	}
	defer rows.Close()
	var out string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return "", ecserr.Wrap("query.ExplainAnalyze", ecserr.ErrTransient, err)
		}
		out += line + "\n"
	}
	return out, rows.Err()
}
