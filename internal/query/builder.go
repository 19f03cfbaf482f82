package query

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecsdb/ecsdb/internal/componentcache"
	"github.com/ecsdb/ecsdb/internal/entity"
	"github.com/ecsdb/ecsdb/internal/preparedcache"
	"github.com/ecsdb/ecsdb/internal/registry"
)

// Deps bundles the collaborators a Builder compiles and executes against:
// the connection pool and registry entity.Deps already carries, plus the
// prepared-statement-shape cache module C owns.
type Deps struct {
	Entity   entity.Deps
	Prepared *preparedcache.Cache
}

func (d Deps) pool() *pgxpool.Pool               { return d.Entity.Pool }
func (d Deps) registry() *registry.Registry      { return d.Entity.Registry }
func (d Deps) cache() *componentcache.Cache       { return d.Entity.Cache }

type sortSpec struct {
	component string
	field     string
	dir       SortDirection
}

// NoCacheOptions selects which caches Exec/Count bypass for one execution.
type NoCacheOptions struct {
	Prepared  bool
	Component bool
}

// Builder is the fluent query surface of spec §4.G. Not safe for
// concurrent use; build and execute one from a single goroutine.
type Builder struct {
	deps Deps

	requirements []requirement
	without      []string

	findID    *uuid.UUID
	excludeID *uuid.UUID

	sort   *sortSpec
	limit  *int
	offset *int

	populate    bool
	eagerLoad   []string
	noCache     NoCacheOptions
	debug       bool
	wantExplain bool

	lastPlan *PlanInfo
}

// New builds an empty Builder bound to deps.
func New(deps Deps) *Builder {
	return &Builder{deps: deps}
}

// With requires componentName, optionally filtered by predicates combined
// with conjunction.
func (b *Builder) With(componentName string, predicates ...Predicate) *Builder {
	b.requirements = append(b.requirements, singleRequirement(ComponentFilter{Component: componentName, Predicates: predicates}))
	return b
}

// WithOr requires that at least one alternative in the group hold.
func (b *Builder) WithOr(group OrGroup) *Builder {
	b.requirements = append(b.requirements, orRequirement(group))
	return b
}

// Without forbids componentName: the result excludes entities carrying a
// live component of that type.
func (b *Builder) Without(componentName string) *Builder {
	b.without = append(b.without, componentName)
	return b
}

// FindByID restricts the result to a single entity.
func (b *Builder) FindByID(id uuid.UUID) *Builder {
	b.findID = &id
	return b
}

// ExcludeEntityID removes a specific entity from the result.
func (b *Builder) ExcludeEntityID(id uuid.UUID) *Builder {
	b.excludeID = &id
	return b
}

// SortBy orders the result by a JSON field of one of the required
// components. Ties (including an absent field) fall back to entity_id
// ascending.
func (b *Builder) SortBy(componentName, field string, dir SortDirection) *Builder {
	b.sort = &sortSpec{component: componentName, field: field, dir: dir}
	return b
}

// Take sets a LIMIT.
func (b *Builder) Take(n int) *Builder {
	b.limit = &n
	return b
}

// Offset sets an OFFSET.
func (b *Builder) Offset(m int) *Builder {
	b.offset = &m
	return b
}

// Populate bulk-loads, after entity resolution, every component named in a
// With call into each returned entity.
func (b *Builder) Populate() *Builder {
	b.populate = true
	return b
}

// EagerLoadComponents bulk-loads the named components, which need not be
// among the With requirements.
func (b *Builder) EagerLoadComponents(componentNames ...string) *Builder {
	b.eagerLoad = append(b.eagerLoad, componentNames...)
	return b
}

// NoCache bypasses the prepared-statement and/or component caches for this
// execution only; the Builder's caches are otherwise used by default.
func (b *Builder) NoCache(opts NoCacheOptions) *Builder {
	b.noCache = opts
	return b
}

// DebugMode, when enabled, retains the last compiled plan for inspection
// via LastPlan after Exec/Count/ExplainAnalyze.
func (b *Builder) DebugMode(enabled bool) *Builder {
	b.debug = enabled
	return b
}

// ExplainAnalyzeMode toggles whether Exec/Count also capture a server plan,
// retrievable via LastPlan. For a one-shot EXPLAIN ANALYZE without running
// the query for rows, use the ExplainAnalyze terminal op.
func (b *Builder) ExplainAnalyzeMode(enabled bool) *Builder {
	b.wantExplain = enabled
	return b
}

// PlanInfo is the compiled query captured for debugMode/explainAnalyze
// introspection.
type PlanInfo struct {
	SQL        string
	ParamNames []string
	Mode       string
	Plan       string // populated only when ExplainAnalyzeMode(true) or the ExplainAnalyze terminal op ran
}

// LastPlan returns the plan captured by the most recent Exec/Count/
// ExplainAnalyze call, or nil if none ran yet or neither DebugMode nor
// ExplainAnalyzeMode is on.
func (b *Builder) LastPlan() *PlanInfo { return b.lastPlan }
