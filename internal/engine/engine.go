package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecsdb/ecsdb/internal/componentcache"
	"github.com/ecsdb/ecsdb/internal/ecserr"
	"github.com/ecsdb/ecsdb/internal/entity"
	"github.com/ecsdb/ecsdb/internal/hooks"
	"github.com/ecsdb/ecsdb/internal/loader"
	"github.com/ecsdb/ecsdb/internal/preparedcache"
	"github.com/ecsdb/ecsdb/internal/query"
	"github.com/ecsdb/ecsdb/internal/registry"
	"github.com/ecsdb/ecsdb/internal/schema"
	"github.com/ecsdb/ecsdb/internal/storage"
)

// Engine bundles every process-wide collaborator the storage engine needs
// and is constructed exactly once at startup (spec's Design Notes: "Global
// process state... specify them as explicit dependencies constructed once
// at startup and injected into query/entity/loader constructors"). It is
// the adapter surface of spec §6: entity create/load/save/delete, query
// build+execute, a per-request loader factory, and hook registration.
type Engine struct {
	cfg         Config
	pool        *pgxpool.Pool
	log         *slog.Logger
	reg         *registry.Registry
	store       *schema.Store
	boot        *schema.Bootstrapper
	cache       *componentcache.Cache
	prep        *preparedcache.Cache
	hooksd      *hooks.Dispatcher
	telShutdown telemetryShutdown

	entityDeps entity.Deps
	queryDeps  query.Deps
}

// Open constructs an Engine: it connects the pool, runs the schema
// bootstrap (base DDL, and under HASH partitioning the fixed N
// partitions), loads any previously-registered component types back into
// the registry, and wires the component cache, prepared-statement cache,
// and hook dispatcher. Callers register their own component types with
// RegisterComponent after Open returns, same as the registry's own
// ReadyPromise model.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	log := newLogger(cfg.LogLevel)

	telShutdown, err := setupTelemetry(cfg.Telemetry)
	if err != nil {
		return nil, ecserr.Wrap("engine.Open", ecserr.ErrFatal, err)
	}

	poolCfg, err := pgxpool.ParseConfig(storage.PostgresDSN(cfg.Conn))
	if err != nil {
		return nil, ecserr.Wrap("engine.Open", ecserr.ErrFatal, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, ecserr.Wrap("engine.Open", ecserr.ErrFatal, err)
	}

	if err := withRetry(ctx, func() error {
		if err := pool.Ping(ctx); err != nil {
			return ecserr.Wrap("engine.Open.ping", ecserr.ErrTransient, err)
		}
		return nil
	}); err != nil {
		pool.Close()
		return nil, err
	}

	boot := schema.NewBootstrapper(pool, cfg.PartitionStrategy, cfg.HashPartitionCount)
	if err := boot.Bootstrap(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	store := schema.NewStore(pool, cfg.PartitionStrategy)
	reg := registry.New(registry.Options{
		Strategy:           cfg.PartitionStrategy,
		HashPartitionCount: cfg.HashPartitionCount,
		Store:              store,
	})
	if err := reg.LoadExisting(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	var cache *componentcache.Cache
	if cfg.Cache.Enabled && cfg.Cache.Component.Enabled {
		var provider componentcache.Provider
		switch cfg.Cache.Provider {
		case "external":
			log.Warn("cache.provider=external has no wired client in this build; falling back to memory")
			provider = componentcache.NewMemoryProvider(time.Minute)
		default:
			provider = componentcache.NewMemoryProvider(time.Minute)
		}
		cache = componentcache.New(provider, cfg.Cache.Component.TTL, 0)
	}

	prep, err := preparedcache.New(cfg.PreparedCacheSize)
	if err != nil {
		pool.Close()
		return nil, ecserr.Wrap("engine.Open", ecserr.ErrFatal, err)
	}

	hookd := hooks.New(cfg.MaxConcurrentHooks)

	entityDeps := entity.Deps{
		Pool: pool, Registry: reg, Cache: cache, Hooks: hookd,
		SaveTimeout: cfg.SaveTimeout(),
	}

	eng := &Engine{
		cfg: cfg, pool: pool, log: log, reg: reg, store: store, boot: boot,
		cache: cache, prep: prep, hooksd: hookd, telShutdown: telShutdown,
		entityDeps: entityDeps,
		queryDeps:  query.Deps{Entity: entityDeps, Prepared: prep},
	}
	return eng, nil
}

// Close releases the connection pool and flushes any telemetry providers
// Open installed. Call once at process shutdown.
func (e *Engine) Close() {
	if e.telShutdown != nil {
		_ = e.telShutdown(context.Background())
	}
	e.pool.Close()
}

// Bootstrap re-runs schema bootstrap (idempotent: every DDL statement is
// CREATE ... IF NOT EXISTS), for cmd/ecsctl's "schema bootstrap" command to
// call against a database that wasn't bootstrapped by an Open call, or to
// confirm an existing one is up to date.
func (e *Engine) Bootstrap(ctx context.Context) error {
	return e.boot.Bootstrap(ctx)
}

// RegisterComponent registers a component type the same way
// registry.Registry.Register does, additionally creating any indexed-field
// expression indexes the schema declares. Blocks until the type's
// partition (LIST) or persistence row (HASH) is ready.
func (e *Engine) RegisterComponent(ctx context.Context, name string, ctor registry.Constructor, propSchema registry.PropertySchema) (int64, error) {
	typeID, err := e.reg.Register(ctx, name, ctor, propSchema)
	if err != nil {
		return 0, err
	}
	if err := e.reg.ReadyPromise(ctx, name); err != nil {
		return 0, err
	}
	d, ok := e.reg.Describe(name)
	if ok && len(propSchema.IndexedFields()) > 0 {
		if err := e.store.EnsureIndexedFields(ctx, d); err != nil {
			return 0, err
		}
	}
	return typeID, nil
}

// NewEntity returns a brand-new, unpersisted Entity bound to this
// Engine's dependencies.
func (e *Engine) NewEntity() *entity.Entity {
	return entity.New(e.entityDeps)
}

// LoadEntity fetches the entity row for id, returning nil (not an error)
// if it doesn't exist or is soft-deleted — spec §7's "Read paths: NotFound
// returns null" propagation policy, applied at the façade boundary so
// every external collaborator gets the same behavior regardless of which
// query path they came through.
func (e *Engine) LoadEntity(ctx context.Context, id uuid.UUID) (*entity.Entity, error) {
	if id == uuid.Nil {
		e.log.Warn("LoadEntity called with empty id")
		return nil, nil
	}
	const q = `SELECT id, created_at, updated_at, deleted_at FROM entities WHERE id = $1 AND deleted_at IS NULL`
	var row storage.EntityRow
	err := e.pool.QueryRow(ctx, q, id).Scan(&row.ID, &row.CreatedAt, &row.UpdatedAt, &row.DeletedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, ecserr.Wrap("engine.LoadEntity", ecserr.ErrTransient, err)
	}
	return entity.FromRow(e.entityDeps, row), nil
}

// SaveEntity persists ent, retrying transient failures (connection loss,
// serialization conflicts) with backoff before giving up — the façade-
// level policy spec.md asks for for "connection loss, serialization
// failure; safe to retry with backoff" (§7 Transient), applied once here
// rather than at every call site the way the teacher wraps its own
// execContext/queryContext.
func (e *Engine) SaveEntity(ctx context.Context, ent *entity.Entity) error {
	return withRetry(ctx, func() error { return ent.Save(ctx) })
}

// DeleteEntity soft-deletes ent unless hard is true, in which case it's
// permanently removed along with every component row.
func (e *Engine) DeleteEntity(ctx context.Context, ent *entity.Entity, hard bool) error {
	if hard {
		return ent.HardDelete(ctx)
	}
	return ent.Delete(ctx)
}

// Query starts a new fluent query build against this Engine's
// dependencies (spec §4.G).
func (e *Engine) Query() *query.Builder {
	return query.New(e.queryDeps)
}

// Hooks exposes the process-wide lifecycle hook dispatcher for
// registration (spec §4.H), the last piece of the adapter surface §6
// names.
func (e *Engine) Hooks() *hooks.Dispatcher {
	return e.hooksd
}

// RequestLoaders is the "per-request loader factory taking a DB handle and
// optional cache manager" spec §6 names: construct one per inbound
// request (or unit of work) and discard it afterward, same lifetime rule
// as the individual loaders it bundles.
type RequestLoaders struct {
	Components *loader.ComponentLoader
	Entities   *loader.EntityLoader
	Relations  *loader.RelationLoader
}

// NewRequestLoaders builds a RequestLoaders bundle bound to this Engine's
// pool and cache.
func (e *Engine) NewRequestLoaders() *RequestLoaders {
	return &RequestLoaders{
		Components: loader.NewComponentLoader(e.pool, e.cache),
		Entities:   loader.NewEntityLoader(e.pool),
		Relations:  loader.NewRelationLoader(e.pool, e.log),
	}
}

// EntityContext adapts a RequestLoaders bundle into the entity.Context a
// batched Get call needs.
func (r *RequestLoaders) EntityContext() *entity.Context {
	return &entity.Context{Loaders: r.Components}
}

// Registry exposes the underlying registry for callers (e.g. cmd/ecsctl)
// that need to introspect registered component types directly.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// HookEventStats reports one event kind's cumulative dispatch counters.
type HookEventStats struct {
	Invocations int64
	Failures    int64
	Timeouts    int64
}

// Stats summarizes the process-wide cache and hook counters, the "cache/
// hook statistics" cmd/ecsctl inspects per SPEC_FULL's CLI section.
type Stats struct {
	PreparedCache preparedcache.Stats
	Hooks         map[hooks.EventKind]HookEventStats
}

var allEventKinds = []hooks.EventKind{
	hooks.EntityCreated, hooks.EntityUpdated, hooks.EntityDeleted,
	hooks.ComponentAdded, hooks.ComponentUpdated, hooks.ComponentRemoved,
}

// Stats gathers the current counters from the prepared-statement cache and
// hook dispatcher.
func (e *Engine) Stats() Stats {
	hookStats := make(map[hooks.EventKind]HookEventStats, len(allEventKinds))
	for _, kind := range allEventKinds {
		inv, fail, timeout := e.hooksd.Stats(kind)
		hookStats[kind] = HookEventStats{Invocations: inv, Failures: fail, Timeouts: timeout}
	}
	return Stats{
		PreparedCache: e.prep.Stats(),
		Hooks:         hookStats,
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
