// Package registry implements the component registry (spec §4.A): the
// mapping between a component's human name and its stable type-ID, plus
// the bookkeeping needed to know when a component's storage is ready to
// accept writes.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/ecsdb/ecsdb/internal/ecserr"
)

// PartitionStrategy selects how the components table is partitioned on
// type_id (spec §4.B).
type PartitionStrategy string

const (
	StrategyList PartitionStrategy = "list"
	StrategyHash PartitionStrategy = "hash"
)

// Constructor builds a new zero-value payload instance for a component
// type. Applications register one alongside the component's property
// schema; the query and entity layers use it to allocate a fresh value
// before unmarshaling a stored payload into it.
type Constructor func() any

// Metadata is what the registry persists about a component type, mirroring
// the component_types table of spec §6.
type Metadata struct {
	Name        string
	TypeID      int64
	Schema      PropertySchema
	Constructor Constructor
}

// Descriptor is the read side of Metadata: everything a caller needs to
// know about a registered component type, including where it lives.
type Descriptor struct {
	Metadata
	PartitionTable string
}

// Store is the persistence seam the registry calls into on first
// registration of a name: persist (name, typeId, schema) to the metadata
// table, and — for LIST partitioning — create the per-type partition. It
// is implemented by internal/schema so that package, not this one, owns
// DDL and SQL text.
type Store interface {
	// LoadAll returns every previously persisted component type, used to
	// repopulate the registry across restarts.
	LoadAll(ctx context.Context) ([]Metadata, error)

	// Persist writes a new (name, typeId, schema) row. Must be idempotent
	// under ON CONFLICT DO NOTHING semantics — the registry only calls it
	// once per name per process, but two processes may race on first boot.
	Persist(ctx context.Context, name string, typeID int64, schema PropertySchema) error

	// EnsurePartition creates the per-type partition (LIST strategy) or is
	// a no-op (HASH strategy, where the fixed N partitions already exist).
	EnsurePartition(ctx context.Context, typeID int64, partitionTable string) error
}

// Registry is the process-wide, lock-protected component type directory.
// It is constructed once at startup and injected into the query, entity,
// and loader layers (never accessed as a package-level singleton).
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]*Descriptor
	byID     map[int64]*Descriptor
	strategy PartitionStrategy
	hashN    int
	store    Store

	readyMu  sync.Mutex
	ready    map[string]chan struct{}
	readyErr map[string]error
}

// Options configures a new Registry.
type Options struct {
	Strategy           PartitionStrategy // default StrategyList
	HashPartitionCount int               // default 16, only meaningful for StrategyHash
	Store              Store
}

// New constructs an empty Registry. Call LoadExisting to repopulate it from
// the metadata table on startup before accepting application registrations.
func New(opts Options) *Registry {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyList
	}
	n := opts.HashPartitionCount
	if n <= 0 {
		n = 16
	}
	return &Registry{
		byName:   make(map[string]*Descriptor),
		byID:     make(map[int64]*Descriptor),
		strategy: strategy,
		hashN:    n,
		store:    opts.Store,
		ready:    make(map[string]chan struct{}),
		readyErr: make(map[string]error),
	}
}

// LoadExisting repopulates the registry from previously persisted
// component types. It marks every loaded name immediately ready, since its
// partition already exists from a prior run.
func (r *Registry) LoadExisting(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	rows, err := r.store.LoadAll(ctx)
	if err != nil {
		return ecserr.Wrap("registry.LoadExisting", ecserr.ErrFatal, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range rows {
		d := &Descriptor{Metadata: m, PartitionTable: r.partitionTableFor(m.Name, m.TypeID)}
		r.byName[m.Name] = d
		r.byID[m.TypeID] = d
		r.markReadyLocked(m.Name, nil)
	}
	return nil
}

// partitionTableFor computes the partition table name for a component,
// independent of locking.
func (r *Registry) partitionTableFor(name string, typeID int64) string {
	switch r.strategy {
	case StrategyHash:
		return fmt.Sprintf("components_p%d", uint64(typeID)%uint64(r.hashN))
	default:
		return "components_" + PartitionSuffix(name)
	}
}

// Register declares a component type. Idempotent: calling it again with
// the same name and an equal schema changes nothing, except that it
// attaches ctor to a type restored by LoadExisting, which has none; calling
// it with a
// different schema is the fatal "duplicate registration with mismatched
// schema" startup error (spec §4.A).
//
// Registration is asynchronous with respect to storage: the type-ID is
// computed and returned immediately (it's a pure function of the name),
// but the metadata-table write and any partition DDL happen in the
// background and are tracked via ReadyPromise. Saves that touch this
// component type must wait on readiness before writing.
func (r *Registry) Register(ctx context.Context, name string, ctor Constructor, schema PropertySchema) (int64, error) {
	typeID := DeriveTypeID(name)

	r.mu.Lock()
	if existing, ok := r.byName[name]; ok {
		if !existing.Schema.Equal(schema) {
			r.mu.Unlock()
			return 0, fmt.Errorf("%w: component %q re-registered with a different schema", ecserr.ErrFatal, name)
		}
		if existing.Constructor == nil {
			existing.Constructor = ctor
		}
		r.mu.Unlock()
		return existing.TypeID, nil
	}
	d := &Descriptor{
		Metadata:       Metadata{Name: name, TypeID: typeID, Schema: schema, Constructor: ctor},
		PartitionTable: r.partitionTableFor(name, typeID),
	}
	r.byName[name] = d
	r.byID[typeID] = d
	readyCh := r.newPendingLocked(name)
	r.mu.Unlock()

	go r.finishRegistration(ctx, name, typeID, schema, d.PartitionTable, readyCh)

	return typeID, nil
}

func (r *Registry) finishRegistration(ctx context.Context, name string, typeID int64, schema PropertySchema, partitionTable string, readyCh chan struct{}) {
	var err error
	if r.store != nil {
		if err = r.store.Persist(ctx, name, typeID, schema); err == nil {
			err = r.store.EnsurePartition(ctx, typeID, partitionTable)
		}
	}
	r.readyMu.Lock()
	r.readyErr[name] = err
	close(readyCh)
	r.readyMu.Unlock()
}

func (r *Registry) newPendingLocked(name string) chan struct{} {
	r.readyMu.Lock()
	defer r.readyMu.Unlock()
	ch := make(chan struct{})
	r.ready[name] = ch
	return ch
}

func (r *Registry) markReadyLocked(name string, err error) {
	r.readyMu.Lock()
	defer r.readyMu.Unlock()
	if ch, ok := r.ready[name]; ok {
		select {
		case <-ch:
			// already closed
		default:
			close(ch)
		}
	} else {
		ch := make(chan struct{})
		close(ch)
		r.ready[name] = ch
	}
	r.readyErr[name] = err
}

// ReadyPromise resolves when name's registration (metadata persist + any
// partition DDL) has completed, or the context is canceled first. A
// component declared before the database is reachable can still be
// registered; saves referencing it must await this before writing.
func (r *Registry) ReadyPromise(ctx context.Context, name string) error {
	r.readyMu.Lock()
	ch, ok := r.ready[name]
	r.readyMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: component %q is not registered", ecserr.ErrValidation, name)
	}
	select {
	case <-ch:
		r.readyMu.Lock()
		err := r.readyErr[name]
		r.readyMu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TypeIDOf returns the stable type-ID for a registered component name.
func (r *Registry) TypeIDOf(name string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	if !ok {
		return 0, false
	}
	return d.TypeID, true
}

// ConstructorOf returns the registered constructor for a type-ID.
func (r *Registry) ConstructorOf(typeID int64) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[typeID]
	if !ok {
		return nil, false
	}
	return d.Constructor, true
}

// PropertySchemaOf returns the declared field schema for a type-ID.
func (r *Registry) PropertySchemaOf(typeID int64) (PropertySchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[typeID]
	if !ok {
		return nil, false
	}
	return d.Schema, true
}

// Describe returns the full descriptor for a registered name.
func (r *Registry) Describe(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// DescribeByID returns the full descriptor for a type-ID.
func (r *Registry) DescribeByID(typeID int64) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[typeID]
	return d, ok
}

// Strategy returns the active partitioning strategy.
func (r *Registry) Strategy() PartitionStrategy { return r.strategy }

// HashPartitionCount returns N for HASH partitioning (meaningless under LIST).
func (r *Registry) HashPartitionCount() int { return r.hashN }

// Names returns every registered component name, for startup DDL sweeps
// and diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}
