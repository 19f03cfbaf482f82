package hooks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ecsdb/ecsdb/internal/ecserr"
)

var tracer = otel.Tracer("github.com/ecsdb/ecsdb/internal/hooks")

// Dispatcher is the process-wide lifecycle hook registry. Constructed once
// at startup (internal/engine) and shared by every Entity via entity.Deps,
// never a package-level singleton.
type Dispatcher struct {
	mu            sync.RWMutex
	byKind        map[EventKind][]*registeredHook
	seq           int
	maxConcurrent int
	sem           chan struct{}

	stats map[EventKind]*eventStats
}

type eventStats struct {
	invocations atomic.Int64
	failures    atomic.Int64
	timeouts    atomic.Int64
}

// New builds an empty Dispatcher. maxConcurrency bounds how many async
// hooks may run at once across all event kinds; 0 means unbounded.
func New(maxConcurrency int) *Dispatcher {
	d := &Dispatcher{
		byKind: make(map[EventKind][]*registeredHook),
		stats:  make(map[EventKind]*eventStats),
	}
	if maxConcurrency > 0 {
		d.maxConcurrent = maxConcurrency
		d.sem = make(chan struct{}, maxConcurrency)
	}
	for _, k := range []EventKind{EntityCreated, EntityUpdated, EntityDeleted, ComponentAdded, ComponentUpdated, ComponentRemoved} {
		d.stats[k] = &eventStats{}
	}
	return d
}

// On registers fn to run on events of kind. Returns the resolved hook name
// (opts.Name if set, else a generated one) for later reference in logs or
// stats.
func (d *Dispatcher) On(kind EventKind, fn HookFunc, opts Options) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	if opts.Name == "" {
		opts.Name = fmt.Sprintf("hook-%d", d.seq)
	}
	rh := &registeredHook{opts: opts, fn: fn, seq: d.seq}
	hooks := append(d.byKind[kind], rh)
	sort.SliceStable(hooks, func(i, j int) bool {
		if hooks[i].opts.Priority != hooks[j].opts.Priority {
			return hooks[i].opts.Priority > hooks[j].opts.Priority
		}
		return hooks[i].seq < hooks[j].seq
	})
	d.byKind[kind] = hooks
	return opts.Name
}

// Dispatch runs every hook registered for evt.Kind, synchronous ones in
// priority order on the calling goroutine and async ones fan-out to their
// own goroutines. It returns once all synchronous hooks have run (or one
// has failed without ContinueOnError); it does not wait for async hooks.
//
// Dispatch itself never returns a hard error to the caller that triggered
// it — lifecycle hooks are observability and side-effects, not part of the
// write's correctness (spec §7: ErrHook is reported, never fatal). Callers
// that care about hook failures inspect BatchHookResult.Err().
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) BatchHookResult {
	d.mu.RLock()
	hooks := append([]*registeredHook(nil), d.byKind[evt.Kind]...)
	d.mu.RUnlock()

	batch := BatchHookResult{Kind: evt.Kind}
	for _, rh := range hooks {
		if rh.opts.Async {
			d.runAsync(ctx, rh, evt)
			continue
		}
		res := d.invoke(ctx, rh, evt)
		batch.Results = append(batch.Results, res)
		if res.Err != nil && !rh.opts.ContinueOnError {
			break
		}
	}
	return batch
}

func (d *Dispatcher) runAsync(ctx context.Context, rh *registeredHook, evt Event) {
	detached := context.WithoutCancel(ctx)
	go func() {
		if d.sem != nil {
			d.sem <- struct{}{}
			defer func() { <-d.sem }()
		}
		d.invoke(detached, rh, evt)
	}()
}

func (d *Dispatcher) invoke(ctx context.Context, rh *registeredHook, evt Event) HookResult {
	stats := d.stats[evt.Kind]
	hookCtx := ctx
	var cancel context.CancelFunc
	if rh.opts.Timeout > 0 {
		hookCtx, cancel = context.WithTimeout(ctx, rh.opts.Timeout)
		defer cancel()
	}

	hookCtx, span := tracer.Start(hookCtx, "hooks.dispatch",
		trace.WithAttributes(
			attribute.String("hook.name", rh.opts.Name),
			attribute.String("hook.event", string(evt.Kind)),
			attribute.String("ecsdb.entity_id", evt.EntityID.String()),
		),
	)
	defer span.End()

	if stats != nil {
		stats.invocations.Add(1)
	}

	start := time.Now()
	err := rh.fn(hookCtx, evt)
	dur := time.Since(start)

	timedOut := rh.opts.Timeout > 0 && hookCtx.Err() != nil && err != nil
	if err != nil {
		if stats != nil {
			stats.failures.Add(1)
		}
		if timedOut && stats != nil {
			stats.timeouts.Add(1)
		}
		err = ecserr.Wrap(fmt.Sprintf("hooks.%s", rh.opts.Name), ecserr.ErrHook, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return HookResult{Name: rh.opts.Name, Kind: evt.Kind, Err: err, Duration: dur, TimedOut: timedOut}
}

// Stats reports cumulative invocation/failure/timeout counts for one event
// kind, for diagnostics and the ecsctl inspection command.
func (d *Dispatcher) Stats(kind EventKind) (invocations, failures, timeouts int64) {
	s, ok := d.stats[kind]
	if !ok {
		return 0, 0, 0
	}
	return s.invocations.Load(), s.failures.Load(), s.timeouts.Load()
}

// Hooks returns the names registered for kind, in dispatch order, for
// introspection.
func (d *Dispatcher) Hooks(kind EventKind) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.byKind[kind]))
	for _, rh := range d.byKind[kind] {
		out = append(out, rh.opts.Name)
	}
	return out
}
