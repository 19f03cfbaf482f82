// Package hooks implements the lifecycle hook dispatcher of spec §4.H: a
// process-wide registry of callbacks invoked around entity and component
// mutations, with priority ordering, synchronous or asynchronous execution,
// per-hook timeouts, and error isolation so one misbehaving hook can never
// fail the write that triggered it.
package hooks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventKind is the closed set of lifecycle events a hook can subscribe to
// (spec §4.H).
type EventKind string

const (
	EntityCreated    EventKind = "entity.created"
	EntityUpdated    EventKind = "entity.updated"
	EntityDeleted    EventKind = "entity.deleted"
	ComponentAdded   EventKind = "component.added"
	ComponentUpdated EventKind = "component.updated"
	ComponentRemoved EventKind = "component.removed"
)

// Event is the payload delivered to every hook matching its kind.
type Event struct {
	Kind         EventKind
	EntityID     uuid.UUID
	ComponentID  uuid.UUID // zero value for entity-level events
	ComponentName string
	Payload      any // the component's current payload, nil for entity-level or remove events
	OccurredAt   time.Time
}

// HookFunc is one registered callback. It receives the same ctx the
// triggering Dispatch call was given, already scoped to the hook's timeout
// when one is configured.
type HookFunc func(ctx context.Context, evt Event) error

// Options configures one hook registration.
type Options struct {
	// Name identifies the hook in stats and error messages. Defaults to a
	// generated "hook-N" if empty.
	Name string

	// Priority orders hooks for the same event kind, highest first. Ties
	// break in registration order.
	Priority int

	// Async runs this hook in its own goroutine without blocking Dispatch's
	// caller. Async hooks never contribute to Dispatch's returned error.
	Async bool

	// Timeout bounds one invocation. Zero means no per-hook deadline beyond
	// whatever the caller's ctx already carries.
	Timeout time.Duration

	// ContinueOnError lets later synchronous hooks for this event still run
	// after this one fails. Default (false) stops the synchronous chain at
	// the first failure, consistent with spec's "fail fast unless told
	// otherwise" error model.
	ContinueOnError bool
}

type registeredHook struct {
	opts Options
	fn   HookFunc
	seq  int
}

// HookResult is the outcome of one hook invocation, surfaced for
// introspection in BatchHookResult.
type HookResult struct {
	Name     string
	Kind     EventKind
	Err      error
	Duration time.Duration
	TimedOut bool
}

// BatchHookResult aggregates every hook invocation triggered by one
// Dispatch call. Async hook results are not included since they may still
// be running when Dispatch returns.
type BatchHookResult struct {
	Kind    EventKind
	Results []HookResult
}

// Err returns the first synchronous hook failure, or nil if every
// synchronous hook (that Dispatch waited for) succeeded.
func (b BatchHookResult) Err() error {
	for _, r := range b.Results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
