package hooks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchRunsSyncHooksInPriorityOrder(t *testing.T) {
	d := New(0)
	var order []string
	var mu sync.Mutex
	record := func(name string) HookFunc {
		return func(ctx context.Context, evt Event) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	d.On(EntityCreated, record("mid"), Options{Priority: 10})
	d.On(EntityCreated, record("lowest"), Options{Priority: 1})
	d.On(EntityCreated, record("highest"), Options{Priority: 20})

	batch := d.Dispatch(context.Background(), Event{Kind: EntityCreated, EntityID: uuid.New()})
	require.Len(t, batch.Results, 3)
	assert.Equal(t, []string{"highest", "mid", "lowest"}, order)
	assert.NoError(t, batch.Err())
}

func TestDispatchStopsSyncChainOnFailureWithoutContinueOnError(t *testing.T) {
	d := New(0)
	var ran atomic.Bool
	d.On(EntityUpdated, func(ctx context.Context, evt Event) error {
		return errors.New("boom")
	}, Options{Name: "failing", Priority: 2})
	d.On(EntityUpdated, func(ctx context.Context, evt Event) error {
		ran.Store(true)
		return nil
	}, Options{Priority: 1})

	batch := d.Dispatch(context.Background(), Event{Kind: EntityUpdated, EntityID: uuid.New()})
	require.Len(t, batch.Results, 1)
	assert.Error(t, batch.Err())
	assert.False(t, ran.Load())
}

func TestDispatchContinuesSyncChainWithContinueOnError(t *testing.T) {
	d := New(0)
	var ran atomic.Bool
	d.On(EntityUpdated, func(ctx context.Context, evt Event) error {
		return errors.New("boom")
	}, Options{Priority: 2, ContinueOnError: true})
	d.On(EntityUpdated, func(ctx context.Context, evt Event) error {
		ran.Store(true)
		return nil
	}, Options{Priority: 1})

	batch := d.Dispatch(context.Background(), Event{Kind: EntityUpdated, EntityID: uuid.New()})
	require.Len(t, batch.Results, 2)
	assert.True(t, ran.Load())
}

func TestDispatchAsyncHookDoesNotBlockCaller(t *testing.T) {
	d := New(4)
	done := make(chan struct{})
	d.On(ComponentAdded, func(ctx context.Context, evt Event) error {
		defer close(done)
		time.Sleep(20 * time.Millisecond)
		return nil
	}, Options{Async: true})

	start := time.Now()
	batch := d.Dispatch(context.Background(), Event{Kind: ComponentAdded, EntityID: uuid.New()})
	assert.Less(t, time.Since(start), 15*time.Millisecond)
	assert.Empty(t, batch.Results)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async hook never ran")
	}
}

func TestDispatchHookTimeout(t *testing.T) {
	d := New(0)
	d.On(EntityDeleted, func(ctx context.Context, evt Event) error {
		<-ctx.Done()
		return ctx.Err()
	}, Options{Name: "slow", Timeout: 10 * time.Millisecond})

	batch := d.Dispatch(context.Background(), Event{Kind: EntityDeleted, EntityID: uuid.New()})
	require.Len(t, batch.Results, 1)
	assert.True(t, batch.Results[0].TimedOut)

	_, failures, timeouts := d.Stats(EntityDeleted)
	assert.Equal(t, int64(1), failures)
	assert.Equal(t, int64(1), timeouts)
}

func TestHooksReturnsRegisteredNamesInOrder(t *testing.T) {
	d := New(0)
	d.On(ComponentRemoved, func(ctx context.Context, evt Event) error { return nil }, Options{Name: "b", Priority: 2})
	d.On(ComponentRemoved, func(ctx context.Context, evt Event) error { return nil }, Options{Name: "a", Priority: 1})
	assert.Equal(t, []string{"b", "a"}, d.Hooks(ComponentRemoved))
}
