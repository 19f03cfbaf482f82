package loader

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatcherCollapsesConcurrentLoadsIntoOneFetch(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	var seenKeys []int

	b := NewBatcher[int, string](func(ctx context.Context, keys []int) ([]string, error) {
		calls.Add(1)
		mu.Lock()
		seenKeys = append(seenKeys, keys...)
		mu.Unlock()
		out := make([]string, len(keys))
		for i, k := range keys {
			out[i] = "v" + string(rune('0'+k))
		}
		return out, nil
	}, 20*time.Millisecond, 0)

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := b.Load(context.Background(), i)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, seenKeys, 5)
	assert.Equal(t, "v0", results[0])
	assert.Equal(t, "v4", results[4])
}

func TestBatcherFlushesImmediatelyAtMaxBatchSize(t *testing.T) {
	var calls atomic.Int32
	b := NewBatcher[int, int](func(ctx context.Context, keys []int) ([]int, error) {
		calls.Add(1)
		return keys, nil
	}, time.Hour, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = b.Load(context.Background(), i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestBatcherPropagatesFetchError(t *testing.T) {
	boom := assert.AnError
	b := NewBatcher[int, int](func(ctx context.Context, keys []int) ([]int, error) {
		return nil, boom
	}, 5*time.Millisecond, 0)

	_, err := b.Load(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}

func TestBatcherDeduplicatesRepeatedKey(t *testing.T) {
	var fetchedKeys []int
	b := NewBatcher[int, int](func(ctx context.Context, keys []int) ([]int, error) {
		fetchedKeys = append(fetchedKeys, keys...)
		return keys, nil
	}, 10*time.Millisecond, 0)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = b.Load(context.Background(), 7)
		}()
	}
	wg.Wait()
	assert.Len(t, fetchedKeys, 1)
}
