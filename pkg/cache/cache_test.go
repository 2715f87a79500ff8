package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cachememory "github.com/tomaasz/update-ultra/pkg/adapters/cachestore/memory"
)

func countingCompute(counter *atomic.Int32, value string) ComputeFunc {
	return func(ctx context.Context) ([]byte, error) {
		counter.Add(1)
		return []byte(value), nil
	}
}

func TestGetOrComputeWithinTTLComputesOnce(t *testing.T) {
	c := New(zap.NewNop())
	var calls atomic.Int32

	v, fromCache, err := c.GetOrCompute(context.Background(), "pkg:list", time.Minute, countingCompute(&calls, "x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), v)
	assert.False(t, fromCache)

	v, fromCache, err = c.GetOrCompute(context.Background(), "pkg:list", time.Minute, countingCompute(&calls, "y"))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), v, "second call must return the cached value")
	assert.True(t, fromCache)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrComputeExpiredEntryRecomputes(t *testing.T) {
	now := time.Unix(1000, 0)
	c := New(zap.NewNop(), WithClock(func() time.Time { return now }))
	var calls atomic.Int32

	_, _, err := c.GetOrCompute(context.Background(), "k", 2*time.Second, countingCompute(&calls, "first"))
	require.NoError(t, err)

	// t=1: still live.
	now = now.Add(time.Second)
	v, fromCache, err := c.GetOrCompute(context.Background(), "k", 2*time.Second, countingCompute(&calls, "second"))
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, []byte("first"), v)

	// t=3: past TTL, treated as absent.
	now = now.Add(2 * time.Second)
	v, fromCache, err = c.GetOrCompute(context.Background(), "k", 2*time.Second, countingCompute(&calls, "second"))
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, []byte("second"), v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := New(zap.NewNop())
	var calls atomic.Int32
	release := make(chan struct{})

	compute := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("shared"), nil
	}

	const concurrency = 8
	results := make([][]byte, concurrency)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := c.GetOrCompute(context.Background(), "same-key", time.Minute, compute)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Let the callers pile onto the in-flight computation, then release it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "compute must run exactly once")
	for _, v := range results {
		assert.Equal(t, []byte("shared"), v)
	}
}

func TestGetOrComputeDifferentKeysDoNotBlock(t *testing.T) {
	c := New(zap.NewNop())
	blocked := make(chan struct{})

	go func() {
		_, _, _ = c.GetOrCompute(context.Background(), "slow", time.Minute, func(ctx context.Context) ([]byte, error) {
			<-blocked
			return []byte("slow"), nil
		})
	}()

	done := make(chan struct{})
	go func() {
		_, _, err := c.GetOrCompute(context.Background(), "fast", time.Minute, func(ctx context.Context) ([]byte, error) {
			return []byte("fast"), nil
		})
		require.NoError(t, err)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("independent key blocked behind an unrelated in-flight computation")
	}
	close(blocked)
}

func TestForceRefreshOverwrites(t *testing.T) {
	c := New(zap.NewNop())
	var calls atomic.Int32

	_, _, err := c.GetOrCompute(context.Background(), "k", time.Minute, countingCompute(&calls, "old"))
	require.NoError(t, err)

	v, err := c.ForceRefresh(context.Background(), "k", time.Minute, countingCompute(&calls, "new"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)
	assert.Equal(t, int32(2), calls.Load())

	v, fromCache, err := c.GetOrCompute(context.Background(), "k", time.Minute, countingCompute(&calls, "unused"))
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, []byte("new"), v)
}

func TestComputeErrorPropagatesAndNothingStored(t *testing.T) {
	c := New(zap.NewNop())
	boom := errors.New("apt exited 100")

	_, _, err := c.GetOrCompute(context.Background(), "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	var calls atomic.Int32
	_, fromCache, err := c.GetOrCompute(context.Background(), "k", time.Minute, countingCompute(&calls, "ok"))
	require.NoError(t, err)
	assert.False(t, fromCache, "failed compute must not leave an entry behind")
}

func TestInvalidate(t *testing.T) {
	c := New(zap.NewNop())
	var calls atomic.Int32

	_, _, err := c.GetOrCompute(context.Background(), "k", time.Minute, countingCompute(&calls, "v"))
	require.NoError(t, err)

	c.Invalidate("k")

	_, fromCache, err := c.GetOrCompute(context.Background(), "k", time.Minute, countingCompute(&calls, "v"))
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBackendPersistenceAcrossInstances(t *testing.T) {
	backend := cachememory.NewStore()
	var calls atomic.Int32

	first := New(zap.NewNop(), WithBackend(backend))
	_, _, err := first.GetOrCompute(context.Background(), "k", time.Hour, countingCompute(&calls, "persisted"))
	require.NoError(t, err)

	// A fresh cache instance simulates a process restart.
	second := New(zap.NewNop(), WithBackend(backend))
	v, fromCache, err := second.GetOrCompute(context.Background(), "k", time.Hour, countingCompute(&calls, "recomputed"))
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, []byte("persisted"), v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBackendEntryPastTTLTreatedAsAbsent(t *testing.T) {
	backend := cachememory.NewStore()
	require.NoError(t, backend.Store(context.Background(), "k", []byte("stale"), time.Now().Add(-time.Hour)))

	c := New(zap.NewNop(), WithBackend(backend))
	var calls atomic.Int32
	v, fromCache, err := c.GetOrCompute(context.Background(), "k", time.Minute, countingCompute(&calls, "fresh"))
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, []byte("fresh"), v)

	// Lazy expiry: the stale entry is not deleted from the backing store,
	// just ignored (it has since been overwritten by the fresh value).
	_, _, ok, err := backend.Load(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInvalidateAllClearsBackend(t *testing.T) {
	backend := cachememory.NewStore()
	c := New(zap.NewNop(), WithBackend(backend))

	var calls atomic.Int32
	_, _, err := c.GetOrCompute(context.Background(), "k", time.Hour, countingCompute(&calls, "v"))
	require.NoError(t, err)

	require.NoError(t, c.InvalidateAll(context.Background()))

	_, _, ok, err := backend.Load(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
