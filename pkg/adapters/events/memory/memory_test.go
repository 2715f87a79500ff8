package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomaasz/update-ultra/pkg/ports"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewEventBus()
	ctx := context.Background()

	var mu sync.Mutex
	received := map[string]int{}
	handler := func(name string) ports.EventHandler {
		return func(ctx context.Context, ev ports.Event) error {
			mu.Lock()
			defer mu.Unlock()
			received[name]++
			return nil
		}
	}

	require.NoError(t, bus.Subscribe(ctx, "run.events", handler("a")))
	require.NoError(t, bus.Subscribe(ctx, "run.events", handler("b")))

	require.NoError(t, bus.Publish(ctx, "run.events", ports.Event{
		ID:    "ev-1",
		Type:  ports.EventTypeRunCompleted,
		RunID: "run-1",
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received["a"] == 1 && received["b"] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPublishIgnoresOtherTopics(t *testing.T) {
	bus := NewEventBus()
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	require.NoError(t, bus.Subscribe(ctx, "step.events", func(ctx context.Context, ev ports.Event) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, "run.events", ports.Event{ID: "ev-1"}))

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
}

func TestCloseDropsSubscribers(t *testing.T) {
	bus := NewEventBus()
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	require.NoError(t, bus.Subscribe(ctx, "run.events", func(ctx context.Context, ev ports.Event) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		return nil
	}))
	require.NoError(t, bus.Close())

	require.NoError(t, bus.Publish(ctx, "run.events", ports.Event{ID: "ev-1"}))

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
}
