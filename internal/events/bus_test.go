package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishPoll(t *testing.T) {
	bus := NewBus(8)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, Status{JobID: "j1", Text: "extracting"}))
	require.NoError(t, bus.Publish(ctx, Progress{JobID: "j1", Percent: 10}))

	got := bus.Poll()
	require.Len(t, got, 2)
	assert.Equal(t, Status{JobID: "j1", Text: "extracting"}, got[0])
	assert.Equal(t, Progress{JobID: "j1", Percent: 10}, got[1])

	// Empty bus polls empty.
	assert.Empty(t, bus.Poll())
}

func TestBusPerProducerOrdering(t *testing.T) {
	bus := NewBus(1024)
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			jobID := fmt.Sprintf("job-%d", p)
			for i := 0; i <= 100; i += 10 {
				assert.NoError(t, bus.Publish(ctx, Progress{JobID: jobID, Percent: i}))
			}
		}(p)
	}
	wg.Wait()

	last := map[string]int{}
	for _, ev := range bus.Poll() {
		pr, ok := ev.(Progress)
		require.True(t, ok)
		prev, seen := last[pr.JobID]
		if seen {
			assert.GreaterOrEqual(t, pr.Percent, prev, "per-producer order must hold")
		}
		last[pr.JobID] = pr.Percent
	}
	require.Len(t, last, 4)
	for _, final := range last {
		assert.Equal(t, 100, final)
	}
}

func TestBusPublishBlocksWhenFull(t *testing.T) {
	bus := NewBus(1)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, Progress{Percent: 1}))

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	// Buffer is full; publish must block until cancelled, not drop.
	err := bus.Publish(cancelCtx, Progress{Percent: 2})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	got := bus.Poll()
	require.Len(t, got, 1)
	assert.Equal(t, Progress{Percent: 1}, got[0])
}
