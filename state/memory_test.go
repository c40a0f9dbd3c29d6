package state

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestMemoryManager(t *testing.T) {
	t.Run("Counts consumption within a window", func(t *testing.T) {
		mockClock := clock.NewMock()
		manager := newMemoryManagerWithClock(mockClock)
		ctx := context.Background()

		usage, err := manager.Usage(ctx, "alpha")
		assert.NoError(t, err)
		assert.Equal(t, 0, usage)

		assert.NoError(t, manager.Consume(ctx, "alpha"))
		assert.NoError(t, manager.Consume(ctx, "alpha"))

		usage, err = manager.Usage(ctx, "alpha")
		assert.NoError(t, err)
		assert.Equal(t, 2, usage)
	})

	t.Run("Providers have independent windows", func(t *testing.T) {
		mockClock := clock.NewMock()
		manager := newMemoryManagerWithClock(mockClock)
		ctx := context.Background()

		assert.NoError(t, manager.Consume(ctx, "alpha"))

		usage, err := manager.Usage(ctx, "beta")
		assert.NoError(t, err)
		assert.Equal(t, 0, usage)
	})

	t.Run("Window resets after a minute elapses", func(t *testing.T) {
		mockClock := clock.NewMock()
		manager := newMemoryManagerWithClock(mockClock)
		ctx := context.Background()

		assert.NoError(t, manager.Consume(ctx, "alpha"))

		// Exactly at the boundary the window is still live.
		mockClock.Add(Window)
		usage, err := manager.Usage(ctx, "alpha")
		assert.NoError(t, err)
		assert.Equal(t, 1, usage)

		// Past the boundary the count starts over.
		mockClock.Add(time.Nanosecond)
		usage, err = manager.Usage(ctx, "alpha")
		assert.NoError(t, err)
		assert.Equal(t, 0, usage)

		assert.NoError(t, manager.Consume(ctx, "alpha"))
		usage, err = manager.Usage(ctx, "alpha")
		assert.NoError(t, err)
		assert.Equal(t, 1, usage)
	})
}
