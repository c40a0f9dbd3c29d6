package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestCache(t *testing.T) {
	t.Run("Round trip", func(t *testing.T) {
		mockClock := clock.NewMock()
		cache := newWithClock(10, time.Minute, mockClock)

		cache.Put("sys", "hello", "world", "alpha")

		entry, found := cache.Get("sys", "hello")
		assert.True(t, found)
		assert.Equal(t, "world", entry.Response)
		assert.Equal(t, "alpha", entry.Engine)
	})

	t.Run("Key includes the system prompt", func(t *testing.T) {
		mockClock := clock.NewMock()
		cache := newWithClock(10, time.Minute, mockClock)

		cache.Put("sys-a", "hello", "world", "alpha")

		_, found := cache.Get("sys-b", "hello")
		assert.False(t, found)

		_, found = cache.Get("", "hello")
		assert.False(t, found)
	})

	t.Run("Expired entries read as misses and are removed", func(t *testing.T) {
		mockClock := clock.NewMock()
		cache := newWithClock(10, time.Minute, mockClock)

		cache.Put("", "hello", "world", "alpha")
		assert.Equal(t, 1, cache.Len())

		mockClock.Add(time.Minute)

		_, found := cache.Get("", "hello")
		assert.False(t, found)
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("Eviction is insertion order, not recency of use", func(t *testing.T) {
		mockClock := clock.NewMock()
		cache := newWithClock(3, time.Minute, mockClock)

		cache.Put("", "first", "1", "alpha")
		cache.Put("", "second", "2", "alpha")
		cache.Put("", "third", "3", "alpha")

		// A read must not protect the oldest entry.
		_, found := cache.Get("", "first")
		assert.True(t, found)

		cache.Put("", "fourth", "4", "alpha")

		_, found = cache.Get("", "first")
		assert.False(t, found)
		_, found = cache.Get("", "second")
		assert.True(t, found)
		assert.Equal(t, 3, cache.Len())
	})

	t.Run("Rewriting a key refreshes its insertion slot", func(t *testing.T) {
		mockClock := clock.NewMock()
		cache := newWithClock(2, time.Minute, mockClock)

		cache.Put("", "first", "1", "alpha")
		cache.Put("", "second", "2", "alpha")
		cache.Put("", "first", "1b", "beta")
		cache.Put("", "third", "3", "alpha")

		// "second" became the oldest once "first" was rewritten.
		_, found := cache.Get("", "second")
		assert.False(t, found)

		entry, found := cache.Get("", "first")
		assert.True(t, found)
		assert.Equal(t, "1b", entry.Response)
	})

	t.Run("Capacity bound holds under churn", func(t *testing.T) {
		mockClock := clock.NewMock()
		cache := newWithClock(5, time.Minute, mockClock)

		for i := 0; i < 50; i++ {
			cache.Put("", fmt.Sprintf("message-%d", i), "response", "alpha")
		}
		assert.Equal(t, 5, cache.Len())
	})
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("sys", "msg"), Key("sys", "msg"))
	assert.NotEqual(t, Key("sys", "msg"), Key("", "sysmsg"))
	assert.Len(t, Key("", "msg"), 64)
}
