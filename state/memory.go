package state

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
)

type rateWindow struct {
	// Window start in unix nanoseconds.
	windowStart int64

	// Requests consumed since windowStart.
	count int
}

// MemoryManager keeps rate windows in process memory.
type MemoryManager struct {
	windows map[string]*rateWindow
	mu      sync.Mutex

	// Clock interface for time-related operations. Must use this to avoid
	// flakiness in tests.
	clock clock.Clock
}

func NewMemoryManager() *MemoryManager {
	return newMemoryManagerWithClock(clock.New())
}

func newMemoryManagerWithClock(clk clock.Clock) *MemoryManager {
	return &MemoryManager{
		windows: make(map[string]*rateWindow),
		clock:   clk,
	}
}

func (m *MemoryManager) Consume(ctx context.Context, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.window(provider)
	w.count++
	return nil
}

func (m *MemoryManager) Usage(ctx context.Context, provider string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.window(provider).count, nil
}

// window returns the provider's window, resetting it if it has expired.
// Caller must hold mu.
func (m *MemoryManager) window(provider string) *rateWindow {
	now := m.clock.Now().UnixNano()

	w, exists := m.windows[provider]
	if !exists {
		w = &rateWindow{windowStart: now}
		m.windows[provider] = w
		return w
	}

	if now-w.windowStart > Window.Nanoseconds() {
		w.windowStart = now
		w.count = 0
	}
	return w
}
