package state

import (
	"context"
	"time"
)

// Window is the rolling rate-limit window applied to every provider.
const Window = 60 * time.Second

// Manager tracks per-provider request consumption inside a rolling window.
// The in-memory implementation is per-process; the Valkey implementation
// shares windows across redundant gateway instances.
type Manager interface {
	// Consume records one dispatched request against the provider's window.
	// Called for every dispatch regardless of outcome.
	Consume(ctx context.Context, provider string) error

	// Usage returns the number of requests consumed in the current window.
	Usage(ctx context.Context, provider string) (int, error)
}
