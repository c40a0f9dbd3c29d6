package provider

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard"
	"github.com/switchyard-ai/switchyard/state"
)

const (
	// Consecutive failures that trip the circuit breaker.
	FailureThreshold = 5

	// How long a tripped provider stays excluded, measured from its last
	// recorded failure.
	BreakerCooldown = 60 * time.Second

	// Smoothing factor for the latency moving average.
	latencyAlpha = 0.2
)

// Entry pairs a registered adapter with its static configuration.
type Entry struct {
	Config  switchyard.ProviderConfig
	Adapter Adapter

	// Registration order, used to break priority ties.
	order int
}

// Health is the mutable per-provider record updated by every call completion.
type Health struct {
	Healthy             bool          `json:"healthy"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastCheck           time.Time     `json:"last_check"`
	AvgLatency          time.Duration `json:"avg_latency"`
	TotalCalls          int64         `json:"total_calls"`
	TotalErrors         int64         `json:"total_errors"`
}

// RateUsage is a snapshot of a provider's current rate window.
type RateUsage struct {
	RequestsPerMinute int `json:"rpm"`
	Current           int `json:"current"`
}

// Registry holds the ordered provider set, its health records, and the
// availability filter combining circuit breaking with rate limiting.
type Registry struct {
	entries []*Entry
	health  map[string]*Health
	mu      sync.RWMutex

	rates  state.Manager
	clock  clock.Clock
	logger *zap.SugaredLogger

	nextOrder int
}

func NewRegistry(rates state.Manager, logger *zap.SugaredLogger) *Registry {
	return newRegistryWithClock(rates, logger, clock.New())
}

func newRegistryWithClock(rates state.Manager, logger *zap.SugaredLogger, clk clock.Clock) *Registry {
	return &Registry{
		health: make(map[string]*Health),
		rates:  rates,
		clock:  clk,
		logger: logger,
	}
}

// Register adds a provider and re-sorts the registry by ascending priority.
// Registering an existing name replaces the earlier entry.
func (r *Registry) Register(config switchyard.ProviderConfig, adapter Adapter) {
	config = config.Normalized()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &Entry{Config: config, Adapter: adapter, order: r.nextOrder}
	r.nextOrder++

	for i, existing := range r.entries {
		if existing.Config.Name == config.Name {
			r.logger.Warnw("Provider re-registered, replacing earlier entry", "provider", config.Name)
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			break
		}
	}
	r.entries = append(r.entries, entry)
	sort.SliceStable(r.entries, func(i, j int) bool {
		if r.entries[i].Config.Priority != r.entries[j].Config.Priority {
			return r.entries[i].Config.Priority < r.entries[j].Config.Priority
		}
		return r.entries[i].order < r.entries[j].order
	})

	r.health[config.Name] = &Health{Healthy: true, LastCheck: r.clock.Now()}
}

// RecordSuccess clears the failure count and folds the latest latency into
// the moving average.
func (r *Registry) RecordSuccess(name string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, exists := r.health[name]
	if !exists {
		return
	}
	h.Healthy = true
	h.ConsecutiveFailures = 0
	h.LastCheck = r.clock.Now()
	h.TotalCalls++
	h.AvgLatency = time.Duration(float64(h.AvgLatency)*(1-latencyAlpha) + float64(latency)*latencyAlpha)
}

// RecordFailure bumps the failure counters and trips the circuit breaker at
// the threshold.
func (r *Registry) RecordFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, exists := r.health[name]
	if !exists {
		return
	}
	h.ConsecutiveFailures++
	h.TotalErrors++
	h.LastCheck = r.clock.Now()
	if h.ConsecutiveFailures >= FailureThreshold {
		h.Healthy = false
	}
}

// Consume charges one request against the provider's rate window. Called for
// every dispatch regardless of outcome.
func (r *Registry) Consume(ctx context.Context, name string) {
	if err := r.rates.Consume(ctx, name); err != nil {
		r.logger.Warnw("Failed to consume rate window", "provider", name, "error", err)
	}
}

// Available returns the enabled providers that are neither circuit-broken nor
// rate-exhausted, in priority order, filtered to the given capability.
func (r *Registry) Available(ctx context.Context, capability switchyard.Capability) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock.Now()
	var available []*Entry
	for _, entry := range r.entries {
		if !entry.Config.IsEnabled() || !entry.Config.HasCapability(capability) {
			continue
		}
		if h, exists := r.health[entry.Config.Name]; exists {
			if h.ConsecutiveFailures >= FailureThreshold && now.Sub(h.LastCheck) < BreakerCooldown {
				continue
			}
		}
		usage, err := r.rates.Usage(ctx, entry.Config.Name)
		if err != nil {
			r.logger.Warnw("Failed to read rate window, assuming capacity", "provider", entry.Config.Name, "error", err)
		} else if usage >= entry.Config.Limits.RequestsPerMinute {
			continue
		}
		available = append(available, entry)
	}
	return available
}

// Find returns the entry registered under name.
func (r *Registry) Find(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.entries {
		if entry.Config.Name == name {
			return entry, true
		}
	}
	return nil, false
}

// Entries returns all registered providers in priority order.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// HealthOf returns a copy of the provider's health record.
func (r *Registry) HealthOf(name string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.health[name]
	if !exists {
		return Health{}, false
	}
	return *h, true
}

// RateUsageOf returns a snapshot of the provider's rate window.
func (r *Registry) RateUsageOf(ctx context.Context, name string) (RateUsage, bool) {
	entry, found := r.Find(name)
	if !found {
		return RateUsage{}, false
	}
	usage, err := r.rates.Usage(ctx, name)
	if err != nil {
		usage = 0
	}
	return RateUsage{RequestsPerMinute: entry.Config.Limits.RequestsPerMinute, Current: usage}, true
}
