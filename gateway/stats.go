package gateway

import (
	"context"

	"github.com/switchyard-ai/switchyard"
	"github.com/switchyard-ai/switchyard/audit"
	"github.com/switchyard-ai/switchyard/cost"
	"github.com/switchyard-ai/switchyard/provider"
)

// ProviderStats is one provider's registration plus live health and rate
// usage.
type ProviderStats struct {
	Name         string                  `json:"name"`
	ServiceGroup string                  `json:"service_group"`
	Enabled      bool                    `json:"enabled"`
	Priority     int                     `json:"priority"`
	Capabilities []switchyard.Capability `json:"capabilities"`
	Health       provider.Health         `json:"health"`
	Rate         provider.RateUsage      `json:"rate"`
}

// Stats is the gateway's point-in-time operational snapshot.
type Stats struct {
	TotalRequests     int64            `json:"total_requests"`
	CacheHits         int64            `json:"cache_hits"`
	SemanticCacheHits int64            `json:"semantic_cache_hits"`
	Failures          int64            `json:"failures"`
	Wins              map[string]int64 `json:"wins"`
	Providers         []ProviderStats  `json:"providers"`
	Budget            cost.Snapshot    `json:"budget"`
	CacheSize         int              `json:"cache_size"`
	AuditEntries      int              `json:"audit_entries"`
}

// Stats reports counters, per-provider health and rate usage, budget state,
// and cache occupancy.
func (g *Gateway) Stats(ctx context.Context) Stats {
	g.statsMu.Lock()
	wins := make(map[string]int64, len(g.wins))
	for name, count := range g.wins {
		wins[name] = count
	}
	stats := Stats{
		TotalRequests:     g.totalRequests,
		CacheHits:         g.cacheHits,
		SemanticCacheHits: g.semanticHits,
		Failures:          g.failures,
		Wins:              wins,
	}
	g.statsMu.Unlock()

	for _, entry := range g.registry.Entries() {
		health, _ := g.registry.HealthOf(entry.Config.Name)
		rate, _ := g.registry.RateUsageOf(ctx, entry.Config.Name)
		stats.Providers = append(stats.Providers, ProviderStats{
			Name:         entry.Config.Name,
			ServiceGroup: entry.Config.ServiceGroup,
			Enabled:      entry.Config.IsEnabled(),
			Priority:     entry.Config.Priority,
			Capabilities: entry.Config.Capabilities,
			Health:       health,
			Rate:         rate,
		})
	}

	stats.Budget = g.ledger.Snapshot()
	stats.CacheSize = g.cache.Len()
	stats.AuditEntries = g.auditLog.Len()
	return stats
}

// Audit returns up to limit recent audit entries, newest last. A limit of
// zero returns everything retained.
func (g *Gateway) Audit(limit int) []audit.Entry {
	return g.auditLog.Recent(limit)
}

// Optimizations runs the advisor over the audit ring.
func (g *Gateway) Optimizations() audit.Optimizations {
	entries := g.registry.Entries()
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Config.Name
	}
	return g.advisor.Optimizations(names, g.ledger.Snapshot())
}
