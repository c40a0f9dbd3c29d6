// Package gateway is the routing engine: it consumes the provider registry's
// availability filter and the cache tiers, dispatches requests by racing or
// sequential trial, and settles cost and audit bookkeeping.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard"
	"github.com/switchyard-ai/switchyard/audit"
	"github.com/switchyard-ai/switchyard/cache"
	"github.com/switchyard-ai/switchyard/cost"
	"github.com/switchyard-ai/switchyard/monitoring"
	"github.com/switchyard-ai/switchyard/provider"
)

// DefaultRaceCeiling forces a race to resolve even when no provider has
// responded.
const DefaultRaceCeiling = 30 * time.Second

// Config wires the gateway's collaborators. Zero-value fields get defaults;
// Semantic and Metrics are optional.
type Config struct {
	Cache    *cache.Cache
	Semantic *cache.Semantic
	Ledger   *cost.Ledger
	Audit    *audit.Log
	Metrics  *monitoring.Metrics

	RaceCeiling time.Duration
}

// Gateway is the single routing point for chat and embedding traffic.
// Construct one per process and register providers at construction time.
type Gateway struct {
	registry *provider.Registry
	cache    *cache.Cache
	semantic *cache.Semantic
	ledger   *cost.Ledger
	auditLog *audit.Log
	advisor  *audit.Advisor
	metrics  *monitoring.Metrics
	logger   *zap.SugaredLogger
	clock    clock.Clock

	raceCeiling time.Duration

	statsMu       sync.Mutex
	totalRequests int64
	cacheHits     int64
	semanticHits  int64
	failures      int64
	wins          map[string]int64
}

func New(registry *provider.Registry, config Config, logger *zap.SugaredLogger) *Gateway {
	return newWithClock(registry, config, logger, clock.New())
}

func newWithClock(registry *provider.Registry, config Config, logger *zap.SugaredLogger, clk clock.Clock) *Gateway {
	if config.Cache == nil {
		config.Cache = cache.New(cache.DefaultCapacity, cache.DefaultTTL)
	}
	if config.Ledger == nil {
		config.Ledger = cost.NewLedger(0, 0)
	}
	if config.Audit == nil {
		config.Audit = audit.NewLog()
	}
	if config.RaceCeiling <= 0 {
		config.RaceCeiling = DefaultRaceCeiling
	}
	return &Gateway{
		registry:    registry,
		cache:       config.Cache,
		semantic:    config.Semantic,
		ledger:      config.Ledger,
		auditLog:    config.Audit,
		advisor:     audit.NewAdvisor(config.Audit),
		metrics:     config.Metrics,
		logger:      logger,
		clock:       clk,
		raceCeiling: config.RaceCeiling,
		wins:        make(map[string]int64),
	}
}

// Registry exposes the gateway's provider registry.
func (g *Gateway) Registry() *provider.Registry {
	return g.registry
}

// AuditLog exposes the audit ring shared with the decomposition engine.
func (g *Gateway) AuditLog() *audit.Log {
	return g.auditLog
}

// Ledger exposes the cost ledger shared with the decomposition engine.
func (g *Gateway) Ledger() *cost.Ledger {
	return g.ledger
}

// CountRequest adds one operation to the request total. The decomposition
// engine calls this so Stats covers traffic routed outside Chat and Embed.
func (g *Gateway) CountRequest() {
	g.bump(&g.totalRequests)
}

// Chat routes a message to the best available provider. Racing is the
// default whenever more than one provider is available; sequential dispatch
// is used when requested or when only a single candidate remains.
func (g *Gateway) Chat(ctx context.Context, message string, opts switchyard.ChatOptions) (*switchyard.ChatResult, error) {
	g.metrics.RecordRequest("chat")
	g.bump(&g.totalRequests)

	raceID := "gw-" + uuid.NewString()
	priority := opts.Priority
	if priority == "" {
		priority = ClassifyPriority(message)
	}
	start := g.clock.Now()

	cacheEnabled := opts.Cache == nil || *opts.Cache
	if cacheEnabled && (priority == switchyard.PriorityLow || priority == switchyard.PriorityMedium) {
		if entry, found := g.cache.Get(opts.System, message); found {
			g.bump(&g.cacheHits)
			g.metrics.RecordCacheHit("exact")
			return &switchyard.ChatResult{
				Response: entry.Response,
				Engine:   entry.Engine,
				Cached:   true,
				Race:     switchyard.RaceInfo{ID: raceID, Priority: priority},
			}, nil
		}

		if g.semantic != nil {
			if hit, err := g.semantic.Lookup(ctx, message); err == nil && hit != nil {
				g.bump(&g.semanticHits)
				g.metrics.RecordCacheHit("semantic")
				return &switchyard.ChatResult{
					Response:         hit.Response,
					Engine:           "semantic-cache",
					Cached:           true,
					Semantic:         true,
					Similarity:       hit.Similarity,
					OriginalQuestion: hit.OriginalQuestion,
					ProvenBy:         hit.ProvenBy,
					Latency:          g.clock.Since(start),
					Race:             switchyard.RaceInfo{ID: raceID, Priority: priority},
				}, nil
			}
		}
	}

	available := g.registry.Available(ctx, switchyard.CapabilityChat)
	if len(available) == 0 {
		return nil, switchyard.ErrNoProvidersAvailable
	}

	var winner *callOutcome
	var err error
	if !opts.Sequential && len(available) > 1 {
		winner, err = g.race(ctx, available, message, opts, raceID)
	} else {
		winner, err = g.sequential(ctx, available, message, opts)
	}
	if err != nil {
		return nil, err
	}

	name := winner.entry.Config.Name
	g.bumpWin(name)
	g.metrics.RecordWin(name)

	spent := cost.Estimate(winner.entry.Config.Pricing, message, winner.result.Response)
	g.ledger.Add(spent)
	g.metrics.SetDailySpend(g.ledger.Snapshot().Daily)

	if priority != switchyard.PriorityCritical {
		g.cache.Put(opts.System, message, winner.result.Response, winner.entry.Config.ServiceGroup)
	}
	if g.semantic != nil {
		// Fire-and-forget; must not block the caller's return path.
		go g.semantic.Store(context.WithoutCancel(ctx), message, winner.result.Response,
			winner.entry.Config.ServiceGroup, winner.result.Model)
	}

	latency := g.clock.Since(start)
	g.metrics.ObserveLatency("chat", latency.Seconds())

	return &switchyard.ChatResult{
		Response: winner.result.Response,
		Engine:   winner.entry.Config.ServiceGroup,
		Model:    winner.result.Model,
		Latency:  latency,
		Race:     switchyard.RaceInfo{ID: raceID, Priority: priority},
	}, nil
}

// Embed tries capability-matched providers sequentially; there is no racing
// for embeddings.
func (g *Gateway) Embed(ctx context.Context, text string, opts switchyard.EmbedOptions) (*switchyard.EmbedResult, error) {
	g.metrics.RecordRequest("embed")

	for _, entry := range g.registry.Entries() {
		if !entry.Config.IsEnabled() || !entry.Config.HasCapability(switchyard.CapabilityEmbed) {
			continue
		}
		embedder, ok := entry.Adapter.(provider.Embedder)
		if !ok {
			continue
		}

		start := g.clock.Now()
		result, err := embedder.Embed(ctx, text, provider.EmbedParams{Model: opts.Model})
		if err != nil {
			g.registry.RecordFailure(entry.Config.Name)
			g.metrics.RecordProviderError(entry.Config.Name)
			continue
		}
		g.registry.RecordSuccess(entry.Config.Name, g.clock.Since(start))

		return &switchyard.EmbedResult{
			Embedding:  result.Embedding,
			Dimensions: result.Dimensions,
			Engine:     entry.Config.ServiceGroup,
		}, nil
	}
	return nil, switchyard.ErrNoEmbeddingProvider
}

func (g *Gateway) bump(counter *int64) {
	g.statsMu.Lock()
	*counter++
	g.statsMu.Unlock()
}

func (g *Gateway) bumpWin(name string) {
	g.statsMu.Lock()
	g.wins[name]++
	g.statsMu.Unlock()
}
