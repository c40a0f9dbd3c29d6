package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard/audit"
	"github.com/switchyard-ai/switchyard/cache"
	"github.com/switchyard-ai/switchyard/config"
	"github.com/switchyard-ai/switchyard/cost"
	"github.com/switchyard-ai/switchyard/decompose"
	"github.com/switchyard-ai/switchyard/gateway"
	"github.com/switchyard-ai/switchyard/memory"
	"github.com/switchyard-ai/switchyard/monitoring"
	"github.com/switchyard-ai/switchyard/provider"
	"github.com/switchyard-ai/switchyard/provider/openaicompat"
	"github.com/switchyard-ai/switchyard/server"
	"github.com/switchyard-ai/switchyard/state"
	"github.com/switchyard-ai/switchyard/utils"
	"github.com/switchyard-ai/switchyard/utils/env"
)

func setupStateManager(valkeyEndpoint string) (state.Manager, error) {
	if valkeyEndpoint == "" {
		return state.NewMemoryManager(), nil
	}

	valkeyClient, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{valkeyEndpoint},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %v", err)
	}
	return state.NewValkeyManager(valkeyClient), nil
}

func setupSemanticCache(cfg *config.Config, logger *zap.SugaredLogger) (*cache.Semantic, error) {
	if cfg.MemoryUrl == "" {
		return nil, nil
	}
	store, err := memory.NewHTTPStore(cfg.MemoryUrl, cfg.MemoryToken)
	if err != nil {
		return nil, err
	}
	return cache.NewSemantic(store, cfg.SemanticThreshold, logger), nil
}

func registerProviders(registry *provider.Registry, cfg *config.Config, logger *zap.SugaredLogger) error {
	for _, settings := range cfg.Providers {
		providerConfig, err := settings.ProviderConfig()
		if err != nil {
			return err
		}

		apiKey := ""
		if settings.ApiKeyEnv != "" {
			apiKey = env.OptionalStringVariable(settings.ApiKeyEnv, "")
			if apiKey == "" {
				logger.Warnw("Provider API key env is empty, registering anyway",
					"provider", settings.Name, "env", settings.ApiKeyEnv)
			}
		}

		adapter, err := openaicompat.NewClient(settings.Name, settings.BaseUrl, apiKey, settings.Model)
		if err != nil {
			return fmt.Errorf("provider %q: %v", settings.Name, err)
		}
		registry.Register(providerConfig, adapter)
	}
	return nil
}

func main() {
	logger := utils.Must(zap.NewProduction())
	defer logger.Sync()
	sugar := logger.Sugar()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.LoadConfig(*configPath, sugar)
	if err != nil {
		sugar.Fatalw("Failed to load config", "error", err)
	}

	stateManager, err := setupStateManager(cfg.ValkeyEndpoint)
	if err != nil {
		sugar.Fatalw("Failed to setup state manager", "error", err)
	}

	semantic, err := setupSemanticCache(cfg, sugar)
	if err != nil {
		sugar.Fatalw("Failed to setup semantic cache", "error", err)
	}

	cacheTtl, err := cfg.CacheTtlDuration()
	if err != nil {
		sugar.Fatalw("Failed to parse cache TTL", "error", err)
	}
	cacheCapacity := cfg.CacheCapacity
	if cacheCapacity <= 0 {
		cacheCapacity = cache.DefaultCapacity
	}
	if cacheTtl <= 0 {
		cacheTtl = cache.DefaultTTL
	}

	registry := provider.NewRegistry(stateManager, sugar)
	if err := registerProviders(registry, cfg, sugar); err != nil {
		sugar.Fatalw("Failed to register providers", "error", err)
	}

	metrics := monitoring.New()
	ledger := cost.NewLedger(cfg.DailyBudget, cfg.MonthlyBudget)
	auditLog := audit.NewLog()

	gw := gateway.New(registry, gateway.Config{
		Cache:    cache.New(cacheCapacity, cacheTtl),
		Semantic: semantic,
		Ledger:   ledger,
		Audit:    auditLog,
		Metrics:  metrics,
	}, sugar)
	decomposer := decompose.NewEngine(registry, ledger, auditLog, metrics, gw, sugar)

	httpHandler := server.New(gw, decomposer, cfg.GatewayApiKey, sugar)

	router := mux.NewRouter()
	httpHandler.RegisterRoutes(router)
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		Debug:          false,
	})

	address := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:    address,
		Handler: corsMiddleware.Handler(router),
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownSignal
		sugar.Infow("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			sugar.Fatalw("Server forced to shutdown", "error", err)
		}
	}()

	sugar.Infow("Starting server", "address", address, "providers", len(cfg.Providers))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		sugar.Fatalw("Failed to start server", "error", err)
	}

	sugar.Infow("Server exited gracefully")
}
