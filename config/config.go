// Package config loads the gateway configuration from a YAML file or URL,
// with environment variables taking precedence over file values.
package config

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/switchyard-ai/switchyard"
	"github.com/switchyard-ai/switchyard/utils/env"
)

// ProviderSettings configures one provider registration. ApiKeyEnv names the
// environment variable holding the key; keys never appear in config files.
type ProviderSettings struct {
	Name         string                  `yaml:"name"`
	ServiceGroup string                  `yaml:"service_group"`
	BaseUrl      string                  `yaml:"base_url"`
	ApiKeyEnv    string                  `yaml:"api_key_env"`
	Model        string                  `yaml:"model"`
	Priority     int                     `yaml:"priority"`
	Capabilities []switchyard.Capability `yaml:"capabilities"`
	Enabled      *bool                   `yaml:"enabled"`

	RequestsPerMinute int `yaml:"requests_per_minute"`
	TokensPerMinute   int `yaml:"tokens_per_minute"`

	InputPer1M  float64 `yaml:"input_per_1m"`
	OutputPer1M float64 `yaml:"output_per_1m"`

	// Per-call timeout, e.g. 20s. Empty means no per-provider timeout.
	CallTimeout string `yaml:"call_timeout"`
}

// ProviderConfig converts the settings into a registry registration.
func (s ProviderSettings) ProviderConfig() (switchyard.ProviderConfig, error) {
	config := switchyard.ProviderConfig{
		Name:         s.Name,
		ServiceGroup: s.ServiceGroup,
		Priority:     s.Priority,
		Capabilities: s.Capabilities,
		Enabled:      s.Enabled,
		Limits: switchyard.RateLimit{
			RequestsPerMinute: s.RequestsPerMinute,
			TokensPerMinute:   s.TokensPerMinute,
		},
		Pricing: switchyard.Pricing{
			InputPer1M:  s.InputPer1M,
			OutputPer1M: s.OutputPer1M,
		},
	}
	if s.CallTimeout != "" {
		timeout, err := time.ParseDuration(s.CallTimeout)
		if err != nil {
			return config, fmt.Errorf("provider %q: invalid call_timeout: %v", s.Name, err)
		}
		config.CallTimeout = timeout
	}
	return config, nil
}

// Config represents the full application configuration.
type Config struct {
	// Port to listen for incoming requests.
	Port int `yaml:"port"`

	// API key clients must present in the Authorization header with the
	// Bearer scheme. Empty disables auth. Env-only, never read from YAML.
	GatewayApiKey string `yaml:"-"`

	// Valkey endpoint for shared rate windows, e.g. localhost:6379.
	// Empty keeps rate windows in process memory.
	ValkeyEndpoint string `yaml:"valkey_endpoint"`

	// Exact-match cache sizing. Zero values use the defaults.
	CacheCapacity int    `yaml:"cache_capacity"`
	CacheTtl      string `yaml:"cache_ttl"`

	// Semantic cache. Empty MemoryUrl disables the tier.
	MemoryUrl         string  `yaml:"memory_url"`
	MemoryToken       string  `yaml:"-"`
	SemanticThreshold float64 `yaml:"semantic_threshold"`

	// Observational spend caps in USD.
	DailyBudget   float64 `yaml:"daily_budget"`
	MonthlyBudget float64 `yaml:"monthly_budget"`

	Providers []ProviderSettings `yaml:"providers"`
}

// LoadConfig loads the configuration from the specified path or URL.
func LoadConfig(path string, logger *zap.SugaredLogger) (*Config, error) {
	// Setting default values
	config := Config{
		Port:              8080,
		SemanticThreshold: 0.85,
		DailyBudget:       10,
		MonthlyBudget:     100,
	}

	// Checks if config is specified via environment variable.
	configSource := env.OptionalStringVariable("CONFIG_SOURCE", path)
	configToken := env.OptionalStringVariable("CONFIG_TOKEN", "")
	configData, err := func(configSource string, configToken string) ([]byte, error) {
		if strings.HasPrefix(configSource, "http://") || strings.HasPrefix(configSource, "https://") {
			logger.Infow("Fetching remote config", "url", configSource)
			return fetchRemoteConfig(configSource, configToken)
		}
		logger.Infow("Loading local config", "path", configSource)
		return os.ReadFile(configSource)
	}(configSource, configToken)

	if err != nil {
		return nil, fmt.Errorf("failed to get config data: %v", err)
	}

	if err := yaml.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}

	// Environment variables precede the values from the YAML file.
	config.Port = env.OptionalIntVariable("PORT", config.Port)
	config.GatewayApiKey = env.OptionalStringVariable("SWITCHYARD_API_KEY", config.GatewayApiKey)
	config.ValkeyEndpoint = env.OptionalStringVariable("VALKEY_ENDPOINT", config.ValkeyEndpoint)
	config.MemoryUrl = env.OptionalStringVariable("MEMORY_URL", config.MemoryUrl)
	config.MemoryToken = env.OptionalStringVariable("MEMORY_TOKEN", config.MemoryToken)
	config.SemanticThreshold = env.OptionalFloatVariable("SEMANTIC_THRESHOLD", config.SemanticThreshold)
	config.DailyBudget = env.OptionalFloatVariable("DAILY_BUDGET", config.DailyBudget)
	config.MonthlyBudget = env.OptionalFloatVariable("MONTHLY_BUDGET", config.MonthlyBudget)

	return &config, nil
}

// CacheTtlDuration parses the configured cache TTL; zero means the default.
func (c *Config) CacheTtlDuration() (time.Duration, error) {
	if c.CacheTtl == "" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(c.CacheTtl)
	if err != nil {
		return 0, fmt.Errorf("invalid cache_ttl: %v", err)
	}
	return ttl, nil
}

func fetchRemoteConfig(url string, token string) ([]byte, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch config: HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
