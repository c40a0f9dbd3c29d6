package switchyard

import (
	"errors"
	"time"
)

// Errors visible to callers. Every failure surfaced by the gateway is one of
// these; provider-level errors are absorbed into health bookkeeping.
var (
	ErrNoProvidersAvailable = errors.New("no-providers-available")
	ErrAllProvidersFailed   = errors.New("all-providers-failed")
	ErrAllSubtasksFailed    = errors.New("all-subtasks-failed")
	ErrNoEmbeddingProvider  = errors.New("no-embedding-provider-available")
)

// Priority classifies a request for cache and routing decisions.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Capability names a class of work a provider can handle.
type Capability string

const (
	CapabilityChat   Capability = "chat"
	CapabilityEmbed  Capability = "embed"
	CapabilityCode   Capability = "code"
	CapabilityVision Capability = "vision"
)

// RateLimit bounds a provider within a rolling one-minute window.
type RateLimit struct {
	// Maximum requests per minute.
	RequestsPerMinute int `yaml:"rpm" json:"rpm"`

	// Maximum tokens per minute.
	TokensPerMinute int `yaml:"tpm" json:"tpm"`
}

// Pricing is the provider's cost per one million tokens in USD.
type Pricing struct {
	InputPer1M  float64 `yaml:"input_per_1m" json:"input_per_1m"`
	OutputPer1M float64 `yaml:"output_per_1m" json:"output_per_1m"`
}

// ProviderConfig is the static configuration of a registered provider.
// Immutable after registration.
type ProviderConfig struct {
	// Internal name, unique across the registry. E.g., "claude"
	Name string `yaml:"name" json:"name"`

	// Human-readable grouping label. Defaults to the provider name.
	ServiceGroup string `yaml:"service_group" json:"service_group"`

	// Lower value dispatches first; ties break on registration order.
	Priority int `yaml:"priority" json:"priority"`

	// Work the provider can handle. Defaults to {chat}.
	Capabilities []Capability `yaml:"capabilities" json:"capabilities"`

	Limits  RateLimit `yaml:"limits" json:"limits"`
	Pricing Pricing   `yaml:"pricing" json:"pricing"`

	// Nil means enabled.
	Enabled *bool `yaml:"enabled" json:"enabled,omitempty"`

	// Optional per-call deadline applied around adapter calls.
	// Zero leaves timeout discipline to the adapter.
	CallTimeout time.Duration `yaml:"call_timeout" json:"call_timeout,omitempty"`
}

const (
	DefaultPriority          = 50
	DefaultRequestsPerMinute = 60
	DefaultTokensPerMinute   = 100_000
	DefaultInputPer1M        = 1.0
	DefaultOutputPer1M       = 3.0
)

// Normalized returns a copy with defaults applied to unset fields.
func (c ProviderConfig) Normalized() ProviderConfig {
	if c.ServiceGroup == "" {
		c.ServiceGroup = c.Name
	}
	if c.Priority == 0 {
		c.Priority = DefaultPriority
	}
	if len(c.Capabilities) == 0 {
		c.Capabilities = []Capability{CapabilityChat}
	}
	if c.Limits.RequestsPerMinute == 0 {
		c.Limits.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if c.Limits.TokensPerMinute == 0 {
		c.Limits.TokensPerMinute = DefaultTokensPerMinute
	}
	if c.Pricing.InputPer1M == 0 {
		c.Pricing.InputPer1M = DefaultInputPer1M
	}
	if c.Pricing.OutputPer1M == 0 {
		c.Pricing.OutputPer1M = DefaultOutputPer1M
	}
	return c
}

// IsEnabled resolves the tri-state Enabled flag.
func (c ProviderConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// HasCapability reports whether the provider advertises the capability.
func (c ProviderConfig) HasCapability(capability Capability) bool {
	for _, have := range c.Capabilities {
		if have == capability {
			return true
		}
	}
	return false
}

// ChatOptions tunes a single chat request.
type ChatOptions struct {
	// System prompt sent alongside the message.
	System string `json:"system,omitempty"`

	// Empty means the gateway classifies the message itself.
	Priority Priority `json:"priority,omitempty"`

	// Nil means the default cache policy for the detected priority.
	Cache *bool `json:"cache,omitempty"`

	// Forces priority-order dispatch instead of racing.
	Sequential bool `json:"sequential,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// RaceInfo identifies the routing decision attached to a chat response.
type RaceInfo struct {
	ID       string   `json:"id"`
	Priority Priority `json:"priority"`
}

// ChatResult is the outcome of a successful chat request.
type ChatResult struct {
	Response string `json:"response"`
	Engine   string `json:"engine"`
	Model    string `json:"model,omitempty"`

	Cached   bool `json:"cached"`
	Semantic bool `json:"semantic,omitempty"`

	// Populated only on semantic cache hits.
	Similarity       float64 `json:"similarity,omitempty"`
	OriginalQuestion string  `json:"original_question,omitempty"`
	ProvenBy         string  `json:"proven_by,omitempty"`

	Latency time.Duration `json:"latency"`
	Race    RaceInfo      `json:"race"`
}

// EmbedOptions tunes an embedding request.
type EmbedOptions struct {
	Model string `json:"model,omitempty"`
}

// EmbedResult is the outcome of a successful embedding request.
type EmbedResult struct {
	Embedding  []float64 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
	Engine     string    `json:"engine"`
}

// MergeStrategy selects how decomposition results are combined.
type MergeStrategy string

const (
	MergeConcat     MergeStrategy = "concat"
	MergeBest       MergeStrategy = "best"
	MergeSynthesize MergeStrategy = "synthesize"
)

// DecomposeOptions tunes a task decomposition request.
type DecomposeOptions struct {
	System        string        `json:"system,omitempty"`
	MaxSubtasks   int           `json:"max_subtasks,omitempty"`
	MergeStrategy MergeStrategy `json:"merge_strategy,omitempty"`
	Temperature   *float64      `json:"temperature,omitempty"`
	MaxTokens     *int          `json:"max_tokens,omitempty"`
}

// SubtaskInfo describes one completed subtask in a decomposition result.
type SubtaskInfo struct {
	ID             int    `json:"id"`
	Task           string `json:"task"`
	Provider       string `json:"provider"`
	Engine         string `json:"engine"`
	LatencyMs      int64  `json:"latency_ms"`
	ResponseLength int    `json:"response_length"`
}

// Decomposition is the structured metadata of a decompose call.
type Decomposition struct {
	ID            string        `json:"id"`
	Subtasks      []SubtaskInfo `json:"subtasks"`
	Failed        int           `json:"failed"`
	TotalSubtasks int           `json:"total_subtasks"`
	MergeStrategy MergeStrategy `json:"merge_strategy"`
	ProvidersUsed []string      `json:"providers_used"`
}

// DecomposeResult is the outcome of a successful decompose request.
type DecomposeResult struct {
	Response      string        `json:"response"`
	Decomposition Decomposition `json:"decomposition"`
	Latency       time.Duration `json:"latency"`
}
