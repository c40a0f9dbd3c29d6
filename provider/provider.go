package provider

import (
	"context"
)

// Usage reports token consumption as counted by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatParams carries the per-call knobs forwarded to an adapter.
type ChatParams struct {
	Temperature *float64
	MaxTokens   *int
}

// ChatResult is what an adapter returns on success. Adapters must return an
// error on failure, never a result with an embedded failure flag.
type ChatResult struct {
	Response string
	Model    string
	Usage    *Usage
}

// EmbedParams carries the per-call knobs for an embedding call.
type EmbedParams struct {
	Model string
}

// EmbedResult is what an embedding-capable adapter returns on success.
type EmbedResult struct {
	Embedding  []float64
	Dimensions int
}

// Adapter is the vendor-specific backend the gateway dispatches to.
type Adapter interface {
	Chat(ctx context.Context, message string, system string, params ChatParams) (*ChatResult, error)
}

// Embedder is implemented by adapters that can also embed text.
type Embedder interface {
	Embed(ctx context.Context, text string, params EmbedParams) (*EmbedResult, error)
}
