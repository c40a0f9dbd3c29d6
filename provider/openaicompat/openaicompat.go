// Package openaicompat implements the gateway's adapter contract against any
// backend speaking the OpenAI chat-completions wire protocol.
package openaicompat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/switchyard-ai/switchyard/provider"
)

const defaultTimeout = 2 * time.Minute

type Client struct {
	name    string
	baseUrl *url.URL
	apiKey  string
	model   string
	client  *http.Client
}

func NewClient(name string, baseUrl string, apiKey string, model string) (*Client, error) {
	parsed, err := url.Parse(baseUrl)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %v", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid endpoint: URL must have a scheme and host")
	}
	return &Client{
		name:    name,
		baseUrl: parsed,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: defaultTimeout},
	}, nil
}

func (c *Client) Name() string { return c.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *Client) Chat(ctx context.Context, message string, system string, params provider.ChatParams) (*provider.ChatResult, error) {
	messages := []chatMessage{}
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: message})

	request := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}

	var response chatResponse
	if err := c.post(ctx, "chat/completions", request, &response); err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response from %s", c.name)
	}

	result := &provider.ChatResult{
		Response: response.Choices[0].Message.Content,
		Model:    response.Model,
	}
	if response.Usage != nil {
		result.Usage = &provider.Usage{
			PromptTokens:     response.Usage.PromptTokens,
			CompletionTokens: response.Usage.CompletionTokens,
			TotalTokens:      response.Usage.TotalTokens,
		}
	}
	return result, nil
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) Embed(ctx context.Context, text string, params provider.EmbedParams) (*provider.EmbedResult, error) {
	model := params.Model
	if model == "" {
		model = c.model
	}

	var response embeddingResponse
	if err := c.post(ctx, "embeddings", embeddingRequest{Model: model, Input: text}, &response); err != nil {
		return nil, err
	}
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("no embedding in response from %s", c.name)
	}

	embedding := response.Data[0].Embedding
	return &provider.EmbedResult{Embedding: embedding, Dimensions: len(embedding)}, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %v", err)
	}

	endpointPath, err := url.JoinPath(c.baseUrl.String(), path)
	if err != nil {
		return fmt.Errorf("failed to build endpoint path: %v", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, "POST", endpointPath, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResponse, err := c.client.Do(httpRequest)
	if err != nil {
		return fmt.Errorf("request to %s failed: %v", c.name, err)
	}
	defer httpResponse.Body.Close()

	responseBody, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %v", c.name, err)
	}
	if httpResponse.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d: %s", c.name, httpResponse.StatusCode, truncate(string(responseBody), 200))
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %v", c.name, err)
	}
	return nil
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
