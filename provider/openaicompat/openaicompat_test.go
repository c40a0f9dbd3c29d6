package openaicompat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"

	"github.com/switchyard-ai/switchyard/provider"
	"github.com/switchyard-ai/switchyard/utils"
)

func TestNewClient(t *testing.T) {
	t.Run("Rejects malformed endpoints", func(t *testing.T) {
		_, err := NewClient("alpha", "not a url", "key", "model")
		assert.Error(t, err)

		_, err = NewClient("alpha", "/just/a/path", "key", "model")
		assert.Error(t, err)
	})

	t.Run("Accepts a proper URL", func(t *testing.T) {
		client, err := NewClient("alpha", "https://api.example.com/v1", "key", "model")
		assert.NoError(t, err)
		assert.Equal(t, "alpha", client.Name())
	})
}

func TestChat(t *testing.T) {
	t.Run("Round trip with system prompt and knobs", func(t *testing.T) {
		var received map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

			json.NewEncoder(w).Encode(map[string]any{
				"model": "alpha-1",
				"choices": []map[string]any{
					{"message": map[string]string{"role": "assistant", "content": "howdy"}},
				},
				"usage": map[string]int{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
			})
		}))
		defer server.Close()

		client, err := NewClient("alpha", server.URL+"/v1", "secret", "alpha-1")
		assert.NoError(t, err)

		result, err := client.Chat(context.Background(), "hi", "be brief", provider.ChatParams{
			Temperature: utils.ToPtr(0.3),
			MaxTokens:   utils.ToPtr(1024),
		})
		assert.NoError(t, err)
		assert.Equal(t, "howdy", result.Response)
		assert.Equal(t, "alpha-1", result.Model)
		assert.Equal(t, 5, result.Usage.TotalTokens)

		messages := received["messages"].([]any)
		assert.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])
		assert.Equal(t, "be brief", messages[0].(map[string]any)["content"])
		assert.Equal(t, "hi", messages[1].(map[string]any)["content"])
		assert.Equal(t, 0.3, received["temperature"])
	})

	t.Run("Non-200 is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer server.Close()

		client, err := NewClient("alpha", server.URL, "", "alpha-1")
		assert.NoError(t, err)

		_, err = client.Chat(context.Background(), "hi", "", provider.ChatParams{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("Empty choices is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"model": "alpha-1", "choices": []any{}})
		}))
		defer server.Close()

		client, err := NewClient("alpha", server.URL, "", "alpha-1")
		assert.NoError(t, err)

		_, err = client.Chat(context.Background(), "hi", "", provider.ChatParams{})
		assert.Error(t, err)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 200))

	out := truncate(strings.Repeat("界", 100), 200)
	assert.True(t, utf8.ValidString(out))
	assert.Len(t, out, 198)
}

func TestEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.1, 0.2}}},
		})
	}))
	defer server.Close()

	client, err := NewClient("alpha", server.URL, "", "alpha-embed")
	assert.NoError(t, err)

	result, err := client.Embed(context.Background(), "vectorize", provider.EmbedParams{})
	assert.NoError(t, err)
	assert.Equal(t, 2, result.Dimensions)
	assert.Equal(t, []float64{0.1, 0.2}, result.Embedding)
}
