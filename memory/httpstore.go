package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
)

// HTTPStore talks to a remote vector-memory service over a small JSON
// protocol: POST /query with {text, top_k, filter} returning a result list,
// and POST /store with an entry.
type HTTPStore struct {
	baseUrl *url.URL
	token   string
	client  *http.Client
}

func NewHTTPStore(baseUrl string, token string) (*HTTPStore, error) {
	parsed, err := url.Parse(baseUrl)
	if err != nil {
		return nil, fmt.Errorf("invalid memory endpoint: %v", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid memory endpoint: URL must have a scheme and host")
	}
	return &HTTPStore{
		baseUrl: parsed,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type queryRequest struct {
	Text   string            `json:"text"`
	TopK   int               `json:"top_k"`
	Filter map[string]string `json:"filter,omitempty"`
}

type queryResponse struct {
	Results []Result `json:"results"`
}

func (s *HTTPStore) Query(ctx context.Context, text string, topK int, filter map[string]string) ([]Result, error) {
	var response queryResponse
	if err := s.post(ctx, "query", queryRequest{Text: text, TopK: topK, Filter: filter}, &response); err != nil {
		return nil, err
	}
	return response.Results, nil
}

func (s *HTTPStore) Store(ctx context.Context, entry Entry) error {
	return s.post(ctx, "store", entry, nil)
}

func (s *HTTPStore) post(ctx context.Context, path string, body any, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %v", err)
	}

	endpointPath, err := url.JoinPath(s.baseUrl.String(), path)
	if err != nil {
		return fmt.Errorf("failed to build endpoint path: %v", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, "POST", endpointPath, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+s.token)
	}

	httpResponse, err := s.client.Do(httpRequest)
	if err != nil {
		return err
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		return fmt.Errorf("memory store returned status %d", httpResponse.StatusCode)
	}
	if out == nil {
		return nil
	}

	responseBody, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(responseBody, out)
}
