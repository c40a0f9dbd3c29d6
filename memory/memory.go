// Package memory defines the contract of the external vector store backing
// the gateway's semantic cache. Both operations are best-effort: any failure
// is treated upstream as a cache miss or a dropped write, never surfaced.
package memory

import "context"

// Result is one nearest-neighbor match returned by a similarity query.
type Result struct {
	Score    float64           `json:"score"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// Entry is a text span plus metadata to be ingested into the store.
type Entry struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// Store is the similarity-search collaborator.
type Store interface {
	Query(ctx context.Context, text string, topK int, filter map[string]string) ([]Result, error)
	Store(ctx context.Context, entry Entry) error
}
