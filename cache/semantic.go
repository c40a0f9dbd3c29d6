package cache

import (
	"context"
	"math"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard/memory"
)

// DefaultSimilarityThreshold is the minimum score accepted as a semantic hit.
const DefaultSimilarityThreshold = 0.85

// Entries written by the gateway are tagged so that lookups only match
// answers that actually won a race.
const provenType = "gateway_proven"

const (
	maxContentChars  = 2000
	maxResponseChars = 3000
	maxQuestionChars = 500
	maxPreviewChars  = 200
)

// SemanticHit is a similarity match above the threshold.
type SemanticHit struct {
	Response         string
	Similarity       float64
	OriginalQuestion string
	ProvenBy         string
}

// Semantic is the similarity tier. All operations are best-effort: lookup
// errors read as misses and store errors are logged and dropped.
type Semantic struct {
	store     memory.Store
	threshold float64
	logger    *zap.SugaredLogger
}

func NewSemantic(store memory.Store, threshold float64, logger *zap.SugaredLogger) *Semantic {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Semantic{store: store, threshold: threshold, logger: logger}
}

// Lookup queries the vector store for a proven answer to a similar question.
func (s *Semantic) Lookup(ctx context.Context, message string) (*SemanticHit, error) {
	results, err := s.store.Query(ctx, message, 1, map[string]string{"type": provenType})
	if err != nil || len(results) == 0 {
		return nil, err
	}

	best := results[0]
	if best.Score < s.threshold {
		return nil, nil
	}
	response := best.Metadata["response"]
	if response == "" {
		return nil, nil
	}

	question := best.Metadata["original_question"]
	if question == "" {
		question = head(best.Content, maxPreviewChars)
	}
	provenBy := best.Metadata["engine"]
	if provenBy == "" {
		provenBy = "unknown"
	}

	return &SemanticHit{
		Response:         response,
		Similarity:       math.Round(best.Score*10000) / 10000,
		OriginalQuestion: question,
		ProvenBy:         provenBy,
	}, nil
}

// Store ingests a race-proven answer for future similarity lookups.
func (s *Semantic) Store(ctx context.Context, message string, response string, engine string, model string) {
	entry := memory.Entry{
		Content: head(message, maxContentChars),
		Metadata: map[string]string{
			"type":              provenType,
			"response":          head(response, maxResponseChars),
			"engine":            engine,
			"model":             model,
			"original_question": head(message, maxQuestionChars),
			"proven_at":         time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := s.store.Store(ctx, entry); err != nil {
		s.logger.Debugw("Semantic cache store failed", "error", err)
	}
}

// head cuts s to at most max bytes without splitting a rune.
func head(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
