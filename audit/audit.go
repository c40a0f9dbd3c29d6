// Package audit records routing decisions in a bounded ring and derives
// tuning recommendations from them.
package audit

import (
	"sync"
	"time"
)

// Kind discriminates audit entries.
type Kind string

const (
	KindRace      Kind = "race"
	KindDecompose Kind = "decompose"
)

// MaxEntries bounds the ring; the oldest entries drop first.
const MaxEntries = 500

// CallResult is the settled outcome of one provider call inside a race.
// Latencies are in milliseconds.
type CallResult struct {
	Source         string `json:"source"`
	Engine         string `json:"engine,omitempty"`
	Status         string `json:"status"`
	LatencyMs      int64  `json:"latency_ms"`
	ResponseLength int    `json:"response_length,omitempty"`
	Model          string `json:"model,omitempty"`
	Error          string `json:"error,omitempty"`

	// Set on results that arrived after the winner.
	Late    bool  `json:"late,omitempty"`
	DeltaMs int64 `json:"delta_ms,omitempty"`
}

// Signal is a derived optimization hint attached to an entry or produced by
// the advisor.
type Signal struct {
	Type           string `json:"type"`
	Provider       string `json:"provider,omitempty"`
	LengthRatio    int    `json:"length_ratio,omitempty"`
	AvgMs          int64  `json:"avg_ms,omitempty"`
	Recommendation string `json:"recommendation"`
}

// Entry is one recorded race or decomposition.
type Entry struct {
	Kind      Kind      `json:"kind"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`

	// Race fields.
	Providers []string     `json:"providers,omitempty"`
	Winner    *CallResult  `json:"winner,omitempty"`
	Late      []CallResult `json:"late_responses,omitempty"`
	Errors    []CallResult `json:"errors,omitempty"`
	Results   []CallResult `json:"results,omitempty"`
	Signals   []Signal     `json:"signals,omitempty"`

	// Decomposition fields.
	Task          string   `json:"task,omitempty"`
	Subtasks      int      `json:"subtasks,omitempty"`
	Failed        int      `json:"failed,omitempty"`
	ProvidersUsed []string `json:"providers_used,omitempty"`

	TotalLatency time.Duration `json:"total_latency"`
}

// Log is the bounded audit ring. Appends come from background continuations
// of races that outlive their caller, so it must be safe for concurrent use.
type Log struct {
	entries []Entry
	max     int
	mu      sync.RWMutex
}

func NewLog() *Log {
	return &Log{max: MaxEntries}
}

// Append adds an entry, dropping the oldest once the ring is full.
func (l *Log) Append(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// Recent returns up to limit entries, newest last.
func (l *Log) Recent(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]Entry, limit)
	copy(out, l.entries[len(l.entries)-limit:])
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.entries)
}
