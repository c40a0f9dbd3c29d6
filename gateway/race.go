package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/switchyard-ai/switchyard"
	"github.com/switchyard-ai/switchyard/audit"
	"github.com/switchyard-ai/switchyard/provider"
)

// lateRicherRatio flags a losing response noticeably longer than the winner's.
const lateRicherRatio = 1.5

type callOutcome struct {
	entry   *provider.Entry
	result  *provider.ChatResult
	latency int64 // milliseconds
	err     error
}

// call runs a single provider call, applying the provider's own timeout and
// recording health on the registry.
func (g *Gateway) call(ctx context.Context, entry *provider.Entry, message string, opts switchyard.ChatOptions) callOutcome {
	if timeout := entry.Config.CallTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	params := provider.ChatParams{
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	start := g.clock.Now()
	result, err := entry.Adapter.Chat(ctx, message, opts.System, params)
	latency := g.clock.Since(start)

	name := entry.Config.Name
	if err != nil {
		g.registry.RecordFailure(name)
		g.metrics.RecordProviderError(name)
		g.bump(&g.failures)
		return callOutcome{entry: entry, latency: latency.Milliseconds(), err: err}
	}
	g.registry.RecordSuccess(name, latency)
	return callOutcome{entry: entry, result: result, latency: latency.Milliseconds()}
}

// race dispatches to every candidate at once and returns the first
// non-whitespace response. Losing calls keep running detached from the
// caller's context so the audit entry settles with every outcome; the entry
// is appended once all racers settle or the ceiling fires.
func (g *Gateway) race(ctx context.Context, candidates []*provider.Entry, message string, opts switchyard.ChatOptions, raceID string) (*callOutcome, error) {
	startedAt := g.clock.Now()
	deadline := startedAt.Add(g.raceCeiling)

	names := make([]string, len(candidates))
	outcomes := make(chan callOutcome, len(candidates))
	for i, entry := range candidates {
		names[i] = entry.Config.Name
		g.registry.Consume(ctx, entry.Config.Name)
		go func(entry *provider.Entry) {
			outcomes <- g.call(context.WithoutCancel(ctx), entry, message, opts)
		}(entry)
	}

	record := audit.Entry{
		Kind:      audit.KindRace,
		ID:        raceID,
		Timestamp: startedAt,
		Providers: names,
	}

	ceiling := g.clock.Timer(g.raceCeiling)
	defer ceiling.Stop()

	settled := 0
	for settled < len(candidates) {
		select {
		case out := <-outcomes:
			settled++
			if settleRaceOutcome(&record, out) {
				remaining := len(candidates) - settled
				if remaining > 0 {
					go g.finishRace(record, outcomes, remaining, startedAt, deadline)
				} else {
					record.TotalLatency = g.clock.Since(startedAt)
					g.auditLog.Append(record)
				}
				return &out, nil
			}
		case <-ceiling.C:
			record.TotalLatency = g.clock.Since(startedAt)
			g.auditLog.Append(record)
			g.logger.Warnw("race hit ceiling with no winner", "race", raceID, "providers", names)
			return nil, switchyard.ErrAllProvidersFailed
		}
	}

	record.TotalLatency = g.clock.Since(startedAt)
	g.auditLog.Append(record)
	return nil, switchyard.ErrAllProvidersFailed
}

// finishRace drains the remaining racers after a winner returned to the
// caller, then appends the settled audit entry.
func (g *Gateway) finishRace(record audit.Entry, outcomes <-chan callOutcome, remaining int, startedAt, deadline time.Time) {
	ceiling := g.clock.Timer(deadline.Sub(g.clock.Now()))
	defer ceiling.Stop()

	for remaining > 0 {
		select {
		case out := <-outcomes:
			remaining--
			settleRaceOutcome(&record, out)
		case <-ceiling.C:
			remaining = 0
		}
	}

	record.TotalLatency = g.clock.Since(startedAt)
	g.auditLog.Append(record)
}

// settleRaceOutcome folds one outcome into the audit entry and reports
// whether it became the winner. Successful but empty responses never win;
// they are recorded as late.
func settleRaceOutcome(record *audit.Entry, out callOutcome) bool {
	name := out.entry.Config.Name
	if out.err != nil {
		result := audit.CallResult{
			Source:    name,
			Status:    "error",
			LatencyMs: out.latency,
			Error:     out.err.Error(),
		}
		record.Errors = append(record.Errors, result)
		record.Results = append(record.Results, result)
		return false
	}

	result := audit.CallResult{
		Source:         name,
		Engine:         out.entry.Config.ServiceGroup,
		Status:         "ok",
		LatencyMs:      out.latency,
		ResponseLength: len(out.result.Response),
		Model:          out.result.Model,
	}

	if record.Winner == nil && strings.TrimSpace(out.result.Response) != "" {
		record.Winner = &result
		record.Results = append(record.Results, result)
		return true
	}

	result.Late = true
	if record.Winner != nil {
		result.DeltaMs = out.latency - record.Winner.LatencyMs
		if float64(result.ResponseLength) >= float64(record.Winner.ResponseLength)*lateRicherRatio {
			winnerLength := record.Winner.ResponseLength
			if winnerLength == 0 {
				winnerLength = 1
			}
			record.Signals = append(record.Signals, audit.Signal{
				Type:        "late-but-richer",
				Provider:    name,
				LengthRatio: result.ResponseLength * 100 / winnerLength,
				Recommendation: fmt.Sprintf("%s produced richer content (+%d chars). May be worth waiting.",
					name, result.ResponseLength-record.Winner.ResponseLength),
			})
		}
	}
	record.Late = append(record.Late, result)
	record.Results = append(record.Results, result)
	return false
}

// sequential tries candidates in registry order and stops at the first
// success. Unlike races, sequential dispatch leaves no audit entry.
func (g *Gateway) sequential(ctx context.Context, candidates []*provider.Entry, message string, opts switchyard.ChatOptions) (*callOutcome, error) {
	for _, entry := range candidates {
		g.registry.Consume(ctx, entry.Config.Name)
		out := g.call(ctx, entry, message, opts)
		if out.err == nil {
			return &out, nil
		}
		g.logger.Warnw("provider failed, trying next",
			"provider", entry.Config.Name, "error", out.err)
	}
	return nil, switchyard.ErrAllProvidersFailed
}
