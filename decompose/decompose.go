// Package decompose splits a large task into subtasks, fans them out across
// every available provider in parallel, and merges the results.
package decompose

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard"
	"github.com/switchyard-ai/switchyard/audit"
	"github.com/switchyard-ai/switchyard/cost"
	"github.com/switchyard-ai/switchyard/monitoring"
	"github.com/switchyard-ai/switchyard/provider"
)

// MaxSubtasks caps fan-out width regardless of how many providers are
// available.
const MaxSubtasks = 9

const (
	decomposeTemperature  = 0.3
	subtaskTemperature    = 0.7
	synthesizeTemperature = 0.3

	decomposeMaxTokens  = 1024
	subtaskMaxTokens    = 2048
	synthesizeMaxTokens = 4096

	// Subtask response excerpt length fed into the synthesis prompt.
	excerptChars = 1500

	// Audit entries keep a short snippet of the original task.
	taskSnippetChars = 200
)

// RequestCounter receives one bump per decomposition so process-wide request
// totals include fan-out traffic. The gateway implements it.
type RequestCounter interface {
	CountRequest()
}

// Engine runs decomposition requests against the shared provider registry
// and settles cost and audit bookkeeping the same way the gateway does.
type Engine struct {
	registry *provider.Registry
	ledger   *cost.Ledger
	auditLog *audit.Log
	metrics  *monitoring.Metrics
	counter  RequestCounter
	logger   *zap.SugaredLogger
	clock    clock.Clock
}

func NewEngine(registry *provider.Registry, ledger *cost.Ledger, auditLog *audit.Log, metrics *monitoring.Metrics, counter RequestCounter, logger *zap.SugaredLogger) *Engine {
	return newEngineWithClock(registry, ledger, auditLog, metrics, counter, logger, clock.New())
}

func newEngineWithClock(registry *provider.Registry, ledger *cost.Ledger, auditLog *audit.Log, metrics *monitoring.Metrics, counter RequestCounter, logger *zap.SugaredLogger, clk clock.Clock) *Engine {
	return &Engine{
		registry: registry,
		ledger:   ledger,
		auditLog: auditLog,
		metrics:  metrics,
		counter:  counter,
		logger:   logger,
		clock:    clk,
	}
}

type subtask struct {
	ID    int    `json:"id"`
	Task  string `json:"task"`
	Skill string `json:"skill"`
}

type subtaskOutcome struct {
	subtask
	entry    *provider.Entry
	response string
	model    string
	latency  int64
	err      error
}

// chat runs one adapter call under the provider's configured timeout.
func (e *Engine) chat(ctx context.Context, entry *provider.Entry, message string, params provider.ChatParams) (*provider.ChatResult, error) {
	if timeout := entry.Config.CallTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return entry.Adapter.Chat(ctx, message, "", params)
}

// Decompose splits task into subtasks, runs them in parallel across the
// available providers round-robin, and merges the completed outputs with the
// requested strategy.
func (e *Engine) Decompose(ctx context.Context, task string, opts switchyard.DecomposeOptions) (*switchyard.DecomposeResult, error) {
	e.metrics.RecordRequest("decompose")
	if e.counter != nil {
		e.counter.CountRequest()
	}
	start := e.clock.Now()
	decompID := "decomp-" + uuid.NewString()

	available := e.registry.Available(ctx, switchyard.CapabilityChat)
	if len(available) == 0 {
		return nil, switchyard.ErrNoProvidersAvailable
	}

	maxSubtasks := opts.MaxSubtasks
	if maxSubtasks <= 0 {
		maxSubtasks = MaxSubtasks
	}
	if maxSubtasks > len(available) {
		maxSubtasks = len(available)
	}

	strategy := opts.MergeStrategy
	if strategy == "" {
		strategy = switchyard.MergeSynthesize
	}

	subtasks := e.plan(ctx, task, maxSubtasks, available[0])

	outcomes := e.fanOut(ctx, subtasks, available, opts)

	var completed []subtaskOutcome
	failedCount := 0
	for _, out := range outcomes {
		if out.err != nil {
			failedCount++
			continue
		}
		completed = append(completed, out)
	}
	if len(completed) == 0 {
		return nil, switchyard.ErrAllSubtasksFailed
	}

	merged := e.merge(ctx, task, strategy, completed, available)

	for _, out := range completed {
		e.ledger.Add(cost.Estimate(out.entry.Config.Pricing, out.Task, out.response))
	}
	e.metrics.SetDailySpend(e.ledger.Snapshot().Daily)

	providersUsed := usedProviders(completed)
	totalLatency := e.clock.Since(start)
	e.metrics.ObserveLatency("decompose", totalLatency.Seconds())

	e.auditLog.Append(audit.Entry{
		Kind:          audit.KindDecompose,
		ID:            decompID,
		Timestamp:     start,
		Task:          head(task, taskSnippetChars),
		Subtasks:      len(completed),
		Failed:        failedCount,
		ProvidersUsed: providersUsed,
		TotalLatency:  totalLatency,
	})

	info := make([]switchyard.SubtaskInfo, len(completed))
	for i, out := range completed {
		info[i] = switchyard.SubtaskInfo{
			ID:             out.ID,
			Task:           out.Task,
			Provider:       out.entry.Config.Name,
			Engine:         out.entry.Config.ServiceGroup,
			LatencyMs:      out.latency,
			ResponseLength: len(out.response),
		}
	}

	return &switchyard.DecomposeResult{
		Response: merged,
		Decomposition: switchyard.Decomposition{
			ID:            decompID,
			Subtasks:      info,
			Failed:        failedCount,
			TotalSubtasks: len(subtasks),
			MergeStrategy: strategy,
			ProvidersUsed: providersUsed,
		},
		Latency: totalLatency,
	}, nil
}

// plan asks the highest-priority provider to split the task, falling back to
// sentence splitting when the model call or parse fails.
func (e *Engine) plan(ctx context.Context, task string, maxSubtasks int, planner *provider.Entry) []subtask {
	prompt := strings.Join([]string{
		fmt.Sprintf("You are a task decomposition engine. Split this complex task into %d independent subtasks.", maxSubtasks),
		"Each subtask should be self-contained and parallelizable.",
		`Return ONLY a JSON array of objects: [{ "id": 1, "task": "subtask description", "skill": "reasoning|code|creative|analysis" }]`,
		"No explanation, just the JSON array.",
		"",
		"TASK: " + task,
	}, "\n")

	temperature := decomposeTemperature
	maxTokens := decomposeMaxTokens
	result, err := e.chat(ctx, planner, prompt, provider.ChatParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		e.logger.Warnw("decomposition call failed, splitting locally",
			"provider", planner.Config.Name, "error", err)
		return fallbackSplit(task, maxSubtasks)
	}
	return parseSubtasks(result.Response, maxSubtasks, task)
}

// fanOut assigns subtasks round-robin and runs them all in parallel. Every
// dispatch consumes rate and records health on the registry.
func (e *Engine) fanOut(ctx context.Context, subtasks []subtask, available []*provider.Entry, opts switchyard.DecomposeOptions) []subtaskOutcome {
	temperature := subtaskTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := subtaskMaxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}

	outcomes := make([]subtaskOutcome, len(subtasks))
	var wg sync.WaitGroup
	for i, st := range subtasks {
		entry := available[i%len(available)]
		e.registry.Consume(ctx, entry.Config.Name)

		wg.Add(1)
		go func(i int, st subtask, entry *provider.Entry) {
			defer wg.Done()

			message := st.Task
			if opts.System != "" {
				message = opts.System + "\n\n" + st.Task
			}

			callStart := e.clock.Now()
			result, err := e.chat(ctx, entry, message, provider.ChatParams{
				Temperature: &temperature,
				MaxTokens:   &maxTokens,
			})
			latency := e.clock.Since(callStart)

			out := subtaskOutcome{subtask: st, entry: entry, latency: latency.Milliseconds()}
			if err != nil {
				e.registry.RecordFailure(entry.Config.Name)
				e.metrics.RecordProviderError(entry.Config.Name)
				out.err = err
			} else {
				e.registry.RecordSuccess(entry.Config.Name, latency)
				out.response = result.Response
				out.model = result.Model
			}
			outcomes[i] = out
		}(i, st, entry)
	}
	wg.Wait()
	return outcomes
}

// merge combines completed subtask outputs. Synthesis degrades to concat
// when the merge call fails.
func (e *Engine) merge(ctx context.Context, task string, strategy switchyard.MergeStrategy, completed []subtaskOutcome, available []*provider.Entry) string {
	switch strategy {
	case switchyard.MergeConcat:
		return concat(completed)
	case switchyard.MergeBest:
		best := completed[0]
		for _, out := range completed[1:] {
			if len(out.response) > len(best.response) {
				best = out
			}
		}
		return best.response
	default:
		return e.synthesize(ctx, task, completed, available)
	}
}

func (e *Engine) synthesize(ctx context.Context, task string, completed []subtaskOutcome, available []*provider.Entry) string {
	lines := []string{
		fmt.Sprintf("You are merging outputs from %d parallel AI agents that each handled a subtask of a larger task.", len(completed)),
		"Synthesize them into ONE cohesive, high-quality response. Remove redundancy, keep the best parts.",
		"",
		"ORIGINAL TASK: " + task,
		"",
	}
	for _, out := range completed {
		lines = append(lines, fmt.Sprintf("--- SUBTASK: %s ---\n%s\n", out.Task, head(out.response, excerptChars)))
	}
	lines = append(lines, "", "SYNTHESIZED RESPONSE:")

	temperature := synthesizeTemperature
	maxTokens := synthesizeMaxTokens
	result, err := e.chat(ctx, available[0], strings.Join(lines, "\n"), provider.ChatParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		e.logger.Warnw("synthesis merge failed, concatenating",
			"provider", available[0].Config.Name, "error", err)
		return concat(completed)
	}
	return result.Response
}

func concat(completed []subtaskOutcome) string {
	parts := make([]string, len(completed))
	for i, out := range completed {
		parts[i] = fmt.Sprintf("## %s\n%s", out.Task, out.response)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func usedProviders(completed []subtaskOutcome) []string {
	seen := make(map[string]bool)
	var names []string
	for _, out := range completed {
		name := out.entry.Config.Name
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
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
