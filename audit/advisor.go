package audit

import (
	"fmt"

	"github.com/switchyard-ai/switchyard/cost"
)

const (
	// Races a provider must have been part of before a missing win counts.
	neverWinsMinRaces = 10

	// Average winning latency above which a provider is flagged, in ms.
	highLatencyMs = 10_000

	// Fraction of the daily cap that triggers a budget warning.
	budgetWarnRatio = 0.8
)

// Optimizations is the advisor's derived output.
type Optimizations struct {
	Signals    []Signal         `json:"signals"`
	WinRate    map[string]int   `json:"win_rate"`
	AvgLatency map[string]int64 `json:"avg_latency"`
}

// Advisor derives tuning recommendations from the audit ring on demand.
type Advisor struct {
	log *Log
}

func NewAdvisor(log *Log) *Advisor {
	return &Advisor{log: log}
}

// Optimizations scans the ring for providers that never win, providers whose
// winning latency is excessive, and budget pressure.
func (a *Advisor) Optimizations(providers []string, budget cost.Snapshot) Optimizations {
	entries := a.log.Recent(0)

	winRate := make(map[string]int)
	winLatencies := make(map[string][]int64)
	races := 0
	for _, entry := range entries {
		if entry.Kind != KindRace {
			continue
		}
		races++
		if entry.Winner == nil {
			continue
		}
		winRate[entry.Winner.Source]++
		winLatencies[entry.Winner.Source] = append(winLatencies[entry.Winner.Source], entry.Winner.LatencyMs)
	}

	signals := []Signal{}
	if races >= neverWinsMinRaces {
		for _, name := range providers {
			if winRate[name] == 0 {
				signals = append(signals, Signal{
					Type:     "never-wins",
					Provider: name,
					Recommendation: fmt.Sprintf(
						"%s has never won a race. Consider lowering its priority or disabling it to save budget.", name),
				})
			}
		}
	}

	avgLatency := make(map[string]int64)
	for name, latencies := range winLatencies {
		var sum int64
		for _, l := range latencies {
			sum += l
		}
		avg := sum / int64(len(latencies))
		avgLatency[name] = avg
		if avg > highLatencyMs {
			signals = append(signals, Signal{
				Type:     "high-latency",
				Provider: name,
				AvgMs:    avg,
				Recommendation: fmt.Sprintf(
					"%s averages %dms to win. Consider increasing timeout or lowering priority.", name, avg),
			})
		}
	}

	if budget.DailyCap > 0 && budget.Daily > budget.DailyCap*budgetWarnRatio {
		signals = append(signals, Signal{
			Type: "budget-warning",
			Recommendation: fmt.Sprintf(
				"%d%% of daily budget used. Switch to cheaper providers or reduce request volume.",
				int(budget.Daily/budget.DailyCap*100)),
		})
	}

	return Optimizations{Signals: signals, WinRate: winRate, AvgLatency: avgLatency}
}
