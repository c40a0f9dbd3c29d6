// Package cost estimates per-call spend and keeps the running ledger.
// Budget caps are observational: nothing here ever blocks a request.
package cost

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/switchyard-ai/switchyard"
)

// Estimate approximates the cost of one call from text lengths, assuming
// roughly four characters per token.
func Estimate(pricing switchyard.Pricing, input string, output string) float64 {
	inputTokens := math.Ceil(float64(len(input)) / 4)
	outputTokens := math.Ceil(float64(len(output)) / 4)
	return inputTokens/1e6*pricing.InputPer1M + outputTokens/1e6*pricing.OutputPer1M
}

// Snapshot is a copy of the ledger state at one point in time.
type Snapshot struct {
	Daily            float64   `json:"daily"`
	Monthly          float64   `json:"monthly"`
	DailyCap         float64   `json:"daily_cap"`
	MonthlyCap       float64   `json:"monthly_cap"`
	NextDailyReset   time.Time `json:"next_daily_reset"`
	NextMonthlyReset time.Time `json:"next_monthly_reset"`
}

// Ledger accumulates spend with periodic resets: daily at local midnight,
// monthly on the 1st at midnight. Resets are applied lazily by whichever
// call first observes a passed boundary.
type Ledger struct {
	daily   float64
	monthly float64

	dailyCap   float64
	monthlyCap float64

	nextDaily   time.Time
	nextMonthly time.Time

	mu    sync.Mutex
	clock clock.Clock
}

func NewLedger(dailyCap float64, monthlyCap float64) *Ledger {
	return newLedgerWithClock(dailyCap, monthlyCap, clock.New())
}

func newLedgerWithClock(dailyCap float64, monthlyCap float64, clk clock.Clock) *Ledger {
	now := clk.Now()
	return &Ledger{
		dailyCap:    dailyCap,
		monthlyCap:  monthlyCap,
		nextDaily:   nextDailyReset(now),
		nextMonthly: nextMonthlyReset(now),
		clock:       clk,
	}
}

// Add records spend against both accumulators.
func (l *Ledger) Add(amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeReset()
	l.daily += amount
	l.monthly += amount
}

// Snapshot returns the current ledger state, applying any due resets first.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeReset()
	return Snapshot{
		Daily:            l.daily,
		Monthly:          l.monthly,
		DailyCap:         l.dailyCap,
		MonthlyCap:       l.monthlyCap,
		NextDailyReset:   l.nextDaily,
		NextMonthlyReset: l.nextMonthly,
	}
}

// maybeReset zeroes accumulators whose boundary has passed. Caller holds mu.
func (l *Ledger) maybeReset() {
	now := l.clock.Now()
	if !now.Before(l.nextDaily) {
		l.daily = 0
		l.nextDaily = nextDailyReset(now)
	}
	if !now.Before(l.nextMonthly) {
		l.monthly = 0
		l.nextMonthly = nextMonthlyReset(now)
	}
}

func nextDailyReset(now time.Time) time.Time {
	year, month, day := now.Date()
	return time.Date(year, month, day+1, 0, 0, 0, 0, now.Location())
}

func nextMonthlyReset(now time.Time) time.Time {
	year, month, _ := now.Date()
	return time.Date(year, month+1, 1, 0, 0, 0, 0, now.Location())
}
