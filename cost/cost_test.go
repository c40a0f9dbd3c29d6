package cost

import (
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"

	"github.com/switchyard-ai/switchyard"
)

func TestEstimate(t *testing.T) {
	pricing := switchyard.Pricing{InputPer1M: 3.00, OutputPer1M: 15.00}

	t.Run("Four characters per token", func(t *testing.T) {
		// 400 chars -> 100 input tokens, 800 chars -> 200 output tokens.
		// 100/1e6*3 + 200/1e6*15 = 0.0033.
		input := strings.Repeat("a", 400)
		output := strings.Repeat("b", 800)
		assert.InDelta(t, 0.0033, Estimate(pricing, input, output), 1e-9)
	})

	t.Run("Partial tokens round up", func(t *testing.T) {
		// 1 char still counts as a full token on each side.
		assert.InDelta(t, (3.00+15.00)/1e6, Estimate(pricing, "a", "b"), 1e-12)
	})

	t.Run("Empty text costs nothing", func(t *testing.T) {
		assert.Zero(t, Estimate(pricing, "", ""))
	})
}

func TestLedger(t *testing.T) {
	t.Run("Accumulates into both periods", func(t *testing.T) {
		mockClock := clock.NewMock()
		ledger := newLedgerWithClock(10, 100, mockClock)

		ledger.Add(0.5)
		ledger.Add(0.25)

		snapshot := ledger.Snapshot()
		assert.InDelta(t, 0.75, snapshot.Daily, 1e-9)
		assert.InDelta(t, 0.75, snapshot.Monthly, 1e-9)
		assert.Equal(t, 10.0, snapshot.DailyCap)
		assert.Equal(t, 100.0, snapshot.MonthlyCap)
	})

	t.Run("Daily resets at midnight, monthly survives", func(t *testing.T) {
		mockClock := clock.NewMock()
		// Mock clock starts at the unix epoch, which is a month boundary;
		// move into the middle of a month first.
		mockClock.Add(15 * 24 * time.Hour)
		ledger := newLedgerWithClock(10, 100, mockClock)

		ledger.Add(2)
		mockClock.Add(24 * time.Hour)

		snapshot := ledger.Snapshot()
		assert.Zero(t, snapshot.Daily)
		assert.InDelta(t, 2.0, snapshot.Monthly, 1e-9)
	})

	t.Run("Monthly resets on the first", func(t *testing.T) {
		mockClock := clock.NewMock()
		mockClock.Add(15 * 24 * time.Hour)
		ledger := newLedgerWithClock(10, 100, mockClock)

		ledger.Add(2)
		mockClock.Add(31 * 24 * time.Hour)

		snapshot := ledger.Snapshot()
		assert.Zero(t, snapshot.Daily)
		assert.Zero(t, snapshot.Monthly)
	})

	t.Run("Add applies a due reset before accumulating", func(t *testing.T) {
		mockClock := clock.NewMock()
		mockClock.Add(15 * 24 * time.Hour)
		ledger := newLedgerWithClock(10, 100, mockClock)

		ledger.Add(2)
		mockClock.Add(24 * time.Hour)
		ledger.Add(1)

		snapshot := ledger.Snapshot()
		assert.InDelta(t, 1.0, snapshot.Daily, 1e-9)
		assert.InDelta(t, 3.0, snapshot.Monthly, 1e-9)
	})
}
