package engine

import (
	"context"
	"testing"
	"time"

	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := models.ParseDateWithFormats(s)
	require.NoError(t, err)
	return parsed
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testEntry(t *testing.T, id, date, description, amount string) *models.LedgerEntry {
	t.Helper()
	return models.NewLedgerEntry(id, day(t, date), description, amt(amount))
}

func testCell(t *testing.T, date string, category models.Category, expected string) *models.ExpectedCell {
	t.Helper()
	return models.NewExpectedCell(day(t, date), category, amt(expected))
}

func runAllocation(t *testing.T, cfg *Config, cells []*models.ExpectedCell, entries []*models.LedgerEntry) (*Allocator, []*MatchState) {
	t.Helper()
	alloc, err := NewAllocator(cfg, cells, entries)
	require.NoError(t, err)
	states, err := alloc.Run(context.Background())
	require.NoError(t, err)
	return alloc, states
}

func TestAllocatorAmexBonusExtendsWindow(t *testing.T) {
	// Amex gets one bonus forward day, so an entry four days out is still
	// admissible while the base window would end one day earlier.
	cells := []*models.ExpectedCell{
		testCell(t, "2025-01-01", models.CategoryAmex, "1000"),
	}
	entries := []*models.LedgerEntry{
		testEntry(t, "1", "2025-01-01", "AMEX SETTLEMENT", "800"),
		testEntry(t, "2", "2025-01-05", "AMEX SETTLEMENT", "200"),
	}

	_, states := runAllocation(t, DefaultConfig(), cells, entries)

	require.Len(t, states, 1)
	state := states[0]
	assert.Equal(t, StatusMatched, state.Status)
	assert.True(t, state.Matched.Equal(amt("1000")), "matched %s", state.Matched)
	assert.Equal(t, PassStandard, state.SourcePass)
	require.Len(t, state.Contributions, 2)
	assert.Equal(t, StrategySumByDescription, state.Contributions[0].Strategy)
}

func TestAllocatorCleanupRecoversLateEntry(t *testing.T) {
	// The second entry lands one day past the Amex window; the standard pass
	// leaves the cell partial and the widened cleanup pass completes it.
	cells := []*models.ExpectedCell{
		testCell(t, "2025-01-01", models.CategoryAmex, "1000"),
	}
	entries := []*models.LedgerEntry{
		testEntry(t, "1", "2025-01-01", "AMEX SETTLEMENT", "800"),
		testEntry(t, "2", "2025-01-06", "AMEX SETTLEMENT", "200"),
	}

	_, states := runAllocation(t, DefaultConfig(), cells, entries)

	state := states[0]
	assert.Equal(t, StatusMatched, state.Status)
	assert.Equal(t, PassCleanup, state.SourcePass)
	require.Len(t, state.Contributions, 2)
	assert.Equal(t, PassStandard, state.Contributions[0].Pass)
	assert.Equal(t, PassCleanup, state.Contributions[1].Pass)
	assert.Equal(t, "2", state.Contributions[1].EntryID)
}

func TestAllocatorCleanupDisabledLeavesPartial(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableCleanupPass = false

	cells := []*models.ExpectedCell{
		testCell(t, "2025-01-01", models.CategoryAmex, "1000"),
	}
	entries := []*models.LedgerEntry{
		testEntry(t, "1", "2025-01-01", "AMEX SETTLEMENT", "800"),
		testEntry(t, "2", "2025-01-06", "AMEX SETTLEMENT", "200"),
	}

	_, states := runAllocation(t, cfg, cells, entries)

	state := states[0]
	assert.Equal(t, StatusPartial, state.Status)
	assert.True(t, state.Matched.Equal(amt("800")))
	require.Len(t, state.Contributions, 1)
	assert.Equal(t, StrategyPartialCombination, state.Contributions[0].Strategy)
}

func TestAllocatorSplitsPoolAcrossCompetingCells(t *testing.T) {
	// Two cells of the same date and category must split four equal entries
	// two apiece instead of the first cell draining the pool.
	cells := []*models.ExpectedCell{
		testCell(t, "2025-03-10", models.CategoryVisa, "600"),
		testCell(t, "2025-03-10", models.CategoryVisa, "600"),
	}
	entries := []*models.LedgerEntry{
		testEntry(t, "1", "2025-03-10", "VISA DEPOSIT", "300"),
		testEntry(t, "2", "2025-03-10", "VISA DEPOSIT", "300"),
		testEntry(t, "3", "2025-03-11", "VISA DEPOSIT", "300"),
		testEntry(t, "4", "2025-03-11", "VISA DEPOSIT", "300"),
	}

	alloc, states := runAllocation(t, DefaultConfig(), cells, entries)

	require.Len(t, states, 2)
	consumed := make(map[string]bool)
	for _, state := range states {
		assert.Equal(t, StatusMatched, state.Status)
		assert.Len(t, state.Contributions, 2)
		for _, c := range state.Contributions {
			assert.False(t, consumed[c.EntryID], "entry %s consumed twice", c.EntryID)
			consumed[c.EntryID] = true
		}
	}
	assert.Len(t, consumed, 4)
	assert.Equal(t, 4, alloc.Pool().ConsumedCount())
}

func TestAllocatorNeverConsumesEntryTwice(t *testing.T) {
	// One entry, two cells that both want it. The first cell in processing
	// order wins; the second stays unmatched.
	cells := []*models.ExpectedCell{
		testCell(t, "2025-02-01", models.CategoryVisa, "500"),
		testCell(t, "2025-02-02", models.CategoryVisa, "500"),
	}
	entries := []*models.LedgerEntry{
		testEntry(t, "1", "2025-02-02", "VISA DEPOSIT", "500"),
	}

	alloc, states := runAllocation(t, DefaultConfig(), cells, entries)

	assert.Equal(t, StatusMatched, states[0].Status)
	assert.Equal(t, StatusUnmatched, states[1].Status)
	assert.Empty(t, states[1].Contributions)
	assert.Equal(t, 1, alloc.Pool().ConsumedCount())
}

func TestAllocatorForwardOnlyMatching(t *testing.T) {
	// An entry dated before the cell is never a candidate, even with the
	// exact expected amount.
	cells := []*models.ExpectedCell{
		testCell(t, "2025-02-10", models.CategoryVisa, "500"),
	}
	entries := []*models.LedgerEntry{
		testEntry(t, "1", "2025-02-09", "VISA DEPOSIT", "500"),
	}

	alloc, states := runAllocation(t, DefaultConfig(), cells, entries)

	state := states[0]
	assert.Equal(t, StatusUnmatched, state.Status)
	assert.NotEmpty(t, state.Reason)
	assert.Equal(t, 0, alloc.Pool().ConsumedCount())
}

func TestAllocatorEmptyWindowStillRecordsAttempts(t *testing.T) {
	// A cell with no in-window entries gets the same audit trail shape as
	// any other cell: every strategy recorded, plus the partial fallback.
	cfg := DefaultConfig()
	cfg.EnableFairAllocation = false
	cfg.EnableCleanupPass = false

	cells := []*models.ExpectedCell{
		testCell(t, "2025-04-10", models.CategoryVisa, "500"),
	}
	entries := []*models.LedgerEntry{
		testEntry(t, "1", "2025-04-09", "VISA DEPOSIT", "500"),
	}

	_, states := runAllocation(t, cfg, cells, entries)

	state := states[0]
	assert.Equal(t, StatusUnmatched, state.Status)
	assert.Contains(t, state.Reason, "no available")
	assert.Equal(t, []StrategyName{
		StrategyExactAmount,
		StrategySumByDescription,
		StrategyAmountRange,
		StrategyPartialCombination,
	}, state.FiltersTried)
}

func TestAllocatorCapRespectedInStandardPass(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTransactionsPerCell = 2
	cfg.EnableFairAllocation = false
	cfg.EnableCleanupPass = false

	cells := []*models.ExpectedCell{
		testCell(t, "2025-04-01", models.CategoryVisa, "1000"),
	}
	var entries []*models.LedgerEntry
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		entries = append(entries, testEntry(t, id, "2025-04-01", "VISA DEPOSIT", "100"))
	}

	_, states := runAllocation(t, cfg, cells, entries)

	state := states[0]
	assert.Equal(t, StatusPartial, state.Status)
	assert.Len(t, state.Contributions, 2)
	assert.True(t, state.Matched.Equal(amt("200")))
}

func TestAllocatorUnknownCategoryEntryStaysUnmatched(t *testing.T) {
	// An entry whose category has no cell is never touched and surfaces in
	// the aggregated report as an unmatched ledger entry.
	cells := []*models.ExpectedCell{
		testCell(t, "2025-05-01", models.CategoryVisa, "500"),
	}
	entries := []*models.LedgerEntry{
		testEntry(t, "1", "2025-05-01", "VISA DEPOSIT", "500"),
		testEntry(t, "2", "2025-05-01", "CHECK 4411", "250"),
	}

	alloc, states := runAllocation(t, DefaultConfig(), cells, entries)
	report := Aggregate(states, alloc.Pool())

	require.Len(t, report.UnmatchedEntries, 1)
	assert.Equal(t, "2", report.UnmatchedEntries[0].ID)
	for _, cell := range report.Cells {
		for _, c := range cell.Contributions {
			assert.NotEqual(t, "2", c.EntryID)
		}
	}
}

func TestAllocatorRecordsFiltersTried(t *testing.T) {
	cells := []*models.ExpectedCell{
		testCell(t, "2025-06-01", models.CategoryVisa, "999"),
	}
	entries := []*models.LedgerEntry{
		testEntry(t, "1", "2025-06-01", "VISA DEPOSIT", "400"),
	}

	_, states := runAllocation(t, DefaultConfig(), cells, entries)

	state := states[0]
	// The standard pass tries every strategy before the partial fallback.
	require.GreaterOrEqual(t, len(state.FiltersTried), 4)
	assert.Equal(t, StrategyExactAmount, state.FiltersTried[0])
	assert.Equal(t, StrategySumByDescription, state.FiltersTried[1])
	assert.Equal(t, StrategyAmountRange, state.FiltersTried[2])
	assert.Equal(t, StrategyPartialCombination, state.FiltersTried[3])
}

func TestAllocatorStatusNeverRegresses(t *testing.T) {
	state := newMatchState(testCell(t, "2025-01-01", models.CategoryVisa, "500"))
	tolerance := decimal.NewFromFloat(0.01)

	exact := &Resolution{
		Strategy: StrategyExactAmount,
		Entries:  []*models.LedgerEntry{testEntry(t, "1", "2025-01-01", "VISA DEPOSIT", "500")},
		Total:    amt("500"),
	}
	state.apply(exact, PassStandard, tolerance)
	assert.Equal(t, StatusMatched, state.Status)

	// A later applied amount pushing past the expected total must not drop
	// the status back to partial.
	extra := &Resolution{
		Strategy: StrategyAmountRange,
		Entries:  []*models.LedgerEntry{testEntry(t, "2", "2025-01-02", "VISA DEPOSIT", "50")},
		Total:    amt("50"),
	}
	state.apply(extra, PassCleanup, tolerance)
	assert.Equal(t, StatusMatched, state.Status)
}

func TestAllocatorFairPassCompletesPartialCell(t *testing.T) {
	// The standard pass leaves both cells partial: the first cell's fallback
	// search only sees the twelve earliest entries, so the late adjustment
	// entry is out of reach until the fair pass, where the exact strategy
	// picks it up against the reduced remainder.
	cfg := DefaultConfig()
	cfg.EnableCleanupPass = false

	cells := []*models.ExpectedCell{
		testCell(t, "2025-10-01", models.CategoryVisa, "1000"),
		testCell(t, "2025-10-01", models.CategoryVisa, "2000"),
	}

	var entries []*models.LedgerEntry
	for _, id := range []string{"01", "02", "03", "04", "05", "06", "07", "08", "09", "10", "11"} {
		entries = append(entries, testEntry(t, id, "2025-10-01", "VISA DEPOSIT", "350"))
	}
	entries = append(entries,
		testEntry(t, "12", "2025-10-01", "VISA SETTLEMENT", "900"),
		testEntry(t, "13", "2025-10-03", "VISA ADJUSTMENT", "100"))

	_, states := runAllocation(t, cfg, cells, entries)

	require.Len(t, states, 2)

	first := states[0]
	assert.Equal(t, StatusMatched, first.Status)
	assert.Equal(t, PassFair, first.SourcePass)
	require.Len(t, first.Contributions, 2)
	assert.Equal(t, PassStandard, first.Contributions[0].Pass)
	assert.Equal(t, "12", first.Contributions[0].EntryID)
	assert.Equal(t, PassFair, first.Contributions[1].Pass)
	assert.Equal(t, "13", first.Contributions[1].EntryID)
	assert.Equal(t, StrategyExactAmount, first.Contributions[1].Strategy)

	second := states[1]
	assert.Equal(t, StatusPartial, second.Status)
	assert.True(t, second.Matched.Equal(amt("1050")), "matched %s", second.Matched)
	assert.Equal(t, "transaction cap reached in earlier pass", second.Reason)
}

func TestAllocatorFairnessBudget(t *testing.T) {
	cells := []*models.ExpectedCell{
		testCell(t, "2025-07-01", models.CategoryVisa, "900"),
		testCell(t, "2025-07-01", models.CategoryVisa, "900"),
	}
	var entries []*models.LedgerEntry
	for _, id := range []string{"1", "2"} {
		entries = append(entries, testEntry(t, id, "2025-07-01", "VISA DEPOSIT", "450"))
	}

	alloc, err := NewAllocator(DefaultConfig(), cells, entries)
	require.NoError(t, err)

	// With two entries available and threshold 0.20, a fair-pass cell may
	// take at most one entry while the other cell is still pending.
	budget, fairnessLimited := alloc.entryBudget(alloc.states[0], PassFair)
	assert.Equal(t, 1, budget)
	assert.True(t, fairnessLimited)

	// Once nothing else is pending the reservation is lifted.
	alloc.states[1].Matched = amt("900")
	alloc.states[1].Status = StatusMatched
	budget, fairnessLimited = alloc.entryBudget(alloc.states[0], PassFair)
	assert.Equal(t, 3, budget)
	assert.False(t, fairnessLimited)
}

func TestAllocatorRunInterrupted(t *testing.T) {
	cells := []*models.ExpectedCell{
		testCell(t, "2025-08-01", models.CategoryVisa, "500"),
	}
	entries := []*models.LedgerEntry{
		testEntry(t, "1", "2025-08-01", "VISA DEPOSIT", "500"),
	}

	alloc, err := NewAllocator(DefaultConfig(), cells, entries)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = alloc.Run(ctx)
	require.Error(t, err)
	recErr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeRunInterrupted, recErr.Code)
}

func TestNewAllocatorRejectsBadInput(t *testing.T) {
	validCell := testCell(t, "2025-01-01", models.CategoryVisa, "100")
	validEntry := testEntry(t, "1", "2025-01-01", "VISA DEPOSIT", "100")

	t.Run("empty cells", func(t *testing.T) {
		_, err := NewAllocator(DefaultConfig(), nil, []*models.LedgerEntry{validEntry})
		require.Error(t, err)
		recErr, ok := errors.AsReconcilerError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CodeEmptyInput, recErr.Code)
	})

	t.Run("duplicate entry ids", func(t *testing.T) {
		dupe := testEntry(t, "1", "2025-01-02", "VISA DEPOSIT", "50")
		_, err := NewAllocator(DefaultConfig(), []*models.ExpectedCell{validCell},
			[]*models.LedgerEntry{validEntry, dupe})
		require.Error(t, err)
		recErr, ok := errors.AsReconcilerError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CodeDuplicateEntry, recErr.Code)
	})

	t.Run("config out of range", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxTransactionsPerCell = 0
		_, err := NewAllocator(cfg, []*models.ExpectedCell{validCell},
			[]*models.LedgerEntry{validEntry})
		require.Error(t, err)
		recErr, ok := errors.AsReconcilerError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CodeConfigOutOfRange, recErr.Code)
	})
}

func TestAllocatorDeterministicAcrossRuns(t *testing.T) {
	build := func() ([]*models.ExpectedCell, []*models.LedgerEntry) {
		cells := []*models.ExpectedCell{
			testCell(t, "2025-09-02", models.CategoryMastercard, "750"),
			testCell(t, "2025-09-01", models.CategoryVisa, "300"),
			testCell(t, "2025-09-01", models.CategoryMastercard, "400"),
		}
		entries := []*models.LedgerEntry{
			testEntry(t, "5", "2025-09-03", "MASTERCARD SETTLEMENT", "750"),
			testEntry(t, "3", "2025-09-01", "VISA DEPOSIT", "300"),
			testEntry(t, "8", "2025-09-02", "MASTERCARD SETTLEMENT", "400"),
		}
		return cells, entries
	}

	cells1, entries1 := build()
	_, states1 := runAllocation(t, DefaultConfig(), cells1, entries1)

	cells2, entries2 := build()
	_, states2 := runAllocation(t, DefaultConfig(), cells2, entries2)

	require.Equal(t, len(states1), len(states2))
	for i := range states1 {
		assert.Equal(t, states1[i].Cell.Key(), states2[i].Cell.Key())
		assert.Equal(t, states1[i].Status, states2[i].Status)
		assert.Equal(t, states1[i].Contributions, states2[i].Contributions)
	}
}
