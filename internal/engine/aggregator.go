package engine

import (
	"settlement-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// CellResult is the reportable outcome for one expected cell, including the
// full audit trail of contributions and attempted strategies.
type CellResult struct {
	Date          string          `json:"date"`
	Category      models.Category `json:"category"`
	Expected      decimal.Decimal `json:"expected"`
	Matched       decimal.Decimal `json:"matched"`
	Discrepancy   decimal.Decimal `json:"discrepancy"`
	Status        Status          `json:"status"`
	Contributions []Contribution  `json:"contributions,omitempty"`
	FiltersTried  []StrategyName  `json:"filters_tried,omitempty"`
	SourcePass    Pass            `json:"source_pass,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// UnmatchedEntry is a ledger entry no cell consumed during the run
type UnmatchedEntry struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Category    models.Category `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
}

// Summary rolls the per-cell outcomes up into run-level totals
type Summary struct {
	TotalCells     int `json:"total_cells"`
	MatchedCells   int `json:"matched_cells"`
	PartialCells   int `json:"partial_cells"`
	UnmatchedCells int `json:"unmatched_cells"`

	TotalExpected    decimal.Decimal `json:"total_expected"`
	TotalMatched     decimal.Decimal `json:"total_matched"`
	TotalDiscrepancy decimal.Decimal `json:"total_discrepancy"`
	MatchRate        float64         `json:"match_rate"`

	EntriesTotal     int `json:"entries_total"`
	EntriesConsumed  int `json:"entries_consumed"`
	EntriesUnmatched int `json:"entries_unmatched"`

	CellsByPass     map[Pass]int         `json:"cells_by_pass,omitempty"`
	CellsByStrategy map[StrategyName]int `json:"cells_by_strategy,omitempty"`
}

// Report is the complete aggregated outcome of one allocation run
type Report struct {
	Summary          Summary          `json:"summary"`
	Cells            []CellResult     `json:"cells"`
	UnmatchedEntries []UnmatchedEntry `json:"unmatched_entries,omitempty"`
}

// Aggregate folds the final per-cell states and the pool's leftover entries
// into a report. It is a pure read over the run's outcome: it mutates
// nothing, and calling it again on the same inputs yields an equal report.
func Aggregate(states []*MatchState, pool *AllocationPool) *Report {
	report := &Report{
		Summary: Summary{
			TotalCells:       len(states),
			TotalExpected:    decimal.Zero,
			TotalMatched:     decimal.Zero,
			TotalDiscrepancy: decimal.Zero,
			EntriesTotal:     pool.Size(),
			EntriesConsumed:  pool.ConsumedCount(),
			EntriesUnmatched: pool.Size() - pool.ConsumedCount(),
			CellsByPass:      make(map[Pass]int),
			CellsByStrategy:  make(map[StrategyName]int),
		},
		Cells: make([]CellResult, 0, len(states)),
	}

	for _, state := range states {
		// Matched minus expected: shortfalls are negative, overages positive.
		discrepancy := state.Matched.Sub(state.Cell.Expected)

		result := CellResult{
			Date:          state.Cell.Date.Format("2006-01-02"),
			Category:      state.Cell.Category,
			Expected:      state.Cell.Expected,
			Matched:       state.Matched,
			Discrepancy:   discrepancy,
			Status:        state.Status,
			Contributions: append([]Contribution(nil), state.Contributions...),
			FiltersTried:  append([]StrategyName(nil), state.FiltersTried...),
			SourcePass:    state.SourcePass,
			Reason:        state.Reason,
		}
		report.Cells = append(report.Cells, result)

		report.Summary.TotalExpected = report.Summary.TotalExpected.Add(state.Cell.Expected)
		report.Summary.TotalMatched = report.Summary.TotalMatched.Add(state.Matched)
		report.Summary.TotalDiscrepancy = report.Summary.TotalDiscrepancy.Add(discrepancy.Abs())

		switch state.Status {
		case StatusMatched:
			report.Summary.MatchedCells++
		case StatusPartial:
			report.Summary.PartialCells++
		default:
			report.Summary.UnmatchedCells++
		}

		if state.SourcePass != "" {
			report.Summary.CellsByPass[state.SourcePass]++
		}
		if len(state.Contributions) > 0 {
			report.Summary.CellsByStrategy[state.Contributions[0].Strategy]++
		}
	}

	if report.Summary.TotalCells > 0 {
		report.Summary.MatchRate = float64(report.Summary.MatchedCells) / float64(report.Summary.TotalCells)
	}

	for _, entry := range pool.Unmatched() {
		report.UnmatchedEntries = append(report.UnmatchedEntries, UnmatchedEntry{
			ID:          entry.ID,
			Date:        entry.Date.Format("2006-01-02"),
			Description: entry.Description,
			Category:    entry.Category,
			Amount:      entry.Amount,
		})
	}

	return report
}
