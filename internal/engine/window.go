package engine

import (
	"time"

	"settlement-reconciliation-service/internal/models"
)

// Window is the inclusive date range within which a ledger entry may be
// considered for a cell. Matching is forward-only: the window never starts
// before the cell's own date.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether a date falls inside the window
func (w Window) Contains(date time.Time) bool {
	return !date.Before(w.Start) && !date.After(w.End)
}

// Days returns the window length in forward days
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours() / 24)
}

// CellWindow computes the admissible date range for a cell.
//
// Start is the cell's own date: entries strictly before it are never
// candidates. End extends forward by the configured base days, plus the
// per-category bonus from the configuration table, plus passExtraDays
// (zero in the standard pass, the configured widening in cleanup).
func CellWindow(cell *models.ExpectedCell, cfg *Config, passExtraDays int) Window {
	forward := cfg.BaseForwardDays + cfg.CategoryBonus(cell.Category) + passExtraDays
	return Window{
		Start: cell.Date,
		End:   cell.Date.AddDate(0, 0, forward),
	}
}
