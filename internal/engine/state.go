package engine

import (
	"fmt"

	"settlement-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// Status is the resolution state of one expected cell. Within a run a cell's
// status only moves forward: UNMATCHED to PARTIAL to MATCHED, never back.
type Status string

const (
	StatusUnmatched Status = "UNMATCHED"
	StatusPartial   Status = "PARTIAL"
	StatusMatched   Status = "MATCHED"
)

// statusRank orders statuses for the monotonicity guarantee
func statusRank(s Status) int {
	switch s {
	case StatusMatched:
		return 2
	case StatusPartial:
		return 1
	default:
		return 0
	}
}

// Contribution records one ledger entry applied to a cell: which entry, how
// much it contributed, and which pass and strategy selected it. Together the
// contributions of a cell form its audit trail.
type Contribution struct {
	EntryID  string          `json:"entry_id"`
	Amount   decimal.Decimal `json:"amount"`
	Pass     Pass            `json:"pass"`
	Strategy StrategyName    `json:"strategy"`
}

// MatchState is the allocator's running account for one expected cell. It
// accumulates contributions across passes and tracks every strategy attempted
// so that a reviewer can reconstruct why a cell ended up where it did.
type MatchState struct {
	Cell          *models.ExpectedCell `json:"cell"`
	Status        Status               `json:"status"`
	Matched       decimal.Decimal      `json:"matched"`
	Contributions []Contribution       `json:"contributions"`
	FiltersTried  []StrategyName       `json:"filters_tried"`
	SourcePass    Pass                 `json:"source_pass,omitempty"`
	Reason        string               `json:"reason,omitempty"`
}

func newMatchState(cell *models.ExpectedCell) *MatchState {
	return &MatchState{
		Cell:    cell,
		Status:  StatusUnmatched,
		Matched: decimal.Zero,
	}
}

// Remaining returns the unmet portion of the cell's expected amount. A
// negative value means the cell was over-matched; the aggregator reports the
// overage as a discrepancy.
func (s *MatchState) Remaining() decimal.Decimal {
	return s.Cell.Expected.Sub(s.Matched)
}

// Resolved reports whether the cell needs no further allocation work under
// the given tolerance
func (s *MatchState) Resolved(tolerance decimal.Decimal) bool {
	return s.Remaining().LessThanOrEqual(tolerance)
}

// EntryCount returns how many ledger entries the cell has consumed so far
func (s *MatchState) EntryCount() int {
	return len(s.Contributions)
}

// recordAttempt appends a strategy to the audit trail of tried filters
func (s *MatchState) recordAttempt(name StrategyName) {
	s.FiltersTried = append(s.FiltersTried, name)
}

// apply adds a resolution's entries to the cell and re-derives the status.
// The status never regresses even if an applied amount is negative.
func (s *MatchState) apply(res *Resolution, pass Pass, tolerance decimal.Decimal) {
	for _, entry := range res.Entries {
		s.Contributions = append(s.Contributions, Contribution{
			EntryID:  entry.ID,
			Amount:   entry.Amount,
			Pass:     pass,
			Strategy: res.Strategy,
		})
		s.Matched = s.Matched.Add(entry.Amount)
	}

	s.SourcePass = pass
	s.Reason = ""

	next := StatusPartial
	if models.CompareAmountsWithTolerance(s.Matched, s.Cell.Expected, tolerance) {
		next = StatusMatched
	}
	if statusRank(next) > statusRank(s.Status) {
		s.Status = next
	}
}

// String returns a short human-readable description of the state
func (s *MatchState) String() string {
	return fmt.Sprintf("MatchState{Cell: %s, Status: %s, Matched: %s/%s, Entries: %d}",
		s.Cell.Key(), s.Status, s.Matched.String(), s.Cell.Expected.String(), len(s.Contributions))
}
