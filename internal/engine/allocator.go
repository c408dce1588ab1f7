package engine

import (
	"context"
	"fmt"
	"sort"

	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// maxPartialCandidates bounds the combination search of the partial
// fallback. Candidates beyond this count (taken in ascending date order)
// are not considered; they remain available to later cells and passes.
const maxPartialCandidates = 12

// Allocator drives the multi-pass allocation of ledger entries to expected
// cells. One allocator instance performs exactly one run; construct a new
// one for each reconciliation.
type Allocator struct {
	cfg        *Config
	cells      []*models.ExpectedCell
	pool       *AllocationPool
	strategies []Strategy
	states     []*MatchState
	log        logger.Logger
}

// NewAllocator validates the configuration and inputs and prepares a run.
// Cells are processed in ascending date order, then ascending category name;
// this order is fixed so that identical inputs always produce identical
// allocations.
func NewAllocator(cfg *Config, cells []*models.ExpectedCell, entries []*models.LedgerEntry) (*Allocator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if len(cells) == 0 {
		return nil, errors.AllocationError(errors.CodeEmptyInput, "allocator construction", nil).
			WithContext("input", "expected cells")
	}

	for _, cell := range cells {
		if err := cell.Validate(); err != nil {
			return nil, errors.Wrap(err, errors.CategoryValidation, errors.CodeInvalidData,
				fmt.Sprintf("invalid expected cell %s", cell.Key()))
		}
	}
	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			return nil, errors.Wrap(err, errors.CategoryValidation, errors.CodeInvalidData,
				fmt.Sprintf("invalid ledger entry %s", entry.ID))
		}
	}

	ordered := make([]*models.ExpectedCell, len(cells))
	copy(ordered, cells)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Before(ordered[j])
	})

	pool, err := NewAllocationPool(entries)
	if err != nil {
		return nil, err
	}

	states := make([]*MatchState, 0, len(ordered))
	for _, cell := range ordered {
		states = append(states, newMatchState(cell))
	}

	return &Allocator{
		cfg:        cfg,
		cells:      ordered,
		pool:       pool,
		strategies: BuildStrategies(cfg),
		states:     states,
		log:        logger.WithComponent("allocator"),
	}, nil
}

// Pool returns the allocation pool of the run
func (a *Allocator) Pool() *AllocationPool {
	return a.pool
}

// States returns the per-cell match states in processing order
func (a *Allocator) States() []*MatchState {
	return a.states
}

// Run executes the configured passes in order and returns the final per-cell
// states. The context is checked between cells; a cancelled run returns a
// run-interrupted error and the partial states accumulated so far.
func (a *Allocator) Run(ctx context.Context) ([]*MatchState, error) {
	a.log.WithFields(logger.Fields{
		"cells":   len(a.cells),
		"entries": a.pool.Size(),
		"config":  a.cfg.String(),
	}).Info("Starting allocation run")

	if err := a.runPass(ctx, PassStandard); err != nil {
		return a.states, err
	}
	a.logPassOutcome(PassStandard)

	if a.cfg.EnableFairAllocation && a.unresolvedCount() > 0 {
		if err := a.runPass(ctx, PassFair); err != nil {
			return a.states, err
		}
		a.logPassOutcome(PassFair)
	}

	if a.cfg.EnableCleanupPass && a.unresolvedCount() > 0 {
		if err := a.runPass(ctx, PassCleanup); err != nil {
			return a.states, err
		}
		a.logPassOutcome(PassCleanup)
	}

	a.log.WithFields(logger.Fields{
		"matched":          a.countStatus(StatusMatched),
		"partial":          a.countStatus(StatusPartial),
		"unmatched":        a.countStatus(StatusUnmatched),
		"entries_consumed": a.pool.ConsumedCount(),
		"entries_leftover": a.pool.Size() - a.pool.ConsumedCount(),
	}).Info("Allocation run complete")

	return a.states, nil
}

// runPass walks all cells in deterministic order and attempts allocation for
// each cell the earlier passes left unresolved.
func (a *Allocator) runPass(ctx context.Context, pass Pass) error {
	for _, state := range a.states {
		if err := ctx.Err(); err != nil {
			return errors.AllocationError(errors.CodeRunInterrupted,
				fmt.Sprintf("%s pass", pass), err)
		}

		if state.Resolved(a.cfg.AmountTolerance) {
			continue
		}

		if err := a.allocateCell(state, pass); err != nil {
			return err
		}
	}
	return nil
}

// allocateCell attempts to resolve a single cell in a single pass: build the
// window, gather candidates, try each strategy in priority order, and fall
// back to the best partial combination. Every attempted strategy is recorded
// whether or not it produced a resolution.
func (a *Allocator) allocateCell(state *MatchState, pass Pass) error {
	remaining := state.Remaining()

	maxEntries, fairnessLimited := a.entryBudget(state, pass)
	if pass != PassCleanup && maxEntries <= 0 {
		if fairnessLimited {
			state.Reason = "withheld by fairness reservation for pending cells"
		} else {
			state.Reason = "transaction cap reached in earlier pass"
		}
		return nil
	}
	if pass == PassCleanup {
		maxEntries = 0
	}

	extraDays := 0
	if pass == PassCleanup {
		extraDays = a.cfg.CleanupExtraDays
	}
	window := CellWindow(state.Cell, a.cfg, extraDays)

	candidates := a.pool.CandidatesIn(state.Cell.Category, window)
	if len(candidates) == 0 {
		// Every strategy trivially rejects an empty candidate set; record the
		// attempts so audit trails have the same shape for every cell.
		for _, strategy := range a.strategies {
			state.recordAttempt(strategy.Name())
		}
		state.recordAttempt(StrategyPartialCombination)
		state.Reason = fmt.Sprintf("no available %s entries between %s and %s",
			state.Cell.Category, window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"))
		return nil
	}

	for _, strategy := range a.strategies {
		state.recordAttempt(strategy.Name())

		res := strategy.Resolve(remaining, candidates, maxEntries)
		if res == nil {
			continue
		}

		if err := a.consume(state, res, pass); err != nil {
			return err
		}

		a.log.WithFields(logger.Fields{
			"cell":     state.Cell.Key(),
			"pass":     pass,
			"strategy": res.Strategy,
			"entries":  len(res.Entries),
			"total":    res.Total.String(),
		}).Debug("Cell resolved")
		return nil
	}

	// No strategy fully satisfied the cell; take the best under-shooting
	// combination so later passes work against a smaller remainder.
	state.recordAttempt(StrategyPartialCombination)
	if res := a.bestPartialCombination(remaining, candidates, maxEntries); res != nil {
		if err := a.consume(state, res, pass); err != nil {
			return err
		}

		a.log.WithFields(logger.Fields{
			"cell":      state.Cell.Key(),
			"pass":      pass,
			"entries":   len(res.Entries),
			"total":     res.Total.String(),
			"remaining": state.Remaining().String(),
		}).Debug("Cell partially resolved")
		return nil
	}

	state.Reason = fmt.Sprintf("no admissible combination among %d candidate entries", len(candidates))
	return nil
}

// entryBudget returns how many more entries the cell may consume in a capped
// pass, after the per-cell cap and, in the fair pass, the same-category
// fairness reservation. The second return reports whether the reservation
// was what reduced the budget.
func (a *Allocator) entryBudget(state *MatchState, pass Pass) (int, bool) {
	budget := a.cfg.MaxTransactionsPerCell - state.EntryCount()
	fairnessLimited := false

	if pass == PassFair && a.othersPending(state) {
		available := len(a.pool.AvailableForCategory(state.Cell.Category))
		fairLimit := int(float64(available) * (1.0 - a.cfg.FairnessThreshold))
		if fairLimit < budget {
			budget = fairLimit
			fairnessLimited = true
		}
	}

	return budget, fairnessLimited
}

// othersPending reports whether any other cell of the same category still has
// an unmet expected amount. When none do, the fairness reservation is lifted
// and the cell may take whatever its cap allows.
func (a *Allocator) othersPending(current *MatchState) bool {
	for _, state := range a.states {
		if state == current {
			continue
		}
		if state.Cell.Category != current.Cell.Category {
			continue
		}
		if !state.Resolved(a.cfg.AmountTolerance) {
			return true
		}
	}
	return false
}

// consume marks the resolved entries consumed in the pool and applies the
// resolution to the cell state. A consumption failure is a structural error
// and aborts the run.
func (a *Allocator) consume(state *MatchState, res *Resolution, pass Pass) error {
	for _, entry := range res.Entries {
		if err := a.pool.Consume(entry.ID); err != nil {
			return err
		}
	}
	state.apply(res, pass, a.cfg.AmountTolerance)
	return nil
}

// bestPartialCombination searches bounded combinations of candidates for the
// one whose total comes closest to the remaining amount without exceeding it
// beyond tolerance. Enumeration order is ascending date, so ties keep the
// earliest-dated combination. Returns nil when no combination contributes a
// meaningful positive amount.
func (a *Allocator) bestPartialCombination(remaining decimal.Decimal, candidates []*models.LedgerEntry, maxEntries int) *Resolution {
	bounded := candidates
	if len(bounded) > maxPartialCandidates {
		bounded = bounded[:maxPartialCandidates]
	}

	maxSize := len(bounded)
	if maxEntries > 0 && maxEntries < maxSize {
		maxSize = maxEntries
	}

	ceiling := remaining.Add(a.cfg.AmountTolerance)

	var best []*models.LedgerEntry
	var bestSum decimal.Decimal
	for size := 1; size <= maxSize; size++ {
		forEachCombination(len(bounded), size, func(indexes []int) bool {
			sum := decimal.Zero
			for _, i := range indexes {
				sum = sum.Add(bounded[i].Amount)
			}
			if sum.GreaterThan(ceiling) || !sum.IsPositive() {
				return true
			}
			if best == nil || sum.GreaterThan(bestSum) {
				subset := make([]*models.LedgerEntry, 0, size)
				for _, i := range indexes {
					subset = append(subset, bounded[i])
				}
				best = subset
				bestSum = sum
			}
			return true
		})
	}

	if best == nil || !bestSum.GreaterThan(a.cfg.AmountTolerance) {
		return nil
	}

	return &Resolution{
		Strategy: StrategyPartialCombination,
		Entries:  best,
		Total:    bestSum,
		Score:    remaining.Sub(bestSum),
	}
}

func (a *Allocator) unresolvedCount() int {
	count := 0
	for _, state := range a.states {
		if !state.Resolved(a.cfg.AmountTolerance) {
			count++
		}
	}
	return count
}

func (a *Allocator) countStatus(status Status) int {
	count := 0
	for _, state := range a.states {
		if state.Status == status {
			count++
		}
	}
	return count
}

func (a *Allocator) logPassOutcome(pass Pass) {
	a.log.WithFields(logger.Fields{
		"pass":       pass,
		"matched":    a.countStatus(StatusMatched),
		"partial":    a.countStatus(StatusPartial),
		"unmatched":  a.countStatus(StatusUnmatched),
		"unresolved": a.unresolvedCount(),
	}).Info("Allocation pass finished")
}
