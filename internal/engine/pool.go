package engine

import (
	"fmt"
	"sort"

	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/pkg/errors"
)

// AllocationPool is the run-scoped set of ledger entries shared by all cells
// during allocation. An entry consumed by one cell becomes invisible to all
// subsequently processed cells in the same and later passes, and never
// reverts within a run.
//
// The pool iterates entries in a fixed order (ascending date, then entry id)
// so that allocation results are reproducible across runs.
type AllocationPool struct {
	entries  []*models.LedgerEntry
	byID     map[string]*models.LedgerEntry
	consumed map[string]bool
}

// NewAllocationPool builds a pool from the ingested ledger entries. Entry
// ids must be unique within a run.
func NewAllocationPool(entries []*models.LedgerEntry) (*AllocationPool, error) {
	pool := &AllocationPool{
		entries:  make([]*models.LedgerEntry, len(entries)),
		byID:     make(map[string]*models.LedgerEntry, len(entries)),
		consumed: make(map[string]bool),
	}

	copy(pool.entries, entries)
	sort.SliceStable(pool.entries, func(i, j int) bool {
		if !pool.entries[i].Date.Equal(pool.entries[j].Date) {
			return pool.entries[i].Date.Before(pool.entries[j].Date)
		}
		return pool.entries[i].ID < pool.entries[j].ID
	})

	for _, entry := range pool.entries {
		if _, exists := pool.byID[entry.ID]; exists {
			return nil, errors.AllocationError(
				errors.CodeDuplicateEntry,
				"pool construction",
				fmt.Errorf("entry id %q appears more than once", entry.ID),
			)
		}
		pool.byID[entry.ID] = entry
	}

	return pool, nil
}

// Size returns the total number of entries in the pool
func (p *AllocationPool) Size() int {
	return len(p.entries)
}

// ConsumedCount returns how many entries have been consumed so far
func (p *AllocationPool) ConsumedCount() int {
	return len(p.consumed)
}

// Entry returns the entry with the given id, or nil if the pool has never
// seen it
func (p *AllocationPool) Entry(id string) *models.LedgerEntry {
	return p.byID[id]
}

// IsConsumed reports whether the entry with the given id has been consumed
func (p *AllocationPool) IsConsumed(id string) bool {
	return p.consumed[id]
}

// Consume marks an entry as consumed. Consuming an entry twice, or an entry
// the pool has never seen, is an invariant violation.
func (p *AllocationPool) Consume(id string) error {
	if _, exists := p.byID[id]; !exists {
		return errors.AllocationError(
			errors.CodeProcessingError,
			"entry consumption",
			fmt.Errorf("entry id %q is not in the pool", id),
		)
	}

	if p.consumed[id] {
		return errors.AllocationError(
			errors.CodeDuplicateEntry,
			"entry consumption",
			fmt.Errorf("entry id %q consumed twice", id),
		)
	}

	p.consumed[id] = true
	return nil
}

// Available returns all unconsumed entries in deterministic order
func (p *AllocationPool) Available() []*models.LedgerEntry {
	var available []*models.LedgerEntry
	for _, entry := range p.entries {
		if !p.consumed[entry.ID] {
			available = append(available, entry)
		}
	}
	return available
}

// AvailableForCategory returns all unconsumed entries of one category in
// deterministic order. The fairness reservation is computed against this
// set, irrespective of any cell's window.
func (p *AllocationPool) AvailableForCategory(category models.Category) []*models.LedgerEntry {
	var available []*models.LedgerEntry
	for _, entry := range p.entries {
		if !p.consumed[entry.ID] && entry.Category == category {
			available = append(available, entry)
		}
	}
	return available
}

// CandidatesIn returns the unconsumed entries of the given category whose
// dates fall inside the window, in deterministic order. This is the raw
// candidate set handed to the filter strategies.
func (p *AllocationPool) CandidatesIn(category models.Category, window Window) []*models.LedgerEntry {
	var candidates []*models.LedgerEntry
	for _, entry := range p.entries {
		if p.consumed[entry.ID] {
			continue
		}
		if entry.Category != category {
			continue
		}
		if !window.Contains(entry.Date) {
			continue
		}
		candidates = append(candidates, entry)
	}
	return candidates
}

// Unmatched returns the entries never consumed by any cell, in
// deterministic order. The aggregator reports these as unmatched ledger
// entries.
func (p *AllocationPool) Unmatched() []*models.LedgerEntry {
	return p.Available()
}
