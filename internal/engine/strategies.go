package engine

import (
	"sort"

	"settlement-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// StrategyName identifies a filter strategy in the audit trail
type StrategyName string

const (
	StrategyExactAmount      StrategyName = "exact_amount"
	StrategySumByDescription StrategyName = "sum_by_description"
	StrategyAmountRange      StrategyName = "amount_range"

	// StrategyPartialCombination is the allocator's fallback when no strategy
	// fully resolves a cell: the best under-shooting combination is consumed
	// and the cell is left partially matched.
	StrategyPartialCombination StrategyName = "partial_combination"
)

// maxSumSubsetSize bounds the subset search of the sum-by-description
// strategy. Larger subsets are left to the partial-combination fallback.
const maxSumSubsetSize = 4

// Resolution is a strategy's proposed answer for one cell in one pass: the
// entries to consume, their total, and a score where lower ranks better.
// Scores are only comparable within a single strategy.
type Resolution struct {
	Strategy StrategyName
	Entries  []*models.LedgerEntry
	Total    decimal.Decimal
	Score    decimal.Decimal
}

// EntryIDs returns the ids of the resolved entries in consumption order
func (r *Resolution) EntryIDs() []string {
	ids := make([]string, 0, len(r.Entries))
	for _, entry := range r.Entries {
		ids = append(ids, entry.ID)
	}
	return ids
}

// Strategy is a pure scorer that decides whether a candidate set can satisfy
// the remaining expected amount of a cell. A nil result means inadmissible.
//
// Strategies are tried in a fixed priority order per cell; the first one
// that yields a resolution is used for that cell in that pass. maxEntries
// bounds the resolution size (0 means unbounded, as in the cleanup pass).
type Strategy interface {
	Name() StrategyName
	Resolve(remaining decimal.Decimal, candidates []*models.LedgerEntry, maxEntries int) *Resolution
}

// BuildStrategies returns the ordered strategy pipeline for the given
// configuration: exact amount, then sum-by-description, then amount-range.
func BuildStrategies(cfg *Config) []Strategy {
	return []Strategy{
		&exactAmountStrategy{tolerance: cfg.AmountTolerance},
		&sumByDescriptionStrategy{tolerance: cfg.AmountTolerance},
		&amountRangeStrategy{tolerancePercent: cfg.RangeTolerancePercent},
	}
}

// exactAmountStrategy matches a single entry whose amount equals the
// remaining expected amount within tolerance. Highest priority; score 0.
type exactAmountStrategy struct {
	tolerance decimal.Decimal
}

func (s *exactAmountStrategy) Name() StrategyName {
	return StrategyExactAmount
}

func (s *exactAmountStrategy) Resolve(remaining decimal.Decimal, candidates []*models.LedgerEntry, maxEntries int) *Resolution {
	// Candidates arrive in ascending date order; the first hit is the
	// earliest admissible entry.
	for _, entry := range candidates {
		if models.CompareAmountsWithTolerance(entry.Amount, remaining, s.tolerance) {
			return &Resolution{
				Strategy: StrategyExactAmount,
				Entries:  []*models.LedgerEntry{entry},
				Total:    entry.Amount,
				Score:    decimal.Zero,
			}
		}
	}

	return nil
}

// sumByDescriptionStrategy matches a subset of same-description entries
// whose amounts sum to the remaining expected amount within tolerance.
// Subset size is bounded; subsets are enumerated by ascending date. Score is
// the subset size, so tighter combinations rank better.
type sumByDescriptionStrategy struct {
	tolerance decimal.Decimal
}

func (s *sumByDescriptionStrategy) Name() StrategyName {
	return StrategySumByDescription
}

func (s *sumByDescriptionStrategy) Resolve(remaining decimal.Decimal, candidates []*models.LedgerEntry, maxEntries int) *Resolution {
	limit := maxSumSubsetSize
	if maxEntries > 0 && maxEntries < limit {
		limit = maxEntries
	}

	groups, descriptions := groupByDescription(candidates)

	// Whole description groups first: the common case is one processor
	// batching a day's settlements under a single description.
	for _, description := range descriptions {
		group := groups[description]
		if len(group) > limit {
			continue
		}
		if models.CompareAmountsWithTolerance(sumAmounts(group), remaining, s.tolerance) {
			return &Resolution{
				Strategy: StrategySumByDescription,
				Entries:  group,
				Total:    sumAmounts(group),
				Score:    decimal.NewFromInt(int64(len(group))),
			}
		}
	}

	// Then partial subsets within each description, smallest subsets first,
	// enumerated by ascending date.
	for size := 1; size <= limit; size++ {
		for _, description := range descriptions {
			group := groups[description]
			if size > len(group) {
				continue
			}

			var found []*models.LedgerEntry
			forEachCombination(len(group), size, func(indexes []int) bool {
				subset := make([]*models.LedgerEntry, 0, size)
				for _, i := range indexes {
					subset = append(subset, group[i])
				}
				if models.CompareAmountsWithTolerance(sumAmounts(subset), remaining, s.tolerance) {
					found = subset
					return false
				}
				return true
			})

			if found != nil {
				return &Resolution{
					Strategy: StrategySumByDescription,
					Entries:  found,
					Total:    sumAmounts(found),
					Score:    decimal.NewFromInt(int64(len(found))),
				}
			}
		}
	}

	return nil
}

// amountRangeStrategy matches a single entry whose amount falls within a
// configured percentage band of the remaining expected amount. Score is the
// absolute difference, so the closest entry wins.
type amountRangeStrategy struct {
	tolerancePercent float64
}

func (s *amountRangeStrategy) Name() StrategyName {
	return StrategyAmountRange
}

func (s *amountRangeStrategy) Resolve(remaining decimal.Decimal, candidates []*models.LedgerEntry, maxEntries int) *Resolution {
	if s.tolerancePercent <= 0 {
		return nil
	}

	band := remaining.Abs().Mul(decimal.NewFromFloat(s.tolerancePercent / 100.0))

	var best *models.LedgerEntry
	var bestDiff decimal.Decimal
	for _, entry := range candidates {
		diff := entry.Amount.Sub(remaining).Abs()
		if diff.GreaterThan(band) {
			continue
		}
		// Strict comparison keeps the earliest entry on ties.
		if best == nil || diff.LessThan(bestDiff) {
			best = entry
			bestDiff = diff
		}
	}

	if best == nil {
		return nil
	}

	return &Resolution{
		Strategy: StrategyAmountRange,
		Entries:  []*models.LedgerEntry{best},
		Total:    best.Amount,
		Score:    bestDiff,
	}
}

// groupByDescription splits candidates into per-description groups,
// preserving the ascending date order within each group. Description keys
// are returned sorted for deterministic iteration.
func groupByDescription(candidates []*models.LedgerEntry) (map[string][]*models.LedgerEntry, []string) {
	groups := make(map[string][]*models.LedgerEntry)
	for _, entry := range candidates {
		groups[entry.Description] = append(groups[entry.Description], entry)
	}

	descriptions := make([]string, 0, len(groups))
	for description := range groups {
		descriptions = append(descriptions, description)
	}
	sort.Strings(descriptions)

	return groups, descriptions
}

func sumAmounts(entries []*models.LedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range entries {
		total = total.Add(entry.Amount)
	}
	return total
}

// forEachCombination enumerates all k-combinations of {0..n-1} in
// lexicographic order, which corresponds to ascending date order for
// date-sorted candidate slices. The visitor returns false to stop early.
func forEachCombination(n, k int, visit func(indexes []int) bool) {
	if k <= 0 || k > n {
		return
	}

	indexes := make([]int, k)
	for i := range indexes {
		indexes[i] = i
	}

	for {
		if !visit(indexes) {
			return
		}

		// Advance to the next combination.
		i := k - 1
		for i >= 0 && indexes[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		indexes[i]++
		for j := i + 1; j < k; j++ {
			indexes[j] = indexes[j-1] + 1
		}
	}
}
