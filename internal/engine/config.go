// Package engine implements the matching and allocation core of the
// settlement reconciliation service.
//
// The engine decides, for every expected cell (a date x category unit of
// expected amount), which ledger entries satisfy it, under three
// constraints: no ledger entry is ever double-counted, no single cell may
// starve all other cells of candidates, and leftover entries get a second,
// widened chance to match.
//
// The run is a sequence of passes over a shared allocation pool:
//  1. Standard pass: capped consumption per cell in deterministic order
//  2. Fair-redistribution pass (optional): re-run over unresolved cells with
//     a dynamic same-category reservation
//  3. Cleanup pass (optional): uncapped, widened-window attempt restricted
//     to unresolved cells and unconsumed entries
//
// All passes are additive: a later pass never replaces an earlier match,
// and a cell's status only ever improves within a run.
//
// Example usage:
//
//	cfg := engine.DefaultConfig()
//	alloc, err := engine.NewAllocator(cfg, cells, entries)
//	states, err := alloc.Run(ctx)
//	report := engine.Aggregate(states, alloc.Pool())
package engine

import (
	"fmt"

	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// Pass identifies which allocation pass produced a match contribution.
type Pass string

const (
	// PassStandard is the first, capped allocation pass.
	PassStandard Pass = "standard"

	// PassFair is the optional fair-redistribution re-run over cells the
	// standard pass left unresolved.
	PassFair Pass = "fair"

	// PassCleanup is the final widened-window, uncapped recovery pass.
	PassCleanup Pass = "cleanup"
)

// Config holds the tunable parameters of the allocation engine. All values
// are optional with stated defaults; Validate rejects values outside their
// documented bounds before a run starts.
type Config struct {
	// BaseForwardDays is the number of days past a cell's date that ledger
	// entries remain admissible candidates in the standard pass.
	BaseForwardDays int `json:"base_forward_days"`

	// CategoryBonusDays grants individual categories additional forward
	// days. This is a data-driven table, not special-cased control flow:
	// new categories can be configured without code changes.
	CategoryBonusDays map[models.Category]int `json:"category_bonus_days"`

	// MaxTransactionsPerCell bounds how many entries one cell may consume
	// in the standard pass, regardless of how many candidates exist.
	MaxTransactionsPerCell int `json:"max_transactions_per_cell"`

	// EnableFairAllocation enables the fair-redistribution pass.
	EnableFairAllocation bool `json:"enable_fair_allocation"`

	// FairnessThreshold is the fraction of currently-available same-category
	// entries withheld from a cell while other pending cells of that
	// category still have unmet expected amounts.
	FairnessThreshold float64 `json:"fairness_threshold"`

	// EnableCleanupPass enables the final widened-window recovery pass.
	EnableCleanupPass bool `json:"enable_cleanup_pass"`

	// CleanupExtraDays widens each cell's window during the cleanup pass.
	CleanupExtraDays int `json:"cleanup_extra_days"`

	// AmountTolerance is the absolute tolerance for amount equality.
	AmountTolerance decimal.Decimal `json:"amount_tolerance"`

	// RangeTolerancePercent is the percentage band used by the amount-range
	// strategy (e.g. 3.0 means +-3%).
	RangeTolerancePercent float64 `json:"range_tolerance_percent"`
}

// DefaultConfig returns a configuration with the documented defaults
func DefaultConfig() *Config {
	return &Config{
		BaseForwardDays:        3,
		CategoryBonusDays:      map[models.Category]int{models.CategoryAmex: 1},
		MaxTransactionsPerCell: 3,
		EnableFairAllocation:   true,
		FairnessThreshold:      0.20,
		EnableCleanupPass:      true,
		CleanupExtraDays:       2,
		AmountTolerance:        decimal.NewFromFloat(0.01),
		RangeTolerancePercent:  3.0,
	}
}

// StrictConfig returns a configuration for strict reconciliation: exact
// windows, no recovery passes, single-entry consumption.
func StrictConfig() *Config {
	return &Config{
		BaseForwardDays:        1,
		CategoryBonusDays:      map[models.Category]int{},
		MaxTransactionsPerCell: 1,
		EnableFairAllocation:   false,
		FairnessThreshold:      0.20,
		EnableCleanupPass:      false,
		CleanupExtraDays:       1,
		AmountTolerance:        decimal.NewFromFloat(0.01),
		RangeTolerancePercent:  0.5,
	}
}

// RelaxedConfig returns a configuration for exploratory reconciliation with
// wide windows and generous caps.
func RelaxedConfig() *Config {
	return &Config{
		BaseForwardDays:        5,
		CategoryBonusDays:      map[models.Category]int{models.CategoryAmex: 1},
		MaxTransactionsPerCell: 6,
		EnableFairAllocation:   true,
		FairnessThreshold:      0.30,
		EnableCleanupPass:      true,
		CleanupExtraDays:       3,
		AmountTolerance:        decimal.NewFromFloat(0.05),
		RangeTolerancePercent:  5.0,
	}
}

// Validate checks every configured value against its documented bound and
// returns a ConfigurationRangeError for the first violation found.
func (c *Config) Validate() error {
	if c.BaseForwardDays < 0 {
		return errors.ConfigurationRangeError("base_forward_days", c.BaseForwardDays, ">= 0")
	}

	for category, bonus := range c.CategoryBonusDays {
		if bonus < 0 {
			return errors.ConfigurationRangeError(
				fmt.Sprintf("category_bonus_days[%s]", category), bonus, ">= 0")
		}
	}

	if c.MaxTransactionsPerCell < 1 || c.MaxTransactionsPerCell > 20 {
		return errors.ConfigurationRangeError("max_transactions_per_cell", c.MaxTransactionsPerCell, "1..20")
	}

	if c.FairnessThreshold < 0.10 || c.FairnessThreshold > 0.50 {
		return errors.ConfigurationRangeError("fairness_threshold", c.FairnessThreshold, "0.10..0.50")
	}

	if c.CleanupExtraDays < 1 || c.CleanupExtraDays > 3 {
		return errors.ConfigurationRangeError("cleanup_extra_days", c.CleanupExtraDays, "1..3")
	}

	if !c.AmountTolerance.IsPositive() {
		return errors.ConfigurationRangeError("amount_tolerance", c.AmountTolerance.String(), "> 0")
	}

	if c.RangeTolerancePercent < 0.0 || c.RangeTolerancePercent > 100.0 {
		return errors.ConfigurationRangeError("range_tolerance_percent", c.RangeTolerancePercent, "0.0..100.0")
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	bonus := make(map[models.Category]int, len(c.CategoryBonusDays))
	for category, days := range c.CategoryBonusDays {
		bonus[category] = days
	}

	clone := *c
	clone.CategoryBonusDays = bonus
	return &clone
}

// CategoryBonus returns the configured forward-day bonus for a category
func (c *Config) CategoryBonus(category models.Category) int {
	return c.CategoryBonusDays[category]
}

// String returns a human-readable description of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{ForwardDays: %d, MaxPerCell: %d, Fair: %t/%.2f, Cleanup: %t/+%dd, Tolerance: %s}",
		c.BaseForwardDays, c.MaxTransactionsPerCell, c.EnableFairAllocation,
		c.FairnessThreshold, c.EnableCleanupPass, c.CleanupExtraDays, c.AmountTolerance.String())
}
