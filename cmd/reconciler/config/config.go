// Package config maps CLI flag values onto the configurations of the
// parsing, allocation, and reporting stages.
package config

import (
	"fmt"

	"settlement-reconciliation-service/internal/engine"
	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/internal/reconciler"
	"settlement-reconciliation-service/internal/reporter"

	"github.com/shopspring/decimal"
)

// EngineOverrides carries the engine flags the user explicitly set. Nil
// fields keep the value of the selected profile.
type EngineOverrides struct {
	ForwardDays            *int
	MaxTransactionsPerCell *int
	FairAllocation         *bool
	FairnessThreshold      *float64
	CleanupPass            *bool
	CleanupExtraDays       *int
	AmountTolerance        *float64
	RangeTolerancePercent  *float64

	// BonusDays maps category names to extra forward days, e.g. {"Amex": 1}.
	BonusDays map[string]int
}

// CreateEngineConfig builds the engine configuration for a profile and
// applies the explicit CLI overrides on top of it
func CreateEngineConfig(profile string, overrides *EngineOverrides) (*engine.Config, error) {
	var cfg *engine.Config
	switch profile {
	case "", "default":
		cfg = engine.DefaultConfig()
	case "strict":
		cfg = engine.StrictConfig()
	case "relaxed":
		cfg = engine.RelaxedConfig()
	default:
		return nil, fmt.Errorf("unknown profile '%s'. Valid profiles: default, strict, relaxed", profile)
	}

	if overrides == nil {
		return cfg, nil
	}

	if overrides.ForwardDays != nil {
		cfg.BaseForwardDays = *overrides.ForwardDays
	}
	if overrides.MaxTransactionsPerCell != nil {
		cfg.MaxTransactionsPerCell = *overrides.MaxTransactionsPerCell
	}
	if overrides.FairAllocation != nil {
		cfg.EnableFairAllocation = *overrides.FairAllocation
	}
	if overrides.FairnessThreshold != nil {
		cfg.FairnessThreshold = *overrides.FairnessThreshold
	}
	if overrides.CleanupPass != nil {
		cfg.EnableCleanupPass = *overrides.CleanupPass
	}
	if overrides.CleanupExtraDays != nil {
		cfg.CleanupExtraDays = *overrides.CleanupExtraDays
	}
	if overrides.AmountTolerance != nil {
		cfg.AmountTolerance = decimal.NewFromFloat(*overrides.AmountTolerance)
	}
	if overrides.RangeTolerancePercent != nil {
		cfg.RangeTolerancePercent = *overrides.RangeTolerancePercent
	}
	if overrides.BonusDays != nil {
		cfg.CategoryBonusDays = make(map[models.Category]int, len(overrides.BonusDays))
		for name, days := range overrides.BonusDays {
			cfg.CategoryBonusDays[models.Category(name)] = days
		}
	}

	return cfg, nil
}

// CreateRunConfig builds the full run configuration: the engine config for
// the given profile plus default parser configurations
func CreateRunConfig(profile string, overrides *EngineOverrides) (*reconciler.Config, error) {
	engineCfg, err := CreateEngineConfig(profile, overrides)
	if err != nil {
		return nil, err
	}

	cfg := reconciler.DefaultConfig()
	cfg.Engine = engineCfg
	return cfg, nil
}

// CreateReportConfig builds a report configuration for the requested format
func CreateReportConfig(format string, includeAudit bool) (*reporter.ReportConfig, error) {
	cfg := reporter.DefaultReportConfig()
	cfg.IncludeAuditTrail = includeAudit

	switch format {
	case "console":
		cfg.Format = reporter.FormatConsole
	case "json":
		cfg.Format = reporter.FormatJSON
	case "csv":
		cfg.Format = reporter.FormatCSV
	default:
		return nil, fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", format)
	}

	return cfg, nil
}
