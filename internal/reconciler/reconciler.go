// Package reconciler orchestrates a full reconciliation run: parse the
// expected-record and ledger files, allocate ledger entries to expected
// cells, and aggregate the outcome into a report.
package reconciler

import (
	"context"
	"time"

	"settlement-reconciliation-service/internal/engine"
	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/internal/parsers"
	"settlement-reconciliation-service/pkg/logger"

	"github.com/google/uuid"
)

// Config bundles the configuration of every stage of a run
type Config struct {
	Engine         *engine.Config
	LedgerParser   *parsers.LedgerParserConfig
	ExpectedParser *parsers.ExpectedParserConfig
}

// DefaultConfig returns a run configuration with all defaults
func DefaultConfig() *Config {
	return &Config{
		Engine:         engine.DefaultConfig(),
		LedgerParser:   parsers.DefaultLedgerParserConfig(),
		ExpectedParser: parsers.DefaultExpectedParserConfig(),
	}
}

// RunResult is the complete outcome of one reconciliation run
type RunResult struct {
	RunID         string              `json:"run_id"`
	StartedAt     time.Time           `json:"started_at"`
	CompletedAt   time.Time           `json:"completed_at"`
	Duration      time.Duration       `json:"duration"`
	Report        *engine.Report      `json:"report"`
	LedgerStats   *parsers.ParseStats `json:"-"`
	ExpectedStats *parsers.ParseStats `json:"-"`
}

// Service wires the parsers and the allocation engine together. One service
// can execute many runs; each run gets its own allocator and pool.
type Service struct {
	config         *Config
	ledgerParser   *parsers.LedgerParser
	expectedParser *parsers.ExpectedParser
	logger         logger.Logger
}

// NewService validates the configuration and builds a reconciliation service
func NewService(config *Config) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Engine == nil {
		config.Engine = engine.DefaultConfig()
	}
	if err := config.Engine.Validate(); err != nil {
		return nil, err
	}

	ledgerParser, err := parsers.NewLedgerParser(config.LedgerParser)
	if err != nil {
		return nil, err
	}
	expectedParser, err := parsers.NewExpectedParser(config.ExpectedParser)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:         config,
		ledgerParser:   ledgerParser,
		expectedParser: expectedParser,
		logger:         logger.WithComponent("reconciler"),
	}, nil
}

// Reconcile executes one run over the given input files
func (s *Service) Reconcile(ctx context.Context, expectedPath, ledgerPath string) (*RunResult, error) {
	runID := uuid.New().String()
	startedAt := time.Now()

	log := s.logger.WithField("run_id", runID)
	log.WithFields(logger.Fields{
		"expected_file": expectedPath,
		"ledger_file":   ledgerPath,
	}).Info("Starting reconciliation run")

	cells, expectedStats, err := s.expectedParser.ParseExpectedWithContext(ctx, expectedPath)
	if err != nil {
		log.WithError(err).Error("Failed to parse expected-record file")
		return nil, err
	}

	entries, ledgerStats, err := s.ledgerParser.ParseLedgerWithContext(ctx, ledgerPath)
	if err != nil {
		log.WithError(err).Error("Failed to parse ledger file")
		return nil, err
	}

	report, err := s.ReconcileData(ctx, cells, entries)
	if err != nil {
		return nil, err
	}

	completedAt := time.Now()
	result := &RunResult{
		RunID:         runID,
		StartedAt:     startedAt,
		CompletedAt:   completedAt,
		Duration:      completedAt.Sub(startedAt),
		Report:        report,
		LedgerStats:   ledgerStats,
		ExpectedStats: expectedStats,
	}

	log.WithFields(logger.Fields{
		"duration":       result.Duration.String(),
		"cells":          report.Summary.TotalCells,
		"matched_cells":  report.Summary.MatchedCells,
		"match_rate":     report.Summary.MatchRate,
		"entries_unused": report.Summary.EntriesUnmatched,
	}).Info("Reconciliation run completed")

	return result, nil
}

// ReconcileData runs allocation and aggregation over already-parsed inputs.
// Useful when the caller sources cells and entries from somewhere other than
// CSV files.
func (s *Service) ReconcileData(ctx context.Context, cells []*models.ExpectedCell, entries []*models.LedgerEntry) (*engine.Report, error) {
	alloc, err := engine.NewAllocator(s.config.Engine, cells, entries)
	if err != nil {
		s.logger.WithError(err).Error("Failed to construct allocator")
		return nil, err
	}

	states, err := alloc.Run(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Allocation run failed")
		return nil, err
	}

	return engine.Aggregate(states, alloc.Pool()), nil
}
