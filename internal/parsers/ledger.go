package parsers

import (
	"context"
	"fmt"
	"io"

	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// LedgerParser reads bank ledger exports into LedgerEntry values. Debit and
// credit columns are folded into one signed amount during parsing; rows that
// carry no amount (balance lines, section separators) are skipped.
type LedgerParser struct {
	base   *baseParser
	config *LedgerParserConfig
	logger logger.Logger
}

// NewLedgerParser creates a ledger parser with the given configuration
func NewLedgerParser(config *LedgerParserConfig) (*LedgerParser, error) {
	if config == nil {
		config = DefaultLedgerParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "ledger_parser_config", config, err)
	}

	parseConfig := DefaultParseConfig()
	parseConfig.Delimiter = config.Delimiter

	return &LedgerParser{
		base:   newBaseParser(parseConfig, "ledger_parser"),
		config: config,
		logger: logger.WithComponent("ledger_parser"),
	}, nil
}

// ParseLedger parses a ledger CSV file
func (lp *LedgerParser) ParseLedger(filePath string) ([]*models.LedgerEntry, *ParseStats, error) {
	return lp.ParseLedgerWithContext(context.Background(), filePath)
}

// ParseLedgerWithContext parses a ledger CSV file with cancellation support
func (lp *LedgerParser) ParseLedgerWithContext(ctx context.Context, filePath string) ([]*models.LedgerEntry, *ParseStats, error) {
	lp.logger.WithField("file_path", filePath).Info("Starting ledger parsing")

	file, reader, err := lp.base.openFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	required := map[string][]string{
		"date":        lp.config.DateAliases,
		"description": lp.config.DescriptionAliases,
		"credit":      lp.config.CreditAliases,
	}
	if err := lp.base.readHeaders(reader, filePath, required); err != nil {
		return nil, nil, err
	}

	idIdx := lp.base.resolveColumn(lp.config.IDAliases)
	dateIdx := lp.base.resolveColumn(lp.config.DateAliases)
	descIdx := lp.base.resolveColumn(lp.config.DescriptionAliases)
	creditIdx := lp.base.resolveColumn(lp.config.CreditAliases)
	debitIdx := lp.base.resolveColumn(lp.config.DebitAliases)

	stats := &ParseStats{}
	var entries []*models.LedgerEntry

	for {
		if err := ctx.Err(); err != nil {
			return entries, stats, errors.AllocationError(errors.CodeRunInterrupted, "ledger parsing", err)
		}

		record, err := lp.base.readRecord(reader, filePath)
		if err != nil {
			if err == io.EOF {
				break
			}
			return entries, stats, err
		}

		entry, skipped, err := lp.entryFromRecord(record, filePath, idIdx, dateIdx, descIdx, creditIdx, debitIdx)
		if err != nil {
			return entries, stats, err
		}
		if skipped {
			stats.RowsSkipped++
			continue
		}

		entries = append(entries, entry)
		stats.RecordsValid++
	}

	stats.TotalLines = lp.base.line

	lp.logger.WithFields(logger.Fields{
		"file_path":     filePath,
		"total_lines":   stats.TotalLines,
		"records_valid": stats.RecordsValid,
		"rows_skipped":  stats.RowsSkipped,
	}).Info("Ledger parsing completed")

	return entries, stats, nil
}

// entryFromRecord builds one LedgerEntry from a CSV row. Rows whose
// normalized amount is zero are reported as skipped, not as errors.
func (lp *LedgerParser) entryFromRecord(record []string, filePath string, idIdx, dateIdx, descIdx, creditIdx, debitIdx int) (*models.LedgerEntry, bool, error) {
	line := lp.base.line

	dateStr := lp.base.fieldAt(record, dateIdx)
	if dateStr == "" {
		return nil, false, errors.InputShapeError(errors.CodeMissingField, filePath, line,
			lp.base.headers[dateIdx], "", nil)
	}
	date, err := models.ParseDateWithFormats(dateStr)
	if err != nil {
		return nil, false, errors.InputShapeError(errors.CodeInvalidDate, filePath, line,
			lp.base.headers[dateIdx], dateStr, err)
	}

	description := lp.base.fieldAt(record, descIdx)

	credit, err := lp.parseOptionalAmount(record, creditIdx, filePath, line)
	if err != nil {
		return nil, false, err
	}
	debit, err := lp.parseOptionalAmount(record, debitIdx, filePath, line)
	if err != nil {
		return nil, false, err
	}

	amount := models.NormalizeLedgerAmount(credit, debit, description)
	if amount.IsZero() {
		lp.logger.WithFields(logger.Fields{
			"line":        line,
			"description": description,
		}).Debug("Skipping row with no amount")
		return nil, true, nil
	}

	id := lp.base.fieldAt(record, idIdx)
	if id == "" {
		id = fmt.Sprintf("row-%d", line)
	}

	return models.NewLedgerEntry(id, date, description, amount), false, nil
}

// parseOptionalAmount parses an amount column that may be absent or empty;
// both cases yield zero. A present but unparsable value is fatal.
func (lp *LedgerParser) parseOptionalAmount(record []string, index int, filePath string, line int) (decimal.Decimal, error) {
	if index == -1 {
		return decimal.Zero, nil
	}

	value := lp.base.fieldAt(record, index)
	if value == "" {
		return decimal.Zero, nil
	}

	amount, err := models.ParseDecimalFromString(value)
	if err != nil {
		return decimal.Zero, errors.InputShapeError(errors.CodeInvalidAmount, filePath, line,
			lp.base.headers[index], value, err)
	}
	return amount, nil
}
