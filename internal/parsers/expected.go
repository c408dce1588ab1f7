package parsers

import (
	"context"
	"io"

	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"
)

// ExpectedParser reads the expected-record sheet: a wide-format CSV with one
// date column and one column per settlement category. Every non-empty,
// non-zero cell becomes one ExpectedCell.
type ExpectedParser struct {
	base   *baseParser
	config *ExpectedParserConfig
	logger logger.Logger
}

// NewExpectedParser creates an expected-record parser with the given
// configuration
func NewExpectedParser(config *ExpectedParserConfig) (*ExpectedParser, error) {
	if config == nil {
		config = DefaultExpectedParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "expected_parser_config", config, err)
	}

	parseConfig := DefaultParseConfig()
	parseConfig.Delimiter = config.Delimiter

	return &ExpectedParser{
		base:   newBaseParser(parseConfig, "expected_parser"),
		config: config,
		logger: logger.WithComponent("expected_parser"),
	}, nil
}

// ParseExpected parses an expected-record CSV file
func (ep *ExpectedParser) ParseExpected(filePath string) ([]*models.ExpectedCell, *ParseStats, error) {
	return ep.ParseExpectedWithContext(context.Background(), filePath)
}

// ParseExpectedWithContext parses an expected-record CSV file with
// cancellation support
func (ep *ExpectedParser) ParseExpectedWithContext(ctx context.Context, filePath string) ([]*models.ExpectedCell, *ParseStats, error) {
	ep.logger.WithField("file_path", filePath).Info("Starting expected-record parsing")

	file, reader, err := ep.base.openFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	required := map[string][]string{
		"date": ep.config.DateAliases,
	}
	if err := ep.base.readHeaders(reader, filePath, required); err != nil {
		return nil, nil, err
	}

	dateIdx := ep.base.resolveColumn(ep.config.DateAliases)

	// Every non-date header is a category column.
	type categoryColumn struct {
		index    int
		category models.Category
	}
	var columns []categoryColumn
	for i, header := range ep.base.headers {
		if i == dateIdx || header == "" {
			continue
		}
		category, err := models.ParseCategory(header)
		if err != nil {
			return nil, nil, errors.InputShapeError(errors.CodeInvalidData, filePath, 1, header, header, err)
		}
		columns = append(columns, categoryColumn{index: i, category: category})
	}

	if len(columns) == 0 {
		return nil, nil, errors.InputShapeError(errors.CodeMissingColumn, filePath, 1,
			"categories", "", nil).
			WithSuggestion("the sheet needs at least one category column besides the date")
	}

	stats := &ParseStats{}
	var cells []*models.ExpectedCell

	for {
		if err := ctx.Err(); err != nil {
			return cells, stats, errors.AllocationError(errors.CodeRunInterrupted, "expected-record parsing", err)
		}

		record, err := ep.base.readRecord(reader, filePath)
		if err != nil {
			if err == io.EOF {
				break
			}
			return cells, stats, err
		}
		line := ep.base.line

		dateStr := ep.base.fieldAt(record, dateIdx)
		if dateStr == "" {
			return cells, stats, errors.InputShapeError(errors.CodeMissingField, filePath, line,
				ep.base.headers[dateIdx], "", nil)
		}
		date, err := models.ParseDateWithFormats(dateStr)
		if err != nil {
			return cells, stats, errors.InputShapeError(errors.CodeInvalidDate, filePath, line,
				ep.base.headers[dateIdx], dateStr, err)
		}

		rowHadCell := false
		for _, column := range columns {
			value := ep.base.fieldAt(record, column.index)
			if value == "" {
				continue
			}

			expected, err := models.ParseDecimalFromString(value)
			if err != nil {
				return cells, stats, errors.InputShapeError(errors.CodeInvalidAmount, filePath, line,
					ep.base.headers[column.index], value, err)
			}
			if expected.IsZero() {
				continue
			}
			if expected.IsNegative() {
				return cells, stats, errors.InputShapeError(errors.CodeInvalidAmount, filePath, line,
					ep.base.headers[column.index], value, nil).
					WithSuggestion("expected amounts must be positive")
			}

			cells = append(cells, models.NewExpectedCell(date, column.category, expected))
			rowHadCell = true
		}

		if rowHadCell {
			stats.RecordsValid++
		} else {
			stats.RowsSkipped++
		}
	}

	stats.TotalLines = ep.base.line

	ep.logger.WithFields(logger.Fields{
		"file_path":     filePath,
		"total_lines":   stats.TotalLines,
		"cells":         len(cells),
		"records_valid": stats.RecordsValid,
		"rows_skipped":  stats.RowsSkipped,
	}).Info("Expected-record parsing completed")

	return cells, stats, nil
}
