// Package parsers reads the two CSV inputs of a reconciliation run: the
// ledger export from the bank and the expected-record sheet derived from
// settlement summaries or deposit slips.
//
// Real exports vary in header naming, delimiters, and date formats, so both
// parsers resolve columns through configurable alias lists. Parsing is
// strict: a row with a missing required field or an unparsable date or
// amount aborts the run with an input-shape error before any allocation
// happens. Rows that are merely irrelevant (fully empty, or carrying no
// amount at all) are skipped and counted.
package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"
)

// ParseConfig holds the CSV-level options shared by both parsers
type ParseConfig struct {
	HasHeader        bool
	Delimiter        rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
	}
}

// ParseStats summarizes one parsing operation
type ParseStats struct {
	TotalLines   int
	RecordsValid int
	RowsSkipped  int
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records valid, %d skipped",
		ps.TotalLines, ps.RecordsValid, ps.RowsSkipped)
}

// baseParser provides the CSV plumbing shared by the ledger and
// expected-record parsers: file opening, header resolution through alias
// lists, and row iteration.
type baseParser struct {
	config *ParseConfig
	logger logger.Logger

	headers   []string
	headerIdx map[string]int
	line      int
}

func newBaseParser(config *ParseConfig, component string) *baseParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	return &baseParser{
		config: config,
		logger: logger.WithComponent(component),
	}
}

// openFile opens the CSV file and returns a configured reader
func (bp *baseParser) openFile(filePath string) (*os.File, *csv.Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")

		if os.IsNotExist(err) {
			return nil, nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		}
		return nil, nil, errors.FileError(errors.CodeInvalidFormat, filePath, err)
	}

	reader := csv.NewReader(file)
	reader.Comma = bp.config.Delimiter
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1

	return file, reader, nil
}

// readHeaders reads the header row and resolves every required field through
// its alias list. Missing fields abort parsing.
func (bp *baseParser) readHeaders(reader *csv.Reader, filePath string, required map[string][]string) error {
	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.InputShapeError(errors.CodeMissingColumn, filePath, 0, "headers", "",
				fmt.Errorf("file is empty"))
		}
		return errors.InputShapeError(errors.CodeInvalidFormat, filePath, 1, "headers", "", err)
	}

	bp.line = 1
	bp.headers = make([]string, len(headers))
	bp.headerIdx = make(map[string]int, len(headers))
	for i, header := range headers {
		cleaned := strings.TrimSpace(header)
		bp.headers[i] = cleaned
		bp.headerIdx[strings.ToLower(cleaned)] = i
	}

	var missing []string
	for field, aliases := range required {
		if bp.resolveColumn(aliases) == -1 {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing":   missing,
			"available": bp.headers,
		}).Error("Required columns are missing")
		return errors.InputShapeError(errors.CodeMissingColumn, filePath, 1,
			strings.Join(missing, ", "), "", nil)
	}

	return nil
}

// resolveColumn returns the index of the first alias present in the header
// row, or -1 when none match
func (bp *baseParser) resolveColumn(aliases []string) int {
	for _, alias := range aliases {
		if idx, ok := bp.headerIdx[strings.ToLower(alias)]; ok {
			return idx
		}
	}
	return -1
}

// readRecord reads the next non-empty row, or io.EOF at end of file
func (bp *baseParser) readRecord(reader *csv.Reader, filePath string) ([]string, error) {
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, errors.InputShapeError(errors.CodeInvalidFormat, filePath,
				bp.line+1, "record", "", err)
		}

		bp.line++

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}
		return record, nil
	}
}

// fieldAt returns the trimmed value at the given column, or empty when the
// row is shorter than the header
func (bp *baseParser) fieldAt(record []string, index int) string {
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
