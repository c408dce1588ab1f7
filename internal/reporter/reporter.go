// Package reporter renders reconciliation run results for people and
// machines.
//
// Supported output formats:
//   - Console: human-readable summary and per-cell table for terminal display
//   - JSON: the full run result including the audit trail
//   - CSV: one row per expected cell for spreadsheet analysis
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"settlement-reconciliation-service/internal/engine"
	"settlement-reconciliation-service/internal/reconciler"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// IncludeAuditTrail adds per-cell filter attempts and contribution
	// details to console output. JSON output always carries them.
	IncludeAuditTrail bool `json:"include_audit_trail"`

	// IncludeUnmatchedEntries lists ledger entries no cell consumed.
	IncludeUnmatchedEntries bool `json:"include_unmatched_entries"`

	// CSVDelimiter sets the field separator for CSV output.
	CSVDelimiter rune `json:"csv_delimiter"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                  FormatConsole,
		IncludeAuditTrail:       false,
		IncludeUnmatchedEntries: true,
		CSVDelimiter:            ',',
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.CSVDelimiter == 0 {
		return fmt.Errorf("csv delimiter cannot be empty")
	}
	return nil
}

// ReportGenerator renders run results in the configured format
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a report generator with the given configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// Render writes the run result to w in the configured format
func (g *ReportGenerator) Render(w io.Writer, result *reconciler.RunResult) error {
	switch g.config.Format {
	case FormatJSON:
		return g.renderJSON(w, result)
	case FormatCSV:
		return g.renderCSV(w, result)
	default:
		return g.renderConsole(w, result)
	}
}

func (g *ReportGenerator) renderJSON(w io.Writer, result *reconciler.RunResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func (g *ReportGenerator) renderCSV(w io.Writer, result *reconciler.RunResult) error {
	writer := csv.NewWriter(w)
	writer.Comma = g.config.CSVDelimiter
	defer writer.Flush()

	header := []string{"date", "category", "expected", "matched", "discrepancy", "status", "source_pass", "entry_ids", "filters_tried", "reason"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, cell := range result.Report.Cells {
		var entryIDs []string
		for _, c := range cell.Contributions {
			entryIDs = append(entryIDs, c.EntryID)
		}
		var filters []string
		for _, f := range cell.FiltersTried {
			filters = append(filters, string(f))
		}

		row := []string{
			cell.Date,
			string(cell.Category),
			cell.Expected.String(),
			cell.Matched.String(),
			cell.Discrepancy.String(),
			string(cell.Status),
			string(cell.SourcePass),
			strings.Join(entryIDs, ";"),
			strings.Join(filters, ";"),
			cell.Reason,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	if g.config.IncludeUnmatchedEntries {
		for _, entry := range result.Report.UnmatchedEntries {
			row := []string{
				entry.Date,
				string(entry.Category),
				"",
				entry.Amount.String(),
				"",
				"UNMATCHED_ENTRY",
				"",
				entry.ID,
				"",
				entry.Description,
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func (g *ReportGenerator) renderConsole(w io.Writer, result *reconciler.RunResult) error {
	report := result.Report
	summary := report.Summary

	fmt.Fprintf(w, "Reconciliation Run %s\n", result.RunID)
	fmt.Fprintf(w, "Completed in %s\n\n", result.Duration.Round(time.Millisecond))

	fmt.Fprintln(w, "SUMMARY")
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "  Cells:             %d total, %d matched, %d partial, %d unmatched\n",
		summary.TotalCells, summary.MatchedCells, summary.PartialCells, summary.UnmatchedCells)
	fmt.Fprintf(w, "  Match rate:        %.1f%%\n", summary.MatchRate*100)
	fmt.Fprintf(w, "  Expected total:    %s\n", summary.TotalExpected.StringFixed(2))
	fmt.Fprintf(w, "  Matched total:     %s\n", summary.TotalMatched.StringFixed(2))
	fmt.Fprintf(w, "  Discrepancy total: %s\n", summary.TotalDiscrepancy.StringFixed(2))
	fmt.Fprintf(w, "  Ledger entries:    %d total, %d consumed, %d unmatched\n\n",
		summary.EntriesTotal, summary.EntriesConsumed, summary.EntriesUnmatched)

	fmt.Fprintln(w, "CELLS")
	fmt.Fprintln(w, strings.Repeat("-", 50))
	for _, cell := range report.Cells {
		fmt.Fprintf(w, "  %-10s  %-12s  %10s / %-10s  %s",
			cell.Date, cell.Category, cell.Matched.StringFixed(2), cell.Expected.StringFixed(2), cell.Status)
		if cell.SourcePass != "" && cell.SourcePass != engine.PassStandard {
			fmt.Fprintf(w, " (%s pass)", cell.SourcePass)
		}
		fmt.Fprintln(w)

		if cell.Reason != "" && cell.Status != engine.StatusMatched {
			fmt.Fprintf(w, "              reason: %s\n", cell.Reason)
		}

		if g.config.IncludeAuditTrail {
			if len(cell.FiltersTried) > 0 {
				var filters []string
				for _, f := range cell.FiltersTried {
					filters = append(filters, string(f))
				}
				fmt.Fprintf(w, "              filters tried: %s\n", strings.Join(filters, ", "))
			}
			for _, c := range cell.Contributions {
				fmt.Fprintf(w, "              entry %s: %s (%s, %s)\n",
					c.EntryID, c.Amount.StringFixed(2), c.Pass, c.Strategy)
			}
		}
	}

	if g.config.IncludeUnmatchedEntries && len(report.UnmatchedEntries) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "UNMATCHED LEDGER ENTRIES")
		fmt.Fprintln(w, strings.Repeat("-", 50))
		for _, entry := range report.UnmatchedEntries {
			fmt.Fprintf(w, "  %-8s  %-10s  %-12s  %10s  %s\n",
				entry.ID, entry.Date, entry.Category, entry.Amount.StringFixed(2), entry.Description)
		}
	}

	return nil
}
