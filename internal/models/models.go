// Package models defines the core data types shared across the settlement
// reconciliation service: ledger entries observed on a bank statement,
// expected cells derived from settlement summaries or deposit slips, and the
// category classification that ties the two together.
package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category identifies the settlement category a ledger entry or expected
// cell belongs to: a card type for settlement summaries, or a deposit type
// for deposit slips. Matching never crosses categories.
type Category string

const (
	CategoryVisa       Category = "Visa"
	CategoryMastercard Category = "Master Card"
	CategoryDebitVisa  Category = "Debit Visa"
	CategoryDebitMC    Category = "Debit Master"
	CategoryDiscover   Category = "Discover"
	CategoryAmex       Category = "Amex"
	CategoryOther      Category = "Other Cards"
	CategoryCash       Category = "Cash"
	CategoryCheck      Category = "Check"
	CategoryUnknown    Category = "Unknown"
)

// String returns the string representation of the category
func (c Category) String() string {
	return string(c)
}

// IsKnown reports whether the category was successfully classified
func (c Category) IsKnown() bool {
	return c != CategoryUnknown && c != ""
}

// categoryPattern pairs a category with the description patterns that
// identify it. Order matters: debit variants must be tested before the
// plain card patterns they would otherwise shadow.
type categoryPattern struct {
	category Category
	patterns []*regexp.Regexp
}

var categoryPatterns = []categoryPattern{
	{CategoryDebitMC, compilePatterns(`debit.*master`, `master.*debit`, `dbt.*mc`, `mc.*dbt`)},
	{CategoryDebitVisa, compilePatterns(`debit.*visa`, `visa.*debit`, `dbt.*visa`, `visa.*dbt`)},
	{CategoryMastercard, compilePatterns(`mastercard`, `master`, `\bmc\b`)},
	{CategoryVisa, compilePatterns(`visa`, `\bvs\b`)},
	{CategoryDiscover, compilePatterns(`discover`, `\bdisc\b`)},
	{CategoryAmex, compilePatterns(`amex`, `american\s*express`, `\bamx\b`)},
	{CategoryCheck, compilePatterns(`\bcheck\b`, `\bchq\b`)},
	{CategoryCash, compilePatterns(`\bcash\b`, `\bgc\b`)},
	{CategoryOther, compilePatterns(`other`, `misc`)},
}

func compilePatterns(exprs ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		compiled = append(compiled, regexp.MustCompile(expr))
	}
	return compiled
}

// IdentifyCategory classifies a ledger entry description into a settlement
// category using the ordered pattern table. Unrecognized descriptions map
// to CategoryUnknown and are excluded from matching.
func IdentifyCategory(description string) Category {
	lower := strings.ToLower(description)

	for _, cp := range categoryPatterns {
		for _, pattern := range cp.patterns {
			if pattern.MatchString(lower) {
				return cp.category
			}
		}
	}

	return CategoryUnknown
}

// ParseCategory parses a category from an expected-record column header
func ParseCategory(s string) (Category, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", fmt.Errorf("category cannot be empty")
	}

	known := []Category{
		CategoryVisa, CategoryMastercard, CategoryDebitVisa, CategoryDebitMC,
		CategoryDiscover, CategoryAmex, CategoryOther, CategoryCash, CategoryCheck,
	}
	for _, c := range known {
		if strings.EqualFold(trimmed, string(c)) {
			return c, nil
		}
	}

	// Unrecognized headers are carried through verbatim so additional
	// categories can be configured without code changes.
	return Category(trimmed), nil
}

// LedgerEntry represents one observed row of the bank statement after
// debit/credit normalization. Entries are immutable; consumption state is
// owned by the allocation pool, not the entry.
type LedgerEntry struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Category    Category        `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
}

// NewLedgerEntry creates a new LedgerEntry instance
func NewLedgerEntry(id string, date time.Time, description string, amount decimal.Decimal) *LedgerEntry {
	return &LedgerEntry{
		ID:          id,
		Date:        date,
		Description: description,
		Category:    IdentifyCategory(description),
		Amount:      amount,
	}
}

// Validate performs basic validation on the LedgerEntry
func (e *LedgerEntry) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("ledger entry id cannot be empty")
	}

	if e.Date.IsZero() {
		return fmt.Errorf("ledger entry date cannot be zero")
	}

	if e.Amount.IsZero() {
		return fmt.Errorf("ledger entry amount cannot be zero")
	}

	return nil
}

// String returns a string representation of the LedgerEntry
func (e *LedgerEntry) String() string {
	return fmt.Sprintf("LedgerEntry{ID: %s, Date: %s, Category: %s, Amount: %s}",
		e.ID, e.Date.Format("2006-01-02"), e.Category, e.Amount.String())
}

// MarshalJSON implements custom JSON marshaling for LedgerEntry
func (e *LedgerEntry) MarshalJSON() ([]byte, error) {
	type Alias LedgerEntry
	return json.Marshal(&struct {
		Amount string `json:"amount"`
		Date   string `json:"date"`
		*Alias
	}{
		Amount: e.Amount.String(),
		Date:   e.Date.Format("2006-01-02"),
		Alias:  (*Alias)(e),
	})
}

// ExpectedCell is one (date, category) unit of expected amount to be
// reconciled, derived from a settlement summary or deposit slip row.
type ExpectedCell struct {
	Date     time.Time       `json:"date"`
	Category Category        `json:"category"`
	Expected decimal.Decimal `json:"expected"`
}

// NewExpectedCell creates a new ExpectedCell instance
func NewExpectedCell(date time.Time, category Category, expected decimal.Decimal) *ExpectedCell {
	return &ExpectedCell{
		Date:     date,
		Category: category,
		Expected: expected,
	}
}

// Validate performs basic validation on the ExpectedCell
func (c *ExpectedCell) Validate() error {
	if c.Date.IsZero() {
		return fmt.Errorf("expected cell date cannot be zero")
	}

	if !c.Category.IsKnown() {
		return fmt.Errorf("expected cell category cannot be empty or unknown")
	}

	if !c.Expected.IsPositive() {
		return fmt.Errorf("expected cell amount must be positive, got %s", c.Expected.String())
	}

	return nil
}

// Key returns a stable identifier for the cell within a run
func (c *ExpectedCell) Key() string {
	return fmt.Sprintf("%s/%s", c.Date.Format("2006-01-02"), c.Category)
}

// Before reports whether this cell precedes other in the deterministic
// processing order: ascending date, then ascending category name. Allocation
// is order-sensitive, so this order is part of the engine's contract.
func (c *ExpectedCell) Before(other *ExpectedCell) bool {
	if !c.Date.Equal(other.Date) {
		return c.Date.Before(other.Date)
	}
	return c.Category < other.Category
}

// String returns a string representation of the ExpectedCell
func (c *ExpectedCell) String() string {
	return fmt.Sprintf("ExpectedCell{Date: %s, Category: %s, Expected: %s}",
		c.Date.Format("2006-01-02"), c.Category, c.Expected.String())
}

// Utility functions for type conversion and validation

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	// Remove common currency symbols and thousand separators
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseDateWithFormats attempts to parse a date from string using multiple
// common formats found in bank exports and settlement summaries
func ParseDateWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	formats := []string{
		"2006-01-02",
		"01/02/2006",
		"2006/01/02",
		"02-01-2006",
		"2006-01-02 15:04:05",
		time.RFC3339,
		"Jan 2, 2006",
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			// Normalize to date-only midnight UTC; the engine compares
			// calendar days, never times of day.
			year, month, day := t.Date()
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// NormalizeLedgerAmount folds the separate debit/credit statement columns
// into one signed amount. Credits are always positive. Debits are negative
// only for BPAD rows (actual fees charged back); any other debit column
// usage on these statements represents a deposit and stays positive.
func NormalizeLedgerAmount(credit, debit decimal.Decimal, description string) decimal.Decimal {
	if strings.Contains(strings.ToUpper(description), "BPAD") && debit.IsPositive() {
		return credit.Sub(debit)
	}
	return credit
}

// CompareAmountsWithTolerance compares two decimal amounts with a tolerance
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
