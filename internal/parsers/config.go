package parsers

import (
	"fmt"
)

// LedgerParserConfig describes the shape of the bank ledger export. Column
// aliases are tried in order; the first header present wins.
type LedgerParserConfig struct {
	Delimiter rune

	// IDAliases names the stable row identifier column. Optional: when no
	// alias matches, entries get synthetic line-based ids.
	IDAliases          []string
	DateAliases        []string
	DescriptionAliases []string
	CreditAliases      []string

	// DebitAliases names the debit column. Optional: statements without one
	// are treated as credit-only.
	DebitAliases []string
}

// DefaultLedgerParserConfig returns a configuration covering the common
// header variants of bank statement exports
func DefaultLedgerParserConfig() *LedgerParserConfig {
	return &LedgerParserConfig{
		Delimiter:          ',',
		IDAliases:          []string{"Bank_Row_Number", "Row_Number", "Row", "ID"},
		DateAliases:        []string{"Date", "Transaction Date", "Posting Date"},
		DescriptionAliases: []string{"Description", "Memo", "Details"},
		CreditAliases:      []string{"Credit", "Credit Amount", "Deposit"},
		DebitAliases:       []string{"Debit", "Debit Amount", "Withdrawal"},
	}
}

// Validate checks the ledger parser configuration
func (c *LedgerParserConfig) Validate() error {
	if c.Delimiter == 0 {
		return fmt.Errorf("delimiter cannot be empty")
	}
	if len(c.DateAliases) == 0 {
		return fmt.Errorf("at least one date column alias is required")
	}
	if len(c.DescriptionAliases) == 0 {
		return fmt.Errorf("at least one description column alias is required")
	}
	if len(c.CreditAliases) == 0 {
		return fmt.Errorf("at least one credit column alias is required")
	}
	return nil
}

// ExpectedParserConfig describes the shape of the expected-record sheet: one
// date column, every other column a settlement category.
type ExpectedParserConfig struct {
	Delimiter   rune
	DateAliases []string
}

// DefaultExpectedParserConfig returns a configuration covering the common
// header variants of settlement summary sheets
func DefaultExpectedParserConfig() *ExpectedParserConfig {
	return &ExpectedParserConfig{
		Delimiter:   ',',
		DateAliases: []string{"Date", "Settlement Date", "Business Date"},
	}
}

// Validate checks the expected parser configuration
func (c *ExpectedParserConfig) Validate() error {
	if c.Delimiter == 0 {
		return fmt.Errorf("delimiter cannot be empty")
	}
	if len(c.DateAliases) == 0 {
		return fmt.Errorf("at least one date column alias is required")
	}
	return nil
}
