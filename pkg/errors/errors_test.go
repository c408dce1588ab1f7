package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestReconcilerErrorBasics(t *testing.T) {
	err := New(CategoryParse, CodeInvalidData, "bad row")
	if err.Error() != "bad row" {
		t.Errorf("expected 'bad row', got %q", err.Error())
	}

	err.WithSuggestion("fix the row")
	if !strings.Contains(err.Error(), "suggestion: fix the row") {
		t.Errorf("expected suggestion in message, got %q", err.Error())
	}

	err.WithContext("line", 4)
	if err.Context["line"] != 4 {
		t.Errorf("expected context line=4, got %v", err.Context["line"])
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(cause, CategoryFile, CodeFileNotFound, "open failed")

	if err.Unwrap() != cause {
		t.Error("expected Unwrap to return the cause")
	}
	if Wrap(nil, CategoryFile, CodeFileNotFound, "x") != nil {
		t.Error("wrapping nil must return nil")
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		want     int
	}{
		{CategoryFile, 2},
		{CategoryParse, 3},
		{CategoryValidation, 3},
		{CategoryConfiguration, 4},
		{CategoryAllocation, 5},
		{CategoryInternal, 5},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			err := New(tt.category, CodeUnexpectedError, "x")
			if got := err.GetExitCode(); got != tt.want {
				t.Errorf("exit code for %s = %d, want %d", tt.category, got, tt.want)
			}
		})
	}
}

func TestInputShapeError(t *testing.T) {
	err := InputShapeError(CodeInvalidAmount, "ledger.csv", 7, "Credit", "abc", fmt.Errorf("parse failed"))

	if err.Category != CategoryParse {
		t.Errorf("expected parse category, got %s", err.Category)
	}
	if !strings.Contains(err.Message, "ledger.csv") || !strings.Contains(err.Message, "line 7") {
		t.Errorf("expected file and line in message, got %q", err.Message)
	}
	if err.Context["column"] != "Credit" || err.Context["value"] != "abc" {
		t.Errorf("expected column and value context, got %v", err.Context)
	}
}

func TestConfigurationRangeError(t *testing.T) {
	err := ConfigurationRangeError("fairness_threshold", 0.9, "0.10..0.50")

	if err.Code != CodeConfigOutOfRange {
		t.Errorf("expected config out of range code, got %s", err.Code)
	}
	if err.GetExitCode() != 4 {
		t.Errorf("expected exit code 4, got %d", err.GetExitCode())
	}
	if !strings.Contains(err.Message, "fairness_threshold") || !strings.Contains(err.Message, "0.10..0.50") {
		t.Errorf("expected setting and bounds in message, got %q", err.Message)
	}
}

func TestAllocationErrorMessages(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{CodeEmptyInput, "no input available"},
		{CodeDuplicateEntry, "duplicate ledger entry id"},
		{CodeRunInterrupted, "run cancelled"},
		{CodeProcessingError, "processing error"},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := AllocationError(tt.code, "test operation", nil)
			if !strings.Contains(err.Message, tt.want) {
				t.Errorf("expected %q in message, got %q", tt.want, err.Message)
			}
			if err.Context["operation"] != "test operation" {
				t.Errorf("expected operation context, got %v", err.Context)
			}
		})
	}
}

func TestAsReconcilerError(t *testing.T) {
	inner := ConfigurationRangeError("max_transactions_per_cell", 25, "1..20")
	wrapped := fmt.Errorf("run setup: %w", inner)

	recovered, ok := AsReconcilerError(wrapped)
	if !ok {
		t.Fatal("expected to recover ReconcilerError from wrapped chain")
	}
	if recovered.Code != CodeConfigOutOfRange {
		t.Errorf("expected config code, got %s", recovered.Code)
	}

	if _, ok := AsReconcilerError(fmt.Errorf("plain")); ok {
		t.Error("expected no ReconcilerError in plain error")
	}
}

func TestErrorSummary(t *testing.T) {
	errs := []*ReconcilerError{
		New(CategoryFile, CodeFileNotFound, "missing"),
		New(CategoryParse, CodeInvalidData, "bad row"),
		New(CategoryParse, CodeInvalidDate, "bad date"),
	}

	summary := NewErrorSummary(errs)
	if summary.Total != 3 {
		t.Errorf("expected total 3, got %d", summary.Total)
	}
	if summary.ByCategory[CategoryParse] != 2 {
		t.Errorf("expected 2 parse errors, got %d", summary.ByCategory[CategoryParse])
	}
	if summary.GetExitCode() != 3 {
		t.Errorf("expected exit code 3, got %d", summary.GetExitCode())
	}

	empty := NewErrorSummary(nil)
	if empty.GetExitCode() != 0 {
		t.Errorf("expected exit code 0 for no errors, got %d", empty.GetExitCode())
	}
}
