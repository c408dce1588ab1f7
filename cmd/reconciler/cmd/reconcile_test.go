package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateFileExists(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(existing, []byte("Date,Visa\n"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	if err := validateFileExists(existing, "test file"); err != nil {
		t.Errorf("expected no error for existing file, got %v", err)
	}

	if err := validateFileExists(filepath.Join(dir, "missing.csv"), "test file"); err == nil {
		t.Error("expected error for missing file")
	}

	if err := validateFileExists(dir, "test file"); err == nil {
		t.Error("expected error for directory path")
	}
}

func TestEngineOverridesTrackChangedFlags(t *testing.T) {
	overrides := engineOverrides(reconcileCmd)
	if overrides.ForwardDays != nil {
		t.Error("expected no forward-days override before the flag is set")
	}
	if overrides.BonusDays != nil {
		t.Error("expected no bonus-days override before the flag is set")
	}

	if err := reconcileCmd.Flags().Set("forward-days", "5"); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}
	if err := reconcileCmd.Flags().Set("fairness-threshold", "0.25"); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}

	overrides = engineOverrides(reconcileCmd)
	if overrides.ForwardDays == nil || *overrides.ForwardDays != 5 {
		t.Error("expected forward-days override of 5")
	}
	if overrides.FairnessThreshold == nil || *overrides.FairnessThreshold != 0.25 {
		t.Error("expected fairness-threshold override of 0.25")
	}
	if overrides.MaxTransactionsPerCell != nil {
		t.Error("expected no max-per-cell override")
	}
}
