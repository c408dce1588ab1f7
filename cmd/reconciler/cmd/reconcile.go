package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"settlement-reconciliation-service/cmd/reconciler/config"
	"settlement-reconciliation-service/internal/reconciler"
	"settlement-reconciliation-service/internal/reporter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	expectedFile string
	ledgerFile   string
	outputFormat string
	outputFile   string
	profile      string
	includeAudit bool

	forwardDays       int
	maxPerCell        int
	fairAllocation    bool
	fairnessThreshold float64
	cleanupPass       bool
	cleanupExtraDays  int
	amountTolerance   float64
	rangeTolerance    float64
	bonusDays         map[string]int
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile expected settlement amounts with a bank ledger",
	Long: `Reconcile matches the expected amounts of a settlement summary or
deposit slip sheet against the entries of a bank ledger export.

This command requires:
- An expected-record file (CSV, one date column plus one column per category)
- A ledger file (CSV bank statement export)

Examples:
  # Basic reconciliation
  reconciler reconcile --expected-file summary.csv --ledger-file statement.csv

  # JSON report to a file, with the full audit trail
  reconciler reconcile -e summary.csv -l statement.csv \
    --output-format json --output-file report.json --audit

  # Strict profile with a custom matching window
  reconciler reconcile -e summary.csv -l statement.csv \
    --profile strict --forward-days 2

  # Grant extra forward days per category
  reconciler reconcile -e summary.csv -l statement.csv \
    --bonus-days Amex=1,Discover=1`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVarP(&expectedFile, "expected-file", "e", "", "path to expected-record CSV file (required)")
	reconcileCmd.Flags().StringVarP(&ledgerFile, "ledger-file", "l", "", "path to bank ledger CSV file (required)")

	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().BoolVar(&includeAudit, "audit", false, "include per-cell filter attempts and contributions in console output")

	reconcileCmd.Flags().StringVarP(&profile, "profile", "p", "default", "configuration profile: default, strict, relaxed")

	reconcileCmd.Flags().IntVar(&forwardDays, "forward-days", 3, "forward matching window in days")
	reconcileCmd.Flags().IntVar(&maxPerCell, "max-per-cell", 3, "maximum entries one cell may consume in a capped pass (1-20)")
	reconcileCmd.Flags().BoolVar(&fairAllocation, "fair-allocation", true, "enable the fair-redistribution pass")
	reconcileCmd.Flags().Float64Var(&fairnessThreshold, "fairness-threshold", 0.20, "fraction of available entries reserved for pending cells (0.10-0.50)")
	reconcileCmd.Flags().BoolVar(&cleanupPass, "cleanup-pass", true, "enable the widened-window cleanup pass")
	reconcileCmd.Flags().IntVar(&cleanupExtraDays, "cleanup-extra-days", 2, "extra window days during the cleanup pass (1-3)")
	reconcileCmd.Flags().Float64Var(&amountTolerance, "amount-tolerance", 0.01, "absolute tolerance for amount equality")
	reconcileCmd.Flags().Float64Var(&rangeTolerance, "range-tolerance", 3.0, "percentage band of the amount-range strategy (0-100)")
	reconcileCmd.Flags().StringToIntVar(&bonusDays, "bonus-days", nil, "per-category extra forward days, e.g. Amex=1")

	reconcileCmd.MarkFlagRequired("expected-file")
	reconcileCmd.MarkFlagRequired("ledger-file")

	viper.BindPFlag("expected-file", reconcileCmd.Flags().Lookup("expected-file"))
	viper.BindPFlag("ledger-file", reconcileCmd.Flags().Lookup("ledger-file"))
	viper.BindPFlag("output-format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", reconcileCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("profile", reconcileCmd.Flags().Lookup("profile"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	expectedFile = viper.GetString("expected-file")
	ledgerFile = viper.GetString("ledger-file")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	profile = viper.GetString("profile")

	if expectedFile == "" {
		return fmt.Errorf("expected-file is required")
	}
	if ledgerFile == "" {
		return fmt.Errorf("ledger-file is required")
	}

	if err := validateFileExists(expectedFile, "expected-record file"); err != nil {
		return err
	}
	if err := validateFileExists(ledgerFile, "ledger file"); err != nil {
		return err
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return fmt.Errorf("output directory does not exist: %s", dir)
		}
	}

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	runCfg, err := config.CreateRunConfig(profile, engineOverrides(cmd))
	if err != nil {
		return err
	}

	reportCfg, err := config.CreateReportConfig(outputFormat, includeAudit)
	if err != nil {
		return err
	}

	service, err := reconciler.NewService(runCfg)
	if err != nil {
		return err
	}

	generator, err := reporter.NewReportGenerator(reportCfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := service.Reconcile(ctx, expectedFile, ledgerFile)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if outputFile != "" {
		file, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		out = file
	}

	return generator.Render(out, result)
}

// engineOverrides collects the engine flags the user explicitly set, leaving
// the rest to the selected profile
func engineOverrides(cmd *cobra.Command) *config.EngineOverrides {
	overrides := &config.EngineOverrides{}
	flags := cmd.Flags()

	if flags.Changed("forward-days") {
		overrides.ForwardDays = &forwardDays
	}
	if flags.Changed("max-per-cell") {
		overrides.MaxTransactionsPerCell = &maxPerCell
	}
	if flags.Changed("fair-allocation") {
		overrides.FairAllocation = &fairAllocation
	}
	if flags.Changed("fairness-threshold") {
		overrides.FairnessThreshold = &fairnessThreshold
	}
	if flags.Changed("cleanup-pass") {
		overrides.CleanupPass = &cleanupPass
	}
	if flags.Changed("cleanup-extra-days") {
		overrides.CleanupExtraDays = &cleanupExtraDays
	}
	if flags.Changed("amount-tolerance") {
		overrides.AmountTolerance = &amountTolerance
	}
	if flags.Changed("range-tolerance") {
		overrides.RangeTolerancePercent = &rangeTolerance
	}
	if flags.Changed("bonus-days") {
		overrides.BonusDays = bonusDays
	}

	return overrides
}

func validateFileExists(path, description string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s not found: %s", description, path)
		}
		return fmt.Errorf("cannot access %s: %w", description, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file: %s", description, path)
	}
	return nil
}
