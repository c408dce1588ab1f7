// Command generate produces paired expected-record and ledger CSV fixtures
// for exercising the reconciler CLI:
//
//	go run testdata/generators/generate.go -days 5 -output-dir testdata/generated
//
// The generated ledger intentionally contains the situations the engine has
// to cope with: split settlements sharing one description, Amex entries
// landing a day late, BPAD fee debits, and noise entries no cell can match.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var categories = []string{"Visa", "Master Card", "Amex", "Discover"}

var descriptions = map[string]string{
	"Visa":        "VISA DEPOSIT",
	"Master Card": "MASTERCARD SETTLEMENT",
	"Amex":        "AMEX SETTLEMENT",
	"Discover":    "DISCOVER NETWORK DEP",
}

func main() {
	var (
		days      = flag.Int("days", 5, "number of business days to generate")
		startDate = flag.String("start-date", "2025-01-06", "first cell date (YYYY-MM-DD)")
		seed      = flag.Int64("seed", 42, "random seed for reproducible fixtures")
		outputDir = flag.String("output-dir", "testdata/generated", "output directory")
	)
	flag.Parse()

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatalf("invalid start date: %v", err)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))

	expectedRows := [][]string{append([]string{"Date"}, categories...)}
	ledgerRows := [][]string{{"Bank_Row_Number", "Date", "Description", "Credit", "Debit"}}
	rowNumber := 1

	for d := 0; d < *days; d++ {
		date := start.AddDate(0, 0, d)
		expectedRow := []string{date.Format("2006-01-02")}

		for _, category := range categories {
			expected := float64(rng.Intn(4000)+500) + float64(rng.Intn(100))/100.0
			expectedRow = append(expectedRow, fmt.Sprintf("%.2f", expected))

			lag := rng.Intn(3)
			if category == "Amex" {
				// Amex batches settle late more often than not.
				lag = rng.Intn(3) + 2
			}
			settleDate := date.AddDate(0, 0, lag)

			// Roughly a third of settlements arrive split in two deposits
			// under the same description.
			if rng.Intn(3) == 0 {
				first := expected * (0.3 + rng.Float64()*0.4)
				ledgerRows = append(ledgerRows,
					ledgerRow(&rowNumber, settleDate, descriptions[category], first),
					ledgerRow(&rowNumber, settleDate.AddDate(0, 0, 1), descriptions[category], expected-first))
			} else {
				ledgerRows = append(ledgerRows,
					ledgerRow(&rowNumber, settleDate, descriptions[category], expected))
			}
		}

		// Occasional fee charge-back and unmatched noise.
		if rng.Intn(4) == 0 {
			fee := float64(rng.Intn(40)+5) + float64(rng.Intn(100))/100.0
			ledgerRows = append(ledgerRows, []string{
				strconv.Itoa(rowNumber), date.Format("2006-01-02"),
				"BPAD MERCHANT FEE", "0.00", fmt.Sprintf("%.2f", fee)})
			rowNumber++
		}
		if rng.Intn(3) == 0 {
			noise := float64(rng.Intn(500)+20) + float64(rng.Intn(100))/100.0
			ledgerRows = append(ledgerRows,
				ledgerRow(&rowNumber, date, fmt.Sprintf("CHECK %d", 1000+rng.Intn(9000)), noise))
		}
	}

	if err := writeCSV(filepath.Join(*outputDir, "expected.csv"), expectedRows); err != nil {
		log.Fatalf("failed to write expected fixture: %v", err)
	}
	if err := writeCSV(filepath.Join(*outputDir, "ledger.csv"), ledgerRows); err != nil {
		log.Fatalf("failed to write ledger fixture: %v", err)
	}

	fmt.Printf("Generated %d expected rows and %d ledger rows in %s\n",
		len(expectedRows)-1, len(ledgerRows)-1, *outputDir)
}

func ledgerRow(rowNumber *int, date time.Time, description string, credit float64) []string {
	row := []string{
		strconv.Itoa(*rowNumber),
		date.Format("2006-01-02"),
		description,
		fmt.Sprintf("%.2f", credit),
		"",
	}
	*rowNumber++
	return row
}

func writeCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}
