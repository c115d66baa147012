package snapshot

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"RiskGraph/internal/domain/models"
)

var diffHeader = []string{"id", "name", "risk_before", "risk_after", "delta", "sector", "location"}

// WriteDiffCSV writes the report with a header row, even when it has no rows.
func WriteDiffCSV(path string, report models.DiffReport) error {
	rows := make([][]string, 0, len(report.Rows))
	for _, r := range report.Rows {
		rows = append(rows, []string{r.ID, r.Name, cents(r.RiskBefore), cents(r.RiskAfter), cents(r.Delta), r.Sector, r.Location})
	}
	return writeCSV(path, diffHeader, rows)
}

// WriteRiskScoresCSV writes "Node Name,Dollarized Risk" in the given order.
func WriteRiskScoresCSV(path string, ranked []models.RankedRisk) error {
	rows := make([][]string, 0, len(ranked))
	for _, r := range ranked {
		rows = append(rows, []string{r.Name, cents(r.DollarizedRisk)})
	}
	return writeCSV(path, []string{"Node Name", "Dollarized Risk"}, rows)
}

func writeCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// cents formats a dollar amount with two decimals, rounding half away from zero.
func cents(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

