package backtester

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ridopark/eventtrader/pkg/portfolio"
)

var equityCurveHeader = []string{"timestamp", "equity_curve", "liquidity_curve", "total", "cash"}

// WriteEquityCurveCSV writes the equity curve to path, creating parent
// directories as needed.
func (r *Results) WriteEquityCurveCSV(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteEquityCurve(f, r.EquityCurve); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteEquityCurve writes one CSV row per equity-curve row
func WriteEquityCurve(w io.Writer, curve portfolio.EquityCurve) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(equityCurveHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range curve {
		record := []string{
			row.Timestamp.Format(time.RFC3339),
			formatF(row.EquityCurve),
			formatF(row.LiquidityCurve),
			formatF(row.Total),
			formatF(row.Cash),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %s: %w", record[0], err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
