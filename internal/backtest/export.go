package backtest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// ExportFiles lists the paths written by ExportReport
type ExportFiles struct {
	Report  string `json:"report"`
	Equity  string `json:"equity"`
	Trades  string `json:"trades"`
	Metrics string `json:"metrics"`
	HTML    string `json:"html"`
}

// ExportReport writes a run's report and full ledgers under dir/<run id>.
// The report JSON carries the bounded trade tail; trades.csv has every
// trade.
func ExportReport(res *RunResult, report Report, dir string) (ExportFiles, error) {
	if dir == "" {
		return ExportFiles{}, fmt.Errorf("output path is required")
	}
	base := filepath.Join(dir, res.RunID)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return ExportFiles{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	files := ExportFiles{
		Report:  filepath.Join(base, "report.json"),
		Equity:  filepath.Join(base, "equity.csv"),
		Trades:  filepath.Join(base, "trades.csv"),
		Metrics: filepath.Join(base, "metrics.csv"),
		HTML:    filepath.Join(base, "report.html"),
	}

	data, err := RenderJSON(report)
	if err != nil {
		return files, fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(files.Report, data, 0o644); err != nil {
		return files, err
	}
	if err := os.WriteFile(files.Equity, []byte(res.Equity.ToCSV()), 0o644); err != nil {
		return files, err
	}

	var buf bytes.Buffer
	if err := WriteTradesCSV(&buf, res.Trades); err != nil {
		return files, fmt.Errorf("failed to encode trades: %w", err)
	}
	if err := os.WriteFile(files.Trades, buf.Bytes(), 0o644); err != nil {
		return files, err
	}
	buf.Reset()
	if err := WriteMetricsCSV(&buf, report); err != nil {
		return files, fmt.Errorf("failed to encode metrics: %w", err)
	}
	if err := os.WriteFile(files.Metrics, buf.Bytes(), 0o644); err != nil {
		return files, err
	}
	return files, GenerateHTMLReport(report, files.HTML)
}

// ExportToJSON writes any result (optimization, Monte Carlo, walk-forward
// or aggregated verdict) as indented JSON
func ExportToJSON(value any, outputPath string) error {
	if outputPath == "" {
		return fmt.Errorf("output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}
	return os.WriteFile(outputPath, data, 0o644)
}
