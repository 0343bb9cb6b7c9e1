package backtest

import (
	"encoding/csv"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/yourusername/tradelab/internal/models"
)

// ReportOptions bounds the size of a report
type ReportOptions struct {
	// TradeTail is the number of most recent trades kept, default 20
	TradeTail int
	// EquityPoints caps the equity trace, 0 keeps every point
	EquityPoints int
}

// Summary identifies a run
type Summary struct {
	RunID          string            `json:"run_id"`
	Strategy       string            `json:"strategy"`
	Parameters     map[string]any    `json:"parameters,omitempty"`
	Symbol         string            `json:"symbol"`
	Resolution     models.Resolution `json:"resolution"`
	Start          time.Time         `json:"start"`
	End            time.Time         `json:"end"`
	Steps          int               `json:"steps"`
	InitialBalance float64           `json:"initial_balance"`
	FinalEquity    float64           `json:"final_equity"`
	SignalsDropped int               `json:"signals_dropped"`
	OpenPositions  int               `json:"open_positions"`
	Duration       time.Duration     `json:"duration"`
}

// Performance holds return and trade statistics
type Performance struct {
	TotalReturn      float64       `json:"total_return"`
	AnnualizedReturn float64       `json:"annualized_return"`
	NetProfit        float64       `json:"net_profit"`
	GrossProfit      float64       `json:"gross_profit"`
	GrossLoss        float64       `json:"gross_loss"`
	TotalTrades      int           `json:"total_trades"`
	WinRate          float64       `json:"win_rate"`
	ProfitFactor     float64       `json:"profit_factor"`
	Expectancy       float64       `json:"expectancy"`
	AverageWin       float64       `json:"average_win"`
	AverageLoss      float64       `json:"average_loss"`
	AverageHoldTime  time.Duration `json:"average_hold_time"`
	TotalCommission  float64       `json:"total_commission"`
}

// Risk holds risk-adjusted statistics
type Risk struct {
	MaxDrawdown   float64 `json:"max_drawdown"`
	Volatility    float64 `json:"volatility"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
	SortinoRatio  float64 `json:"sortino_ratio"`
	CalmarRatio   float64 `json:"calmar_ratio"`
	OmegaRatio    float64 `json:"omega_ratio"`
	ValueAtRisk95 float64 `json:"var_95"`
	ValueAtRisk99 float64 `json:"var_99"`
	CVaR95        float64 `json:"cvar_95"`
	CVaR99        float64 `json:"cvar_99"`
	UlcerIndex    float64 `json:"ulcer_index"`
}

// Report is the structured outcome of one run
type Report struct {
	Summary        Summary         `json:"summary"`
	Performance    Performance     `json:"performance"`
	Risk           Risk            `json:"risk"`
	TradeTail      []models.Trade  `json:"trade_tail"`
	EquityTrace    EquityCurve     `json:"equity_trace"`
	MonthlyReturns []MonthlyReturn `json:"monthly_returns"`
}

// BuildReport assembles the report of a completed run
func BuildReport(res *RunResult, opts ReportOptions) Report {
	if opts.TradeTail <= 0 {
		opts.TradeTail = defaultTradeTail
	}
	m := res.Metrics

	tail := res.Trades
	if len(tail) > opts.TradeTail {
		tail = tail[len(tail)-opts.TradeTail:]
	}
	trades := make([]models.Trade, len(tail))
	copy(trades, tail)

	return Report{
		Summary: Summary{
			RunID:          res.RunID,
			Strategy:       res.Strategy,
			Parameters:     res.Parameters,
			Symbol:         res.Symbol,
			Resolution:     res.Resolution,
			Start:          res.Start,
			End:            res.End,
			Steps:          res.Steps,
			InitialBalance: res.InitialBalance,
			FinalEquity:    m.FinalEquity,
			SignalsDropped: res.SignalsDropped,
			OpenPositions:  len(res.OpenPositions),
			Duration:       res.Duration,
		},
		Performance: Performance{
			TotalReturn:      m.TotalReturn,
			AnnualizedReturn: m.AnnualizedReturn,
			NetProfit:        m.NetProfit,
			GrossProfit:      m.GrossProfit,
			GrossLoss:        m.GrossLoss,
			TotalTrades:      m.TotalTrades,
			WinRate:          m.WinRate,
			ProfitFactor:     m.ProfitFactor,
			Expectancy:       m.Expectancy,
			AverageWin:       m.AverageWin,
			AverageLoss:      m.AverageLoss,
			AverageHoldTime:  m.AverageHoldTime,
			TotalCommission:  m.TotalCommission,
		},
		Risk: Risk{
			MaxDrawdown:   m.MaxDrawdown,
			Volatility:    m.Volatility,
			SharpeRatio:   m.SharpeRatio,
			SortinoRatio:  m.SortinoRatio,
			CalmarRatio:   m.CalmarRatio,
			OmegaRatio:    m.OmegaRatio,
			ValueAtRisk95: m.ValueAtRisk95,
			ValueAtRisk99: m.ValueAtRisk99,
			CVaR95:        m.CVaR95,
			CVaR99:        m.CVaR99,
			UlcerIndex:    m.UlcerIndex,
		},
		TradeTail:      trades,
		EquityTrace:    res.Equity.Downsample(opts.EquityPoints),
		MonthlyReturns: res.Equity.MonthlyReturns(),
	}
}

// RenderConsole formats a report for terminal output
func RenderConsole(r Report) string {
	var builder strings.Builder
	s, p, k := r.Summary, r.Performance, r.Risk
	builder.WriteString("Backtest Report\n")
	builder.WriteString("================\n")
	builder.WriteString(fmt.Sprintf("Strategy: %s on %s %s\n", s.Strategy, s.Symbol, s.Resolution))
	builder.WriteString(fmt.Sprintf("Period: %s to %s (%d candles)\n", s.Start.Format(time.DateOnly), s.End.Format(time.DateOnly), s.Steps))
	builder.WriteString(fmt.Sprintf("Equity: %.2f -> %.2f\n", s.InitialBalance, s.FinalEquity))
	builder.WriteString("\nPerformance\n")
	builder.WriteString(fmt.Sprintf("  Total Return: %.2f%%\n", p.TotalReturn*100))
	builder.WriteString(fmt.Sprintf("  Annualized Return: %.2f%%\n", p.AnnualizedReturn*100))
	builder.WriteString(fmt.Sprintf("  Net Profit: %.2f\n", p.NetProfit))
	builder.WriteString(fmt.Sprintf("  Trades: %d\n", p.TotalTrades))
	builder.WriteString(fmt.Sprintf("  Win Rate: %.2f%%\n", p.WinRate*100))
	builder.WriteString(fmt.Sprintf("  Profit Factor: %s\n", formatRatio(p.ProfitFactor)))
	builder.WriteString(fmt.Sprintf("  Commission: %.2f\n", p.TotalCommission))
	builder.WriteString("\nRisk\n")
	builder.WriteString(fmt.Sprintf("  Max Drawdown: %.2f%%\n", k.MaxDrawdown*100))
	builder.WriteString(fmt.Sprintf("  Sharpe Ratio: %.2f\n", k.SharpeRatio))
	builder.WriteString(fmt.Sprintf("  Sortino Ratio: %.2f\n", k.SortinoRatio))
	builder.WriteString(fmt.Sprintf("  Calmar Ratio: %.2f\n", k.CalmarRatio))
	builder.WriteString(fmt.Sprintf("  Omega Ratio: %s\n", formatRatio(k.OmegaRatio)))
	builder.WriteString(fmt.Sprintf("  VaR 95/99: %.2f%% / %.2f%%\n", k.ValueAtRisk95*100, k.ValueAtRisk99*100))
	builder.WriteString(fmt.Sprintf("  CVaR 95/99: %.2f%% / %.2f%%\n", k.CVaR95*100, k.CVaR99*100))
	builder.WriteString(fmt.Sprintf("  Ulcer Index: %.2f\n", k.UlcerIndex))
	if len(r.TradeTail) > 0 {
		builder.WriteString(fmt.Sprintf("\nLast %d trades\n", len(r.TradeTail)))
		for _, t := range r.TradeTail {
			builder.WriteString(fmt.Sprintf("  %s %-5s %10.4f @ %.4f -> %.4f  pnl %.2f (%s)\n",
				t.ExitTime.Format(time.DateTime), t.Side, t.Quantity, t.EntryPrice, t.ExitPrice, t.RealizedPnL, t.ExitReason))
		}
	}
	return builder.String()
}

// GenerateConsoleReport formats an aggregated verdict for terminal output
func GenerateConsoleReport(result AggregatedResult) string {
	var builder strings.Builder
	builder.WriteString("Validation Report\n")
	builder.WriteString("=================\n")
	builder.WriteString(fmt.Sprintf("Strategy: %s\n", result.Strategy))
	builder.WriteString(fmt.Sprintf("Composite Score: %.2f\n", result.CompositeScore))
	builder.WriteString(fmt.Sprintf("Recommendation: %s\n", result.Recommendation))
	builder.WriteString(fmt.Sprintf("Total Return: %.2f%%\n", result.ReplayMetrics.TotalReturn*100))
	builder.WriteString(fmt.Sprintf("Sharpe Ratio: %.2f\n", result.ReplayMetrics.SharpeRatio))
	builder.WriteString(fmt.Sprintf("Max Drawdown: %.2f%%\n", result.ReplayMetrics.MaxDrawdown*100))
	builder.WriteString(fmt.Sprintf("Monte Carlo Mean Return: %.2f%%\n", result.MonteCarloResult.Returns.Mean*100))
	builder.WriteString(fmt.Sprintf("Probability of Ruin: %.2f%%\n", result.MonteCarloResult.ProbabilityOfRuin*100))
	builder.WriteString(fmt.Sprintf("Walk-Forward Consistency: %.2f%%\n", result.WalkForwardResult.ConsistencyScore*100))
	builder.WriteString(fmt.Sprintf("Walk-Forward Efficiency: %.2f\n", result.WalkForwardResult.Efficiency))
	return builder.String()
}

// RenderJSON encodes a report as indented JSON
func RenderJSON(r Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// WriteTradesCSV writes trades as CSV rows
func WriteTradesCSV(w io.Writer, trades []models.Trade) error {
	cw := csv.NewWriter(w)
	header := []string{"id", "symbol", "side", "entry_time", "entry_price", "exit_time", "exit_price", "quantity", "realized_pnl", "commission", "hold_time", "exit_reason"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.ID,
			t.Symbol,
			string(t.Side),
			t.EntryTime.Format(time.RFC3339),
			formatFloat(t.EntryPrice),
			t.ExitTime.Format(time.RFC3339),
			formatFloat(t.ExitPrice),
			formatFloat(t.Quantity),
			formatFloat(t.RealizedPnL),
			formatFloat(t.Commission),
			t.HoldTime.String(),
			string(t.ExitReason),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMetricsCSV writes key metrics as metric,value rows
func WriteMetricsCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"metric", "value"},
		{"total_return", formatFloat(r.Performance.TotalReturn)},
		{"annualized_return", formatFloat(r.Performance.AnnualizedReturn)},
		{"net_profit", formatFloat(r.Performance.NetProfit)},
		{"total_trades", strconv.Itoa(r.Performance.TotalTrades)},
		{"win_rate", formatFloat(r.Performance.WinRate)},
		{"profit_factor", formatFloat(r.Performance.ProfitFactor)},
		{"max_drawdown", formatFloat(r.Risk.MaxDrawdown)},
		{"sharpe_ratio", formatFloat(r.Risk.SharpeRatio)},
		{"sortino_ratio", formatFloat(r.Risk.SortinoRatio)},
		{"calmar_ratio", formatFloat(r.Risk.CalmarRatio)},
		{"var_95", formatFloat(r.Risk.ValueAtRisk95)},
		{"cvar_95", formatFloat(r.Risk.CVaR95)},
		{"ulcer_index", formatFloat(r.Risk.UlcerIndex)},
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// GenerateHTMLReport creates a simple HTML report
func GenerateHTMLReport(r Report, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>Backtest Report</title></head>
<body>
<h1>%s on %s</h1>
<p><strong>Total Return:</strong> %.2f%%</p>
<p><strong>Sharpe Ratio:</strong> %.2f</p>
<p><strong>Max Drawdown:</strong> %.2f%%</p>
<p><strong>Win Rate:</strong> %.2f%%</p>
<p><strong>Profit Factor:</strong> %s</p>
<p><strong>Trades:</strong> %d</p>
</body>
</html>`,
		html.EscapeString(r.Summary.Strategy),
		html.EscapeString(r.Summary.Symbol),
		r.Performance.TotalReturn*100,
		r.Risk.SharpeRatio,
		r.Risk.MaxDrawdown*100,
		r.Performance.WinRate*100,
		formatRatio(r.Performance.ProfitFactor),
		r.Performance.TotalTrades,
	)

	return os.WriteFile(outputPath, []byte(page), 0o644)
}

func formatRatio(v float64) string {
	if v == Unbounded {
		return "inf"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
