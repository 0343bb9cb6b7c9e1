package backtest

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/yourusername/tradelab/internal/models"
)

// Unbounded is reported for ratios whose denominator is zero while the
// numerator is positive, such as a profit factor with no losing trades.
const Unbounded = math.MaxFloat64

// MetricsConfig holds the analytics settings
type MetricsConfig struct {
	RiskFreeRate        float64 `json:"risk_free_rate"`
	AnnualizationFactor float64 `json:"annualization_factor"`
}

// Metrics is the analytics record of one run. Returns, drawdowns and
// win rate are fractions.
type Metrics struct {
	// trade statistics
	TotalTrades          int           `json:"total_trades"`
	WinningTrades        int           `json:"winning_trades"`
	LosingTrades         int           `json:"losing_trades"`
	WinRate              float64       `json:"win_rate"`
	GrossProfit          float64       `json:"gross_profit"`
	GrossLoss            float64       `json:"gross_loss"`
	NetProfit            float64       `json:"net_profit"`
	ProfitFactor         float64       `json:"profit_factor"`
	AverageWin           float64       `json:"average_win"`
	AverageLoss          float64       `json:"average_loss"`
	LargestWin           float64       `json:"largest_win"`
	LargestLoss          float64       `json:"largest_loss"`
	Expectancy           float64       `json:"expectancy"`
	AverageHoldTime      time.Duration `json:"average_hold_time"`
	MaxConsecutiveWins   int           `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int           `json:"max_consecutive_losses"`
	TotalCommission      float64       `json:"total_commission"`

	// equity statistics
	InitialBalance   float64 `json:"initial_balance"`
	FinalEquity      float64 `json:"final_equity"`
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	CalmarRatio      float64 `json:"calmar_ratio"`
	ValueAtRisk95    float64 `json:"var_95"`
	ValueAtRisk99    float64 `json:"var_99"`
	CVaR95           float64 `json:"cvar_95"`
	CVaR99           float64 `json:"cvar_99"`
	OmegaRatio       float64 `json:"omega_ratio"`
	UlcerIndex       float64 `json:"ulcer_index"`

	Periods   int       `json:"periods"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// CalculateMetrics derives the analytics record of a run from its closed
// trades and equity curve. With no trades every derived field is left at
// zero.
func CalculateMetrics(trades []models.Trade, curve EquityCurve, initialBalance float64, cfg MetricsConfig) Metrics {
	af := cfg.AnnualizationFactor
	if af <= 0 {
		af = defaultAnnualizationFactor
	}

	metrics := Metrics{
		InitialBalance: initialBalance,
		FinalEquity:    initialBalance,
	}
	if len(curve) > 0 {
		metrics.FinalEquity = curve.Final()
		metrics.StartDate = curve[0].Time
		metrics.EndDate = curve[len(curve)-1].Time
		metrics.Periods = len(curve) - 1
	}
	if len(trades) == 0 {
		return metrics
	}

	calculateTradeStats(&metrics, trades)

	base := initialBalance
	if len(curve) > 0 {
		base = curve[0].Value
	}
	if base > 0 {
		metrics.TotalReturn = (metrics.FinalEquity - base) / base
	}

	returns := curve.GetReturns()
	metrics.AnnualizedReturn = calculateAnnualizedReturn(metrics.TotalReturn, len(returns), af)
	metrics.Volatility = stddev(returns) * math.Sqrt(af)
	metrics.MaxDrawdown = calculateMaxDrawdown(curve)
	metrics.SharpeRatio = calculateSharpeRatio(returns, cfg.RiskFreeRate, af)
	metrics.SortinoRatio = calculateSortinoRatio(returns, cfg.RiskFreeRate, af)
	if metrics.MaxDrawdown > 0 {
		metrics.CalmarRatio = metrics.AnnualizedReturn / metrics.MaxDrawdown
	}
	metrics.ValueAtRisk95, metrics.CVaR95 = calculateVaR(returns, 0.95)
	metrics.ValueAtRisk99, metrics.CVaR99 = calculateVaR(returns, 0.99)
	metrics.OmegaRatio = calculateOmegaRatio(returns, 0)
	metrics.UlcerIndex = calculateUlcerIndex(curve)

	return metrics
}

// ToJSON exports metrics to JSON
func (m Metrics) ToJSON() string {
	data, _ := json.Marshal(m)
	return string(data)
}

var objectives = map[string]func(Metrics) float64{
	"total_return":      func(m Metrics) float64 { return m.TotalReturn },
	"annualized_return": func(m Metrics) float64 { return m.AnnualizedReturn },
	"net_profit":        func(m Metrics) float64 { return m.NetProfit },
	"sharpe_ratio":      func(m Metrics) float64 { return m.SharpeRatio },
	"sortino_ratio":     func(m Metrics) float64 { return m.SortinoRatio },
	"calmar_ratio":      func(m Metrics) float64 { return m.CalmarRatio },
	"omega_ratio":       func(m Metrics) float64 { return m.OmegaRatio },
	"profit_factor":     func(m Metrics) float64 { return m.ProfitFactor },
	"win_rate":          func(m Metrics) float64 { return m.WinRate },
	"expectancy":        func(m Metrics) float64 { return m.Expectancy },
	// lower is better for these, so they are negated
	"max_drawdown": func(m Metrics) float64 { return -m.MaxDrawdown },
	"ulcer_index":  func(m Metrics) float64 { return -m.UlcerIndex },
}

// Objective returns the named metric as a score where higher is better
func (m Metrics) Objective(name string) (float64, error) {
	fn, ok := objectives[name]
	if !ok {
		return 0, fmt.Errorf("unknown objective %q (available: %s)", name, strings.Join(ObjectiveNames(), ", "))
	}
	return fn(m), nil
}

// ObjectiveNames lists the supported objectives in sorted order
func ObjectiveNames() []string {
	names := make([]string, 0, len(objectives))
	for name := range objectives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func calculateTradeStats(m *Metrics, trades []models.Trade) {
	m.TotalTrades = len(trades)
	var (
		holdTotal       time.Duration
		winStreak       int
		lossStreak      int
		winSum, lossSum float64
	)
	for _, t := range trades {
		pl := t.RealizedPnL
		m.NetProfit += pl
		m.TotalCommission += t.Commission
		holdTotal += t.HoldTime
		switch {
		case pl > 0:
			m.WinningTrades++
			winSum += pl
			if pl > m.LargestWin {
				m.LargestWin = pl
			}
			winStreak++
			lossStreak = 0
		case pl < 0:
			m.LosingTrades++
			lossSum += pl
			if pl < m.LargestLoss {
				m.LargestLoss = pl
			}
			lossStreak++
			winStreak = 0
		default:
			winStreak, lossStreak = 0, 0
		}
		if winStreak > m.MaxConsecutiveWins {
			m.MaxConsecutiveWins = winStreak
		}
		if lossStreak > m.MaxConsecutiveLosses {
			m.MaxConsecutiveLosses = lossStreak
		}
	}

	m.GrossProfit = winSum
	m.GrossLoss = math.Abs(lossSum)
	m.WinRate = calculateWinRate(m.WinningTrades, m.TotalTrades)
	m.ProfitFactor = calculateProfitFactor(m.GrossProfit, m.GrossLoss)
	m.Expectancy = m.NetProfit / float64(m.TotalTrades)
	m.AverageHoldTime = holdTotal / time.Duration(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AverageWin = winSum / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = lossSum / float64(m.LosingTrades)
	}
}

func calculateAnnualizedReturn(totalReturn float64, periods int, af float64) float64 {
	if periods <= 0 {
		return 0
	}
	growth := 1 + totalReturn
	if growth <= 0 {
		return -1
	}
	return math.Pow(growth, af/float64(periods)) - 1
}

func calculateSharpeRatio(returns []float64, riskFreeRate, af float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	std := stddev(returns)
	if std == 0 {
		return 0
	}
	return (average(returns) - riskFreeRate/af) / std * math.Sqrt(af)
}

// calculateSortinoRatio uses the spread of returns below the per-period
// risk-free rate as its denominator.
func calculateSortinoRatio(returns []float64, riskFreeRate, af float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	threshold := riskFreeRate / af
	downside := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r < threshold {
			downside = append(downside, r)
		}
	}
	std := stddev(downside)
	if std == 0 {
		return 0
	}
	return (average(returns) - threshold) / std * math.Sqrt(af)
}

func calculateMaxDrawdown(curve EquityCurve) float64 {
	maxDD := 0.0
	peak := 0.0
	for _, p := range curve {
		if p.Value > peak {
			peak = p.Value
		}
		if peak <= 0 {
			continue
		}
		drawdown := (peak - p.Value) / peak
		if drawdown > maxDD {
			maxDD = drawdown
		}
	}
	return math.Min(maxDD, 1)
}

func calculateProfitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return Unbounded
		}
		return 0
	}
	return grossProfit / grossLoss
}

// calculateVaR returns the historical value at risk and conditional value at
// risk at the given confidence level, both as positive loss fractions.
func calculateVaR(returns []float64, level float64) (float64, float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	sorted := append([]float64{}, returns...)
	sort.Float64s(sorted)
	index := int(math.Floor((1.0 - level) * float64(len(sorted))))
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	valueAtRisk := math.Abs(sorted[index])
	if index == 0 {
		return valueAtRisk, valueAtRisk
	}
	tail := 0.0
	for _, r := range sorted[:index] {
		tail += math.Abs(r)
	}
	return valueAtRisk, tail / float64(index)
}

func calculateOmegaRatio(returns []float64, threshold float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	gains, losses := 0.0, 0.0
	for _, r := range returns {
		if r > threshold {
			gains += r - threshold
		} else {
			losses += threshold - r
		}
	}
	if losses == 0 {
		if gains > 0 {
			return Unbounded
		}
		return 0
	}
	return gains / losses
}

func calculateUlcerIndex(curve EquityCurve) float64 {
	if len(curve) == 0 {
		return 0
	}
	sum, peak := 0.0, 0.0
	for _, p := range curve {
		if p.Value > peak {
			peak = p.Value
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - p.Value) / peak
		sum += dd * dd
	}
	return math.Sqrt(sum/float64(len(curve))) * 100
}

func calculateWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	return mean / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := average(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
