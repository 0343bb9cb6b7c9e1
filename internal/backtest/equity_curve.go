package backtest

import (
	"bytes"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// EquityPoint is one equity snapshot, taken after a replay step
type EquityPoint struct {
	Time     time.Time `json:"time"`
	Value    float64   `json:"value"`
	Peak     float64   `json:"peak"`
	Drawdown float64   `json:"drawdown"`
	StepPnL  float64   `json:"step_pnl"`
}

// EquityCurve is the time-series of equity snapshots of a run
type EquityCurve []EquityPoint

// Append adds a snapshot, carrying the running peak and drawdown forward
func (e *EquityCurve) Append(t time.Time, value float64) {
	point := EquityPoint{Time: t, Value: value, Peak: value}
	if n := len(*e); n > 0 {
		prev := (*e)[n-1]
		point.Peak = math.Max(prev.Peak, value)
		point.StepPnL = value - prev.Value
	}
	if point.Peak > 0 && value < point.Peak {
		point.Drawdown = (point.Peak - value) / point.Peak
	}
	*e = append(*e, point)
}

// Values returns the equity values in order
func (e EquityCurve) Values() []float64 {
	out := make([]float64, len(e))
	for i, p := range e {
		out[i] = p.Value
	}
	return out
}

// Final returns the last equity value, or 0 for an empty curve
func (e EquityCurve) Final() float64 {
	if len(e) == 0 {
		return 0
	}
	return e[len(e)-1].Value
}

// GetReturns calculates periodic returns from equity curve
func (e EquityCurve) GetReturns() []float64 {
	if len(e) < 2 {
		return []float64{}
	}
	returns := make([]float64, 0, len(e)-1)
	for i := 1; i < len(e); i++ {
		prev := e[i-1].Value
		curr := e[i].Value
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (curr-prev)/prev)
	}
	return returns
}

// GetVolatility calculates the population standard deviation of returns
func (e EquityCurve) GetVolatility() float64 {
	return stddev(e.GetReturns())
}

// MaxDrawdown returns the largest peak-to-trough decline as a fraction
func (e EquityCurve) MaxDrawdown() float64 {
	maxDD := 0.0
	for _, p := range e {
		if p.Drawdown > maxDD {
			maxDD = p.Drawdown
		}
	}
	return maxDD
}

// Downsample keeps at most n points, always including the first and last
func (e EquityCurve) Downsample(n int) EquityCurve {
	if n <= 0 || len(e) <= n {
		out := make(EquityCurve, len(e))
		copy(out, e)
		return out
	}
	if n == 1 {
		return EquityCurve{e[len(e)-1]}
	}
	out := make(EquityCurve, 0, n)
	stride := float64(len(e)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		out = append(out, e[int(math.Round(float64(i)*stride))])
	}
	return out
}

// MonthlyReturn is the equity change over one calendar month
type MonthlyReturn struct {
	Year   int        `json:"year"`
	Month  time.Month `json:"month"`
	Return float64    `json:"return"`
}

// MonthlyReturns groups the curve by calendar month. Each month's return is
// measured from the last value of the previous month.
func (e EquityCurve) MonthlyReturns() []MonthlyReturn {
	if len(e) < 2 {
		return nil
	}
	var out []MonthlyReturn
	base := e[0].Value
	year, month, _ := e[0].Time.Date()
	last := base
	for _, p := range e[1:] {
		y, m, _ := p.Time.Date()
		if y != year || m != month {
			out = append(out, MonthlyReturn{Year: year, Month: month, Return: ratio(last, base)})
			base = last
			year, month = y, m
		}
		last = p.Value
	}
	out = append(out, MonthlyReturn{Year: year, Month: month, Return: ratio(last, base)})
	return out
}

// ToCSV exports equity curve to CSV string
func (e EquityCurve) ToCSV() string {
	var buf bytes.Buffer
	buf.WriteString("time,value,peak,drawdown,step_pnl\n")
	for _, point := range e {
		buf.WriteString(point.Time.Format(time.RFC3339))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.Value))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.Peak))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.Drawdown))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.StepPnL))
		buf.WriteString("\n")
	}
	return buf.String()
}

// ToJSON exports equity curve to JSON string
func (e EquityCurve) ToJSON() string {
	data, _ := json.Marshal(e)
	return string(data)
}

func ratio(value, base float64) float64 {
	if base == 0 {
		return 0
	}
	return value/base - 1
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
