// Package indicators computes rolling technical indicators over a bounded
// window of candles. A Window is a pure function of the candles it was built
// from and is discarded after each replay step.
package indicators

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"github.com/yourusername/tradelab/internal/models"
)

// DefaultLookback is the number of trailing candles a window covers
const DefaultLookback = 200

// Window holds the trailing OHLC arrays of a replay step and memoizes
// indicator values requested by strategies during that step.
type Window struct {
	closes []float64
	highs  []float64
	lows   []float64
	memo   map[string]float64
}

// NewWindow builds a window over at most lookback candles ending at end (inclusive)
func NewWindow(candles []models.Candle, end, lookback int) *Window {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	if end >= len(candles) {
		end = len(candles) - 1
	}
	start := end - lookback + 1
	if start < 0 {
		start = 0
	}
	n := end - start + 1
	if n < 0 {
		n = 0
	}
	w := &Window{
		closes: make([]float64, n),
		highs:  make([]float64, n),
		lows:   make([]float64, n),
		memo:   make(map[string]float64),
	}
	for i := 0; i < n; i++ {
		c := candles[start+i]
		w.closes[i] = c.Close
		w.highs[i] = c.High
		w.lows[i] = c.Low
	}
	return w
}

// Len returns the number of candles in the window
func (w *Window) Len() int {
	return len(w.closes)
}

// Closes returns a copy of the close prices
func (w *Window) Closes() []float64 {
	out := make([]float64, len(w.closes))
	copy(out, w.closes)
	return out
}

// SMA returns the latest simple moving average, NaN when the window is too short
func (w *Window) SMA(period int) float64 {
	return w.cached(fmt.Sprintf("sma:%d", period), func() float64 {
		if period <= 0 || len(w.closes) < period {
			return math.NaN()
		}
		return last(talib.Sma(w.closes, period))
	})
}

// EMA returns the latest exponential moving average
func (w *Window) EMA(period int) float64 {
	return w.cached(fmt.Sprintf("ema:%d", period), func() float64 {
		if period <= 0 || len(w.closes) < period {
			return math.NaN()
		}
		return last(talib.Ema(w.closes, period))
	})
}

// RSI returns the latest relative strength index in [0, 100]
func (w *Window) RSI(period int) float64 {
	return w.cached(fmt.Sprintf("rsi:%d", period), func() float64 {
		if period <= 0 || len(w.closes) <= period {
			return math.NaN()
		}
		return last(talib.Rsi(w.closes, period))
	})
}

// ATR returns the latest average true range
func (w *Window) ATR(period int) float64 {
	return w.cached(fmt.Sprintf("atr:%d", period), func() float64 {
		if period <= 0 || len(w.closes) <= period {
			return math.NaN()
		}
		return last(talib.Atr(w.highs, w.lows, w.closes, period))
	})
}

// Bands is one Bollinger band reading
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger returns the latest Bollinger bands with an SMA basis
func (w *Window) Bollinger(period int, dev float64) Bands {
	if period <= 0 || len(w.closes) < period {
		nan := math.NaN()
		return Bands{Upper: nan, Middle: nan, Lower: nan}
	}
	upper, middle, lower := talib.BBands(w.closes, period, dev, dev, talib.SMA)
	return Bands{Upper: last(upper), Middle: last(middle), Lower: last(lower)}
}

// MACD returns the latest MACD line, signal line and histogram
func (w *Window) MACD(fast, slow, signal int) (float64, float64, float64) {
	if fast <= 0 || slow <= fast || signal <= 0 || len(w.closes) < slow+signal {
		nan := math.NaN()
		return nan, nan, nan
	}
	macd, sig, hist := talib.Macd(w.closes, fast, slow, signal)
	return last(macd), last(sig), last(hist)
}

// Crossover reports whether the fast SMA crossed above (1) or below (-1)
// the slow SMA on the latest bar, 0 otherwise.
func (w *Window) Crossover(fast, slow int) int {
	if fast <= 0 || slow <= 0 || len(w.closes) < slow+1 || len(w.closes) < fast+1 {
		return 0
	}
	fastMA := talib.Sma(w.closes, fast)
	slowMA := talib.Sma(w.closes, slow)
	n := len(w.closes)
	prevDiff := fastMA[n-2] - slowMA[n-2]
	currDiff := fastMA[n-1] - slowMA[n-1]
	switch {
	case prevDiff <= 0 && currDiff > 0:
		return 1
	case prevDiff >= 0 && currDiff < 0:
		return -1
	default:
		return 0
	}
}

func (w *Window) cached(key string, compute func() float64) float64 {
	if v, ok := w.memo[key]; ok {
		return v
	}
	v := compute()
	w.memo[key] = v
	return v
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}
