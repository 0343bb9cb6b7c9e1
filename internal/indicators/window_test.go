package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/tradelab/internal/models"
)

func makeCandles(closes ...float64) []models.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100,
		}
	}
	return out
}

func TestNewWindowBoundsLookback(t *testing.T) {
	closes := make([]float64, 300)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	candles := makeCandles(closes...)

	w := NewWindow(candles, 299, 200)
	require.Equal(t, 200, w.Len())
	got := w.Closes()
	assert.Equal(t, 101.0, got[0])
	assert.Equal(t, 300.0, got[len(got)-1])

	early := NewWindow(candles, 9, 200)
	assert.Equal(t, 10, early.Len())
}

func TestSMA(t *testing.T) {
	w := NewWindow(makeCandles(1, 2, 3, 4, 5), 4, 200)
	assert.InDelta(t, 4.0, w.SMA(3), 1e-9)
	assert.True(t, math.IsNaN(w.SMA(10)))
}

func TestRSIAllGainsIsHundred(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	w := NewWindow(makeCandles(closes...), len(closes)-1, 200)
	assert.InDelta(t, 100.0, w.RSI(14), 1e-6)
	assert.True(t, math.IsNaN(NewWindow(makeCandles(1, 2, 3), 2, 200).RSI(14)))
}

func TestATRConstantRange(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 50
	}
	w := NewWindow(makeCandles(closes...), len(closes)-1, 200)
	assert.InDelta(t, 2.0, w.ATR(14), 1e-6)
}

func TestCrossover(t *testing.T) {
	down := []float64{10, 10, 10, 10, 10, 9, 8, 7, 6, 20}
	w := NewWindow(makeCandles(down...), len(down)-1, 200)
	assert.Equal(t, 1, w.Crossover(2, 5))

	flat := []float64{10, 10, 10, 10, 10, 10, 10}
	w = NewWindow(makeCandles(flat...), len(flat)-1, 200)
	assert.Equal(t, 0, w.Crossover(2, 5))
}

func TestSMAIsMemoized(t *testing.T) {
	w := NewWindow(makeCandles(1, 2, 3, 4, 5), 4, 200)
	first := w.SMA(2)
	w.closes[len(w.closes)-1] = 1000
	assert.Equal(t, first, w.SMA(2))
}
