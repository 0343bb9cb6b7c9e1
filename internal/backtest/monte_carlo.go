package backtest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/tradelab/internal/logger"
	"github.com/yourusername/tradelab/internal/metrics"
	"github.com/yourusername/tradelab/internal/models"
)

const (
	defaultIterations    = 1000
	defaultRuinThreshold = 0.5
)

var confidenceLevels = []float64{0.90, 0.95, 0.99}

// MonteCarloConfig configures monte carlo simulation
type MonteCarloConfig struct {
	Iterations int   `json:"iterations"`
	Seed       int64 `json:"seed"`
	// RuinThreshold is the fraction of the initial balance an equity path
	// must touch to count as ruined
	RuinThreshold float64 `json:"ruin_threshold"`
	Workers       int     `json:"workers"`
	// Strategy labels logs and the ruin gauge
	Strategy string         `json:"strategy,omitempty"`
	Observer Observer       `json:"-"`
	Logger   *logrus.Logger `json:"-"`
}

// DistributionStats summarizes a sample
type DistributionStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// ConfidenceInterval is a two-sided percentile band
type ConfidenceInterval struct {
	Level float64 `json:"level"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// MonteCarloIteration is the outcome of one reordering of the trades
type MonteCarloIteration struct {
	TotalReturn float64 `json:"total_return"`
	MaxDrawdown float64 `json:"max_drawdown"`
	FinalEquity float64 `json:"final_equity"`
	Ruined      bool    `json:"ruined"`
}

// MonteCarloResult represents monte carlo outcomes
type MonteCarloResult struct {
	Iterations          int                   `json:"iterations"`
	Trades              int                   `json:"trades"`
	Seed                int64                 `json:"seed"`
	Returns             DistributionStats     `json:"returns"`
	Drawdowns           DistributionStats     `json:"drawdowns"`
	ConfidenceIntervals []ConfidenceInterval  `json:"confidence_intervals"`
	VaR95               float64               `json:"var_95"`
	VaR99               float64               `json:"var_99"`
	ProbabilityOfProfit float64               `json:"probability_of_profit"`
	ProbabilityOfRuin   float64               `json:"probability_of_ruin"`
	ExpectedDrawdown    float64               `json:"expected_drawdown"`
	Runs                []MonteCarloIteration `json:"runs,omitempty"`
}

// RunMonteCarlo reorders the realized trade PnLs of a run many times and
// measures the spread of outcomes. Iteration i draws its permutation from a
// seed taken i-th from the master source, so results do not depend on the
// worker count.
func RunMonteCarlo(ctx context.Context, trades []models.Trade, initialBalance float64, cfg MonteCarloConfig) (MonteCarloResult, error) {
	if initialBalance <= 0 {
		return MonteCarloResult{}, fmt.Errorf("initial balance must be positive")
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = defaultIterations
	}
	if cfg.RuinThreshold <= 0 {
		cfg.RuinThreshold = defaultRuinThreshold
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}

	master := newRand(cfg.Seed)
	seeds := make([]int64, cfg.Iterations)
	for i := range seeds {
		seeds[i] = master.Int63()
	}
	pnls := make([]float64, len(trades))
	for i, t := range trades {
		pnls[i] = t.RealizedPnL
	}

	runs := make([]MonteCarloIteration, cfg.Iterations)
	var completed atomic.Int64
	every := int64(cfg.Iterations / 20)
	if every == 0 {
		every = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range runs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			runs[i] = simulatePath(pnls, initialBalance, cfg.RuinThreshold, seeds[i])
			if done := completed.Add(1); done%every == 0 || done == int64(cfg.Iterations) {
				emit(cfg.Observer, Event{Type: EventMonteCarloProgress, Method: "monte_carlo", Step: int(done), Total: cfg.Iterations})
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return MonteCarloResult{}, err
	}

	returns := make([]float64, len(runs))
	drawdowns := make([]float64, len(runs))
	profitable, ruined := 0, 0
	for i, r := range runs {
		returns[i] = r.TotalReturn
		drawdowns[i] = r.MaxDrawdown
		if r.TotalReturn > 0 {
			profitable++
		}
		if r.Ruined {
			ruined++
		}
	}

	n := float64(len(runs))
	result := MonteCarloResult{
		Iterations:          cfg.Iterations,
		Trades:              len(trades),
		Seed:                cfg.Seed,
		Returns:             describe(returns),
		Drawdowns:           describe(drawdowns),
		ConfidenceIntervals: CalculateConfidenceIntervals(returns, confidenceLevels),
		VaR95:               percentile(returns, 0.05),
		VaR99:               percentile(returns, 0.01),
		ProbabilityOfProfit: float64(profitable) / n,
		ProbabilityOfRuin:   float64(ruined) / n,
		Runs:                runs,
	}
	result.ExpectedDrawdown = result.Drawdowns.Mean

	if cfg.Strategy != "" {
		metrics.UpdateRuinProbability(cfg.Strategy, result.ProbabilityOfRuin)
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	logger.NewBacktestLogger(log).LogMonteCarloCompleted(result.Iterations, result.Trades, result.Returns.Mean, result.ProbabilityOfRuin)
	return result, nil
}

func simulatePath(pnls []float64, initial, ruinThreshold float64, seed int64) MonteCarloIteration {
	order := make([]float64, len(pnls))
	copy(order, pnls)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	equity, peak, maxDD := initial, initial, 0.0
	floor := ruinThreshold * initial
	ruined := false
	for _, pnl := range order {
		equity += pnl
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
		if equity <= floor {
			ruined = true
		}
	}
	return MonteCarloIteration{
		TotalReturn: (equity - initial) / initial,
		MaxDrawdown: math.Min(maxDD, 1),
		FinalEquity: equity,
		Ruined:      ruined,
	}
}

// CalculateConfidenceIntervals computes two-sided percentile bands
func CalculateConfidenceIntervals(distribution []float64, levels []float64) []ConfidenceInterval {
	out := make([]ConfidenceInterval, 0, len(levels))
	for _, level := range levels {
		p := (1.0 - level) / 2.0
		out = append(out, ConfidenceInterval{
			Level: level,
			Lower: percentile(distribution, p),
			Upper: percentile(distribution, 1.0-p),
		})
	}
	return out
}

// ToJSON exports monte carlo result without the per-iteration runs
func (m MonteCarloResult) ToJSON() string {
	m.Runs = nil
	data, _ := json.Marshal(m)
	return string(data)
}

func describe(values []float64) DistributionStats {
	if len(values) == 0 {
		return DistributionStats{}
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return DistributionStats{
		Mean:   average(values),
		Median: median,
		StdDev: stddev(values),
		Min:    sorted[0],
		Max:    sorted[n-1],
	}
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	valuesCopy := append([]float64{}, values...)
	sort.Float64s(valuesCopy)
	idx := int(math.Floor(p * float64(len(valuesCopy)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(valuesCopy) {
		idx = len(valuesCopy) - 1
	}
	return valuesCopy[idx]
}
