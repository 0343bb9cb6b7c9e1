package metrics

import "github.com/prometheus/client_golang/prometheus"

// Backtest counter vectors
var (
	BacktestRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backtest_runs_total",
		Help:      "Total number of backtest runs by method and status",
	}, []string{"method", "status"})
)

// Backtest histogram vectors
var (
	BacktestCompositeScore = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backtest_composite_score",
		Help:      "Composite scores from aggregated backtest verdicts by strategy",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	}, []string{"strategy"})
)

// Backtest gauge vectors
var (
	OptimizationBestScore = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "optimization_best_score",
		Help:      "Best objective value found by the latest optimization per strategy",
	}, []string{"strategy", "objective"})
	MonteCarloRuinProbability = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "monte_carlo_ruin_probability",
		Help:      "Probability of ruin from the latest Monte Carlo resample per strategy",
	}, []string{"strategy"})
)

// RecordBacktestRun records a backtest run event.
// method should be one of: "replay", "optimize", "monte_carlo", "walk_forward"
// status should be one of: "success", "failure", "cancelled"
func RecordBacktestRun(method, status string) {
	BacktestRunsTotal.WithLabelValues(method, status).Inc()
}

// RecordCompositeScore records a composite score from an aggregated verdict.
func RecordCompositeScore(strategyName string, score float64) {
	BacktestCompositeScore.WithLabelValues(strategyName).Observe(score)
}

// UpdateOptimizationBest updates the best objective gauge for a strategy.
func UpdateOptimizationBest(strategyName, objective string, score float64) {
	OptimizationBestScore.WithLabelValues(strategyName, objective).Set(score)
}

// UpdateRuinProbability updates the Monte Carlo ruin gauge for a strategy.
func UpdateRuinProbability(strategyName string, probability float64) {
	MonteCarloRuinProbability.WithLabelValues(strategyName).Set(probability)
}
