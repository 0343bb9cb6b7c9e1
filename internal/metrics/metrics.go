// Package metrics provides the Prometheus registry for the backtest engine.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tradelab"

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	CandlesProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "candles_processed_total",
		Help:      "Total number of candles replayed",
	})
	SignalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signals_total",
		Help:      "Strategy signals by kind and outcome",
	}, []string{"kind", "outcome"})
	OrdersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_total",
		Help:      "Simulated orders by type and final status",
	}, []string{"type", "status"})
	PositionExitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "position_exits_total",
		Help:      "Closed positions by exit reason",
	}, []string{"reason"})
)

// Histogram metrics
var (
	StrategyEvaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "strategy_evaluation_duration_seconds",
		Help:      "Duration of a single strategy analyze call in seconds",
		Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	})
	BacktestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backtest_duration_seconds",
		Help:      "Duration of backtest runs in seconds",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 600, 1800},
	}, []string{"method"})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(CandlesProcessedTotal)
		registry.MustRegister(SignalsTotal)
		registry.MustRegister(OrdersTotal)
		registry.MustRegister(PositionExitsTotal)

		registry.MustRegister(StrategyEvaluationDuration)
		registry.MustRegister(BacktestDuration)

		// Register backtest metrics
		registry.MustRegister(BacktestRunsTotal)
		registry.MustRegister(BacktestCompositeScore)
		registry.MustRegister(OptimizationBestScore)
		registry.MustRegister(MonteCarloRuinProbability)

		// Register data metrics
		registry.MustRegister(CacheRequestsTotal)
		registry.MustRegister(CacheEntries)
		registry.MustRegister(DataSourceFetchDuration)
		registry.MustRegister(DataSourceErrorsTotal)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordCandles adds n replayed candles.
func RecordCandles(n int) {
	CandlesProcessedTotal.Add(float64(n))
}

// RecordSignal records a strategy signal. outcome is "accepted", "dropped" or "ignored".
func RecordSignal(kind, outcome string) {
	SignalsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordOrder records an order reaching a terminal or queued state.
func RecordOrder(orderType, status string) {
	OrdersTotal.WithLabelValues(orderType, status).Inc()
}

// RecordPositionExit records a closed position.
func RecordPositionExit(reason string) {
	PositionExitsTotal.WithLabelValues(reason).Inc()
}

// RecordStrategyEvaluation records a strategy analyze call.
func RecordStrategyEvaluation(durationSeconds float64) {
	StrategyEvaluationDuration.Observe(durationSeconds)
}

// RecordBacktestDuration records backtest duration.
func RecordBacktestDuration(method string, durationSeconds float64) {
	BacktestDuration.WithLabelValues(method).Observe(durationSeconds)
}
