package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// BacktestLogger provides dedicated logging for replay and orchestration runs.
type BacktestLogger struct {
	*logrus.Entry
}

// NewBacktestLogger creates a new backtest logger.
func NewBacktestLogger(baseLogger *logrus.Logger) *BacktestLogger {
	return &BacktestLogger{
		Entry: baseLogger.WithField("component", "backtest"),
	}
}

// LogRunStarted logs the start of a replay run.
func (bl *BacktestLogger) LogRunStarted(runID, strategyName, symbol string, candles int, initialBalance float64) {
	bl.WithFields(logrus.Fields{
		"run_id":          runID,
		"strategy_name":   strategyName,
		"symbol":          symbol,
		"candles":         candles,
		"initial_balance": initialBalance,
	}).Info("Starting backtest run")
}

// LogRunCompleted logs a finished replay run.
func (bl *BacktestLogger) LogRunCompleted(runID, strategyName string, trades int, finalEquity, totalReturn float64, duration time.Duration) {
	bl.WithFields(logrus.Fields{
		"run_id":        runID,
		"strategy_name": strategyName,
		"trades":        trades,
		"final_equity":  finalEquity,
		"total_return":  totalReturn,
		"duration_ms":   duration.Milliseconds(),
	}).Info("Backtest run completed")
}

// LogRunFailed logs an aborted replay run.
func (bl *BacktestLogger) LogRunFailed(runID, strategyName string, step int, err error) {
	bl.WithFields(logrus.Fields{
		"run_id":        runID,
		"strategy_name": strategyName,
		"step":          step,
	}).WithError(err).Error("Backtest run aborted")
}

// LogSignalDropped logs a signal the engine could not act on.
func (bl *BacktestLogger) LogSignalDropped(runID, kind, symbol string, step int, err error) {
	bl.WithFields(logrus.Fields{
		"run_id": runID,
		"kind":   kind,
		"symbol": symbol,
		"step":   step,
		"reason": err.Error(),
	}).Warn("Dropping invalid signal")
}

// LogOptimizationCompleted logs the outcome of a parameter search.
func (bl *BacktestLogger) LogOptimizationCompleted(strategyName, method, objective string, combinations, failed int, bestScore float64, best map[string]any) {
	bl.WithFields(logrus.Fields{
		"strategy_name": strategyName,
		"method":        method,
		"objective":     objective,
		"combinations":  combinations,
		"failed":        failed,
		"best_score":    bestScore,
		"best_params":   best,
	}).Info("Optimization completed")
}

// LogMonteCarloCompleted logs a finished resampling run.
func (bl *BacktestLogger) LogMonteCarloCompleted(iterations, trades int, meanReturn, ruinProbability float64) {
	bl.WithFields(logrus.Fields{
		"iterations":          iterations,
		"trades":              trades,
		"mean_return":         meanReturn,
		"probability_of_ruin": ruinProbability,
	}).Info("Monte Carlo simulation completed")
}

// LogWalkForwardWindow logs a completed walk-forward window.
func (bl *BacktestLogger) LogWalkForwardWindow(index int, inSampleScore, outOfSampleScore float64, params map[string]any) {
	bl.WithFields(logrus.Fields{
		"window":              index,
		"in_sample_score":     inSampleScore,
		"out_of_sample_score": outOfSampleScore,
		"params":              params,
	}).Info("Walk-forward window evaluated")
}
