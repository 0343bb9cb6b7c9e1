package backtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/tradelab/internal/datasource"
	"github.com/yourusername/tradelab/internal/strategy"
)

var (
	// ErrDataLoad matches any failure to obtain or validate historical data
	ErrDataLoad = datasource.ErrDataLoad
	// ErrStrategyFault matches a strategy error or panic that aborted a run
	ErrStrategyFault = errors.New("strategy fault")
	// ErrInvalidSignal matches signals the engine dropped
	ErrInvalidSignal = strategy.ErrInvalidSignal
	// ErrUnsupportedMethod is returned for unknown optimization methods
	ErrUnsupportedMethod = errors.New("unsupported optimization method")
	// ErrOrderRejected is returned by the simulator when it declines a fill
	ErrOrderRejected = errors.New("order rejected")
	// ErrNoCandles is returned when a replay is given an empty series
	ErrNoCandles = errors.New("no candles to replay")
	// ErrOrderNotFound is returned when cancelling an unknown or closed order
	ErrOrderNotFound = errors.New("order not found")
)

// DataLoadError carries the source and symbol of a failed load
type DataLoadError = datasource.LoadError

// StrategyFaultError records where a strategy failed
type StrategyFaultError struct {
	Strategy string
	Step     int
	Time     time.Time
	Err      error
}

func (e *StrategyFaultError) Error() string {
	return fmt.Sprintf("strategy %s faulted at step %d (%s): %v",
		e.Strategy, e.Step, e.Time.Format(time.RFC3339), e.Err)
}

func (e *StrategyFaultError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStrategyFault) match
func (e *StrategyFaultError) Is(target error) bool {
	return target == ErrStrategyFault
}
