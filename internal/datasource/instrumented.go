package datasource

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/tradelab/internal/logger"
	"github.com/yourusername/tradelab/internal/metrics"
	"github.com/yourusername/tradelab/internal/models"
)

// instrumentedSource records fetch latency, error codes and a log line per fetch
type instrumentedSource struct {
	Source
	log *logger.DataLogger
}

// Instrument wraps src with logging and prometheus metrics
func Instrument(src Source, log *logrus.Logger) Source {
	return &instrumentedSource{Source: src, log: logger.NewDataLogger(log)}
}

func (s *instrumentedSource) Fetch(ctx context.Context, symbol string, start, end time.Time, resolution models.Resolution) (models.CandleSeries, error) {
	began := time.Now()
	series, err := s.Source.Fetch(ctx, symbol, start, end, resolution)
	elapsed := time.Since(began)
	metrics.RecordDataSourceFetch(s.Name(), elapsed.Seconds())

	if err != nil {
		code := ErrCodeUnknown
		var dsErr DataSourceError
		if errors.As(err, &dsErr) {
			code = dsErr.Code
		}
		metrics.RecordDataSourceError(s.Name(), code)
		s.log.WithError(err).WithFields(logrus.Fields{
			"source": s.Name(),
			"symbol": symbol,
			"code":   code,
		}).Warn("Candle fetch failed")
		return series, err
	}

	s.log.LogFetch(s.Name(), symbol, string(resolution), start, end, series.Len(), elapsed)
	return series, nil
}
