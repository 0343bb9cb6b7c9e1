package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// DataLogger logs candle loading and cache activity.
type DataLogger struct {
	*logrus.Entry
}

// NewDataLogger creates a new data logger.
func NewDataLogger(baseLogger *logrus.Logger) *DataLogger {
	return &DataLogger{
		Entry: baseLogger.WithField("component", "data"),
	}
}

// LogFetch logs a completed fetch from a data source.
func (dl *DataLogger) LogFetch(source, symbol, resolution string, start, end time.Time, candles int, duration time.Duration) {
	dl.WithFields(logrus.Fields{
		"source":      source,
		"symbol":      symbol,
		"resolution":  resolution,
		"start":       start.Format(time.RFC3339),
		"end":         end.Format(time.RFC3339),
		"candles":     candles,
		"duration_ms": duration.Milliseconds(),
	}).Info("Candles loaded")
}

// LogCacheEviction logs a FIFO eviction.
func (dl *DataLogger) LogCacheEviction(key string, size int) {
	dl.WithFields(logrus.Fields{
		"key":  key,
		"size": size,
	}).Debug("Evicted oldest cache entry")
}
