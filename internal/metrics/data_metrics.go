package metrics

import "github.com/prometheus/client_golang/prometheus"

// Data layer metrics
var (
	CacheRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "data_cache_requests_total",
		Help:      "Historical data cache lookups by result",
	}, []string{"result"})

	CacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "data_cache_entries",
		Help:      "Number of candle series held in the historical data cache",
	})

	DataSourceFetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "data_source_fetch_duration_seconds",
		Help:      "Duration of candle fetches by source",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})

	DataSourceErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "data_source_errors_total",
		Help:      "Failed candle fetches by source and error code",
	}, []string{"source", "code"})
)

// RecordCacheHit records a cache hit.
func RecordCacheHit() {
	CacheRequestsTotal.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a cache miss.
func RecordCacheMiss() {
	CacheRequestsTotal.WithLabelValues("miss").Inc()
}

// UpdateCacheEntries sets the cache size gauge.
func UpdateCacheEntries(n int) {
	CacheEntries.Set(float64(n))
}

// RecordDataSourceFetch records a fetch duration.
func RecordDataSourceFetch(source string, durationSeconds float64) {
	DataSourceFetchDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordDataSourceError records a failed fetch.
func RecordDataSourceError(source, code string) {
	DataSourceErrorsTotal.WithLabelValues(source, code).Inc()
}
