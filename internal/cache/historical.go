// Package cache provides a bounded, FIFO-evicting store of historical candle series.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/yourusername/tradelab/internal/datasource"
	"github.com/yourusername/tradelab/internal/logger"
	"github.com/yourusername/tradelab/internal/metrics"
	"github.com/yourusername/tradelab/internal/models"
)

// DefaultMaxEntries bounds the cache when no size is configured
const DefaultMaxEntries = 100

// Key identifies one cached series. Ranges are matched exactly.
type Key struct {
	Symbol     string
	Resolution models.Resolution
	Start      time.Time
	End        time.Time
}

// String returns string representation of cache key
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%d:%d", k.Symbol, k.Resolution, k.Start.UnixNano(), k.End.UnixNano())
}

// Stats reports cache effectiveness
type Stats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// HitRatio returns hits / (hits + misses), 0 when unused
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// HistoricalCache maps exact (symbol, resolution, start, end) tuples to candle
// series. When full it evicts the oldest inserted entry; reads do not refresh
// an entry's position. Concurrent misses for one key share a single load.
type HistoricalCache struct {
	source     datasource.Source
	maxEntries int
	log        *logger.DataLogger

	mu      sync.Mutex
	entries *gocache.Cache
	order   *list.List // oldest first, values are key strings
	index   map[string]*list.Element
	hits    uint64
	misses  uint64

	loads singleflight.Group
}

// NewHistoricalCache creates a cache in front of source
func NewHistoricalCache(source datasource.Source, maxEntries int, log *logrus.Logger) *HistoricalCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if log == nil {
		log = logrus.New()
	}
	return &HistoricalCache{
		source:     source,
		maxEntries: maxEntries,
		log:        logger.NewDataLogger(log),
		entries:    gocache.New(gocache.NoExpiration, 0),
		order:      list.New(),
		index:      make(map[string]*list.Element),
	}
}

// GetOrLoad returns the cached series or fetches and stores it. Source errors
// are returned wrapped in a datasource.LoadError and are not cached.
// Concurrent misses for a key share one fetch, which runs detached from any
// single caller's cancellation; a cancelled caller stops waiting and gets its
// context error while the others still receive the series.
func (c *HistoricalCache) GetOrLoad(ctx context.Context, symbol string, resolution models.Resolution, start, end time.Time) (models.CandleSeries, error) {
	key := Key{Symbol: symbol, Resolution: resolution, Start: start, End: end}.String()

	if series, ok := c.get(key); ok {
		return series, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.loads.DoChan(key, func() (any, error) {
		// A concurrent loader may have filled the slot between get and DoChan
		if series, ok := c.peek(key); ok {
			return series, nil
		}
		series, err := c.source.Fetch(loadCtx, symbol, start, end, resolution)
		if err != nil {
			return models.CandleSeries{}, &datasource.LoadError{Source: c.source.Name(), Symbol: symbol, Err: err}
		}
		c.put(key, series)
		return series, nil
	})

	select {
	case <-ctx.Done():
		return models.CandleSeries{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.CandleSeries{}, res.Err
		}
		return res.Val.(models.CandleSeries), nil
	}
}

func (c *HistoricalCache) get(key string) (models.CandleSeries, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, found := c.entries.Get(key); found {
		c.hits++
		metrics.RecordCacheHit()
		return v.(models.CandleSeries), true
	}
	c.misses++
	metrics.RecordCacheMiss()
	return models.CandleSeries{}, false
}

func (c *HistoricalCache) peek(key string) (models.CandleSeries, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, found := c.entries.Get(key); found {
		return v.(models.CandleSeries), true
	}
	return models.CandleSeries{}, false
}

func (c *HistoricalCache) put(key string, series models.CandleSeries) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.index[key]; !exists {
		for c.order.Len() >= c.maxEntries {
			oldest := c.order.Front()
			oldKey := c.order.Remove(oldest).(string)
			delete(c.index, oldKey)
			c.entries.Delete(oldKey)
			c.log.LogCacheEviction(oldKey, c.order.Len())
		}
		c.index[key] = c.order.PushBack(key)
	}
	c.entries.Set(key, series, gocache.NoExpiration)
	metrics.UpdateCacheEntries(c.order.Len())
}

// Len returns the number of cached series
func (c *HistoricalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns cache statistics
func (c *HistoricalCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: c.order.Len()}
}

// Purge drops every entry and resets counters
func (c *HistoricalCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Flush()
	c.order.Init()
	c.index = make(map[string]*list.Element)
	c.hits = 0
	c.misses = 0
	metrics.UpdateCacheEntries(0)
}
