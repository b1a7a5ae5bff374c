// Package candles assembles validated candle series for the backtest engine.
package candles

import (
	"fmt"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/yourusername/candle-forge/internal/metrics"
	"github.com/yourusername/candle-forge/internal/models"
)

// SeriesKey identifies one cached candle range
type SeriesKey struct {
	Symbol    string
	Timeframe models.Timeframe
	Start     time.Time
	End       time.Time
}

// String returns string representation of the series key
func (k SeriesKey) String() string {
	return fmt.Sprintf("%s:%s:%d:%d", k.Symbol, k.Timeframe, k.Start.Unix(), k.End.Unix())
}

// SeriesCache provides in-memory caching for assembled candle series.
// Optimizer sweeps hit the same range thousands of times, so the hot
// path must not touch the database.
type SeriesCache struct {
	cache     *cache.Cache
	ttl       time.Duration
	mu        sync.RWMutex
	hitCount  uint64
	missCount uint64
}

// NewSeriesCache creates a new candle series cache
func NewSeriesCache(ttl, cleanupInterval time.Duration) *SeriesCache {
	return &SeriesCache{
		cache: cache.New(ttl, cleanupInterval),
		ttl:   ttl,
	}
}

// Get retrieves a cached series
func (sc *SeriesCache) Get(key SeriesKey) []models.Candle {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if result, found := sc.cache.Get(key.String()); found {
		sc.hitCount++
		sc.updateMetrics()
		if series, ok := result.([]models.Candle); ok {
			return series
		}
	}

	sc.missCount++
	sc.updateMetrics()
	return nil
}

// Set stores a series in cache
func (sc *SeriesCache) Set(key SeriesKey, series []models.Candle) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.cache.Set(key.String(), series, sc.ttl)
}

// Clear flushes the entire cache
func (sc *SeriesCache) Clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.cache.Flush()
	sc.hitCount = 0
	sc.missCount = 0
}

// Stats returns cache statistics
func (sc *SeriesCache) Stats() (hits, misses uint64, ratio float64) {
	hits = sc.hitCount
	misses = sc.missCount
	total := hits + misses
	if total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return
}

func (sc *SeriesCache) updateMetrics() {
	_, _, ratio := sc.Stats()
	metrics.CandleCacheHitRatio.Set(ratio)
}

// ItemCount returns the number of items in cache
func (sc *SeriesCache) ItemCount() int {
	return sc.cache.ItemCount()
}
