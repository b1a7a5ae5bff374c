package candles

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/candle-forge/internal/logger"
	"github.com/yourusername/candle-forge/internal/metrics"
	"github.com/yourusername/candle-forge/internal/models"
	"github.com/yourusername/candle-forge/internal/repository"
)

// gapFactor is the multiple of the nominal interval beyond which the
// spacing between adjacent candles counts as a gap.
const gapFactor = 1.5

// minCoverage is the fraction of expected candles below which a range is
// considered unusable for simulation.
const minCoverage = 0.5

// Fetcher pulls candles from a remote source when the store has holes.
type Fetcher interface {
	FetchKlines(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) ([]models.Candle, error)
}

// Gap describes a hole in a candle series.
type Gap struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Missing int       `json:"missing"`
}

// Provider assembles clean candle series from the store, falling back to
// the remote fetcher for ranges the store does not cover. Series handed
// out are deduplicated, strictly ascending and validated bar by bar.
type Provider struct {
	repo      repository.CandleRepository
	fetcher   Fetcher
	cache     *SeriesCache
	runLogger *logger.RunLogger
	log       *logrus.Entry
}

// NewProvider creates a candle provider. fetcher may be nil for
// store-only operation.
func NewProvider(repo repository.CandleRepository, fetcher Fetcher, seriesCache *SeriesCache, baseLogger *logrus.Logger) *Provider {
	return &Provider{
		repo:      repo,
		fetcher:   fetcher,
		cache:     seriesCache,
		runLogger: logger.NewRunLogger(baseLogger),
		log:       baseLogger.WithField("component", "candles"),
	}
}

// Load returns the candle series for [start, end), sorted ascending with
// duplicates removed. Gaps are logged but tolerated as long as overall
// coverage stays above the usable threshold; below it the range is
// rejected with ErrDataUnavailable.
func (p *Provider) Load(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) ([]models.Candle, error) {
	interval, err := timeframe.Duration()
	if err != nil {
		return nil, err
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start must be before end", models.ErrInvalidParameters)
	}

	key := SeriesKey{Symbol: symbol, Timeframe: timeframe, Start: start, End: end}
	if p.cache != nil {
		if series := p.cache.Get(key); series != nil {
			return series, nil
		}
	}

	loadStart := time.Now()
	stored, err := p.repo.GetRange(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load candles from store: %w", err)
	}

	expected := int(end.Sub(start) / interval)
	if len(stored) < expected && p.fetcher != nil {
		fetched, ferr := p.fetcher.FetchKlines(ctx, symbol, timeframe, start, end)
		if ferr != nil {
			p.log.WithError(ferr).WithFields(logrus.Fields{
				"symbol":    symbol,
				"timeframe": timeframe,
			}).Warn("Remote fetch failed, continuing with stored candles")
		} else if len(fetched) > 0 {
			if uerr := p.repo.UpsertBatch(ctx, symbol, timeframe, fetched); uerr != nil {
				p.log.WithError(uerr).Warn("Failed to persist fetched candles")
			}
			stored = append(stored, fetched...)
		}
	}

	series, err := Normalize(stored)
	if err != nil {
		return nil, err
	}

	for _, gap := range DetectGaps(series, interval) {
		p.runLogger.LogDataGap(symbol, string(timeframe),
			gap.Start.UTC().Format(time.RFC3339), gap.End.UTC().Format(time.RFC3339), gap.Missing)
	}

	if expected > 0 && float64(len(series))/float64(expected) < minCoverage {
		return nil, fmt.Errorf("%w: %d of %d expected candles for %s %s",
			models.ErrDataUnavailable, len(series), expected, symbol, timeframe)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: no candles for %s %s", models.ErrDataUnavailable, symbol, timeframe)
	}

	metrics.CandleLoadDuration.Observe(time.Since(loadStart).Seconds())

	if p.cache != nil {
		p.cache.Set(key, series)
	}
	return series, nil
}

// Availability summarizes stored coverage for a requested range
type Availability struct {
	Stored   int64   `json:"stored"`
	Expected int64   `json:"expected"`
	Coverage float64 `json:"coverage"`
	Usable   bool    `json:"usable"`
}

// CheckAvailability reports whether a range has enough stored candles to
// simulate against, without loading the full series.
func (p *Provider) CheckAvailability(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) (Availability, error) {
	interval, err := timeframe.Duration()
	if err != nil {
		return Availability{}, err
	}

	count, err := p.repo.CountRange(ctx, symbol, timeframe, start, end)
	if err != nil {
		return Availability{}, fmt.Errorf("failed to count candles: %w", err)
	}

	avail := Availability{Stored: count, Expected: int64(end.Sub(start) / interval)}
	if avail.Expected > 0 {
		avail.Coverage = float64(avail.Stored) / float64(avail.Expected)
	}
	avail.Usable = avail.Coverage >= minCoverage

	if !avail.Usable {
		return avail, fmt.Errorf("%w: %d of %d expected candles for %s %s",
			models.ErrDataUnavailable, count, avail.Expected, symbol, timeframe)
	}
	return avail, nil
}

// Normalize sorts candles ascending, drops duplicate timestamps keeping
// the last occurrence, and validates every bar.
func Normalize(candles []models.Candle) ([]models.Candle, error) {
	if len(candles) == 0 {
		return nil, nil
	}

	sorted := make([]models.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	// Keep the last occurrence: a re-delivered bar supersedes the earlier one.
	out := sorted[:0]
	for _, c := range sorted {
		if len(out) > 0 && out[len(out)-1].Timestamp.Equal(c.Timestamp) {
			out[len(out)-1] = c
			continue
		}
		out = append(out, c)
	}

	for _, c := range out {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrDataUnavailable, err)
		}
	}
	return out, nil
}

// DetectGaps finds holes in an ascending candle series where adjacent
// timestamps are spaced more than gapFactor times the nominal interval.
func DetectGaps(candles []models.Candle, interval time.Duration) []Gap {
	var gaps []Gap
	for i := 1; i < len(candles); i++ {
		delta := candles[i].Timestamp.Sub(candles[i-1].Timestamp)
		if float64(delta) > gapFactor*float64(interval) {
			gaps = append(gaps, Gap{
				Start:   candles[i-1].Timestamp.Add(interval),
				End:     candles[i].Timestamp,
				Missing: int(delta/interval) - 1,
			})
		}
	}
	return gaps
}
