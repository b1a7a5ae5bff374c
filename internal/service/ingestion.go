// Package service orchestrates candle acquisition workflows.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/yourusername/candle-forge/internal/candles"
	"github.com/yourusername/candle-forge/internal/datasource"
	"github.com/yourusername/candle-forge/internal/metrics"
	"github.com/yourusername/candle-forge/internal/models"
	"github.com/yourusername/candle-forge/internal/repository"
)

// IngestionService pulls candles from remote sources into the store
type IngestionService struct {
	sources    []datasource.KlineSource
	candleRepo repository.CandleRepository
	stats      *IngestionStats
	logger     *log.Logger
	batchSize  int
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(
	sources []datasource.KlineSource,
	candleRepo repository.CandleRepository,
	logger *log.Logger,
	batchSize int,
) *IngestionService {
	if batchSize <= 0 {
		batchSize = 1000
	}

	return &IngestionService{
		sources:    sources,
		candleRepo: candleRepo,
		stats:      NewIngestionStats(),
		logger:     logger,
		batchSize:  batchSize,
	}
}

// IngestHistorical fetches and stores candles for one symbol and timeframe
// over [start, end). Candles are normalized before storage so the store
// only ever holds sorted, validated, deduplicated bars.
func (s *IngestionService) IngestHistorical(ctx context.Context, sourceName, symbol string, timeframe models.Timeframe, start, end time.Time) (*IngestionStats, error) {
	s.stats.Reset()
	startTime := time.Now()

	s.logger.Printf("Starting historical ingestion of %s %s from %s (%s to %s)",
		symbol, timeframe, sourceName, start.Format("2006-01-02"), end.Format("2006-01-02"))

	source, err := s.findSource(sourceName)
	if err != nil {
		return nil, err
	}

	fetched, err := source.FetchKlines(ctx, symbol, timeframe, start, end)
	if err != nil {
		s.stats.RecordError()
		return s.stats, fmt.Errorf("failed to fetch klines: %w", err)
	}
	s.stats.SetFetched(len(fetched))

	normalized, err := candles.Normalize(fetched)
	if err != nil {
		s.stats.RecordError()
		return s.stats, fmt.Errorf("fetched series failed validation: %w", err)
	}
	s.stats.RecordDropped(len(fetched) - len(normalized))

	for i := 0; i < len(normalized); i += s.batchSize {
		batchEnd := i + s.batchSize
		if batchEnd > len(normalized) {
			batchEnd = len(normalized)
		}

		if err := s.candleRepo.UpsertBatch(ctx, symbol, timeframe, normalized[i:batchEnd]); err != nil {
			s.stats.RecordError()
			s.logger.Printf("Error storing batch: %v", err)
			continue
		}
		s.stats.RecordStored(batchEnd - i)
	}

	metrics.RecordCandlesIngested(sourceName, s.stats.Stored())

	s.stats.SetDuration(time.Since(startTime))
	s.logger.Printf("Historical ingestion complete: %s", s.stats.String())

	return s.stats, nil
}

// Backfill fills the store from its latest candle up to now. A store with
// no candles at all backfills the full requested window.
func (s *IngestionService) Backfill(ctx context.Context, sourceName, symbol string, timeframe models.Timeframe, backfillDays int) (*IngestionStats, error) {
	end := time.Now().UTC().Truncate(time.Minute)
	start := end.Add(-time.Duration(backfillDays) * 24 * time.Hour)

	latest, err := s.candleRepo.LatestTimestamp(ctx, symbol, timeframe)
	if err == nil && latest.After(start) {
		start = latest
	}

	return s.IngestHistorical(ctx, sourceName, symbol, timeframe, start, end)
}

// StoreStreamed persists a single closed candle delivered by the live stream
func (s *IngestionService) StoreStreamed(ctx context.Context, sourceName, symbol string, timeframe models.Timeframe, candle models.Candle) error {
	if err := candle.Validate(); err != nil {
		return fmt.Errorf("streamed candle failed validation: %w", err)
	}
	if err := s.candleRepo.UpsertBatch(ctx, symbol, timeframe, []models.Candle{candle}); err != nil {
		return fmt.Errorf("failed to store streamed candle: %w", err)
	}
	metrics.RecordCandlesIngested(sourceName, 1)
	return nil
}

func (s *IngestionService) findSource(sourceName string) (datasource.KlineSource, error) {
	for _, src := range s.sources {
		if src.Name() == sourceName {
			if !src.IsEnabled() {
				return nil, fmt.Errorf("data source disabled: %s", sourceName)
			}
			return src, nil
		}
	}
	return nil, fmt.Errorf("data source not found: %s", sourceName)
}
