package service

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/yourusername/candle-forge/internal/datasource"
	"github.com/yourusername/candle-forge/internal/models"
)

type fakeSource struct {
	name    string
	enabled bool
	candles []models.Candle
	err     error
}

func (f *fakeSource) FetchKlines(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) ([]models.Candle, error) {
	return f.candles, f.err
}

func (f *fakeSource) Name() string    { return f.name }
func (f *fakeSource) IsEnabled() bool { return f.enabled }

type fakeRepo struct {
	stored  []models.Candle
	latest  time.Time
	upserts int
}

func (f *fakeRepo) UpsertBatch(ctx context.Context, symbol string, timeframe models.Timeframe, candles []models.Candle) error {
	f.stored = append(f.stored, candles...)
	f.upserts++
	return nil
}

func (f *fakeRepo) GetRange(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) ([]models.Candle, error) {
	return f.stored, nil
}

func (f *fakeRepo) LatestTimestamp(ctx context.Context, symbol string, timeframe models.Timeframe) (time.Time, error) {
	if f.latest.IsZero() {
		return time.Time{}, models.ErrNotFound
	}
	return f.latest, nil
}

func (f *fakeRepo) CountRange(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) (int64, error) {
	return int64(len(f.stored)), nil
}

func testCandles(start time.Time, n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      100, High: 101, Low: 99, Close: 100, Volume: 5,
		}
	}
	return out
}

func quietLog() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// TestIngestHistorical tests the full fetch-normalize-store pass
func TestIngestHistorical(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{name: "binance", enabled: true, candles: testCandles(start, 10)}
	repo := &fakeRepo{}

	svc := NewIngestionService([]datasource.KlineSource{src}, repo, quietLog(), 4)

	stats, err := svc.IngestHistorical(context.Background(), "binance", "BTCUSDT", models.Timeframe1h, start, start.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if stats.Stored() != 10 {
		t.Errorf("expected 10 candles stored, got %d", stats.Stored())
	}
	// 10 candles in batches of 4 means 3 upsert calls
	if repo.upserts != 3 {
		t.Errorf("expected 3 upsert batches, got %d", repo.upserts)
	}
}

// TestIngestHistoricalDeduplicates tests that duplicate bars collapse before storage
func TestIngestHistoricalDeduplicates(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := testCandles(start, 5)
	series = append(series, series[2])
	src := &fakeSource{name: "binance", enabled: true, candles: series}
	repo := &fakeRepo{}

	svc := NewIngestionService([]datasource.KlineSource{src}, repo, quietLog(), 100)

	stats, err := svc.IngestHistorical(context.Background(), "binance", "BTCUSDT", models.Timeframe1h, start, start.Add(5*time.Hour))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if stats.Stored() != 5 {
		t.Errorf("expected 5 candles stored after dedup, got %d", stats.Stored())
	}
}

// TestIngestUnknownSource tests error for a missing source
func TestIngestUnknownSource(t *testing.T) {
	svc := NewIngestionService(nil, &fakeRepo{}, quietLog(), 100)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.IngestHistorical(context.Background(), "missing", "BTCUSDT", models.Timeframe1h, start, start.Add(time.Hour))
	if err == nil {
		t.Fatal("expected error for unknown source")
	}
}

// TestIngestDisabledSource tests error for a disabled source
func TestIngestDisabledSource(t *testing.T) {
	src := &fakeSource{name: "binance", enabled: false}
	svc := NewIngestionService([]datasource.KlineSource{src}, &fakeRepo{}, quietLog(), 100)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.IngestHistorical(context.Background(), "binance", "BTCUSDT", models.Timeframe1h, start, start.Add(time.Hour))
	if err == nil {
		t.Fatal("expected error for disabled source")
	}
}

// TestBackfillResumesFromLatest tests that backfill starts at the stored high-water mark
func TestBackfillResumesFromLatest(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{name: "binance", enabled: true, candles: testCandles(start, 3)}
	repo := &fakeRepo{latest: time.Now().UTC().Add(-2 * time.Hour)}

	svc := NewIngestionService([]datasource.KlineSource{src}, repo, quietLog(), 100)

	if _, err := svc.Backfill(context.Background(), "binance", "BTCUSDT", models.Timeframe1h, 30); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

// TestStoreStreamedRejectsInvalid tests validation of streamed candles
func TestStoreStreamedRejectsInvalid(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewIngestionService(nil, repo, quietLog(), 100)

	bad := models.Candle{
		Timestamp: time.Now(),
		Open:      100, High: 90, Low: 99, Close: 100, Volume: 5,
	}
	if err := svc.StoreStreamed(context.Background(), "binance", "BTCUSDT", models.Timeframe1h, bad); err == nil {
		t.Fatal("expected validation error for malformed candle")
	}
	if len(repo.stored) != 0 {
		t.Error("expected nothing stored for invalid candle")
	}
}
