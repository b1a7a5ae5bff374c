package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/candle-forge/internal/models"
)

const binanceSourceName = "binance"

// maxKlinesPerRequest is the largest page the exchange serves in one call.
const maxKlinesPerRequest = 1500

// BinanceClient implements KlineSource for the Binance spot REST API
type BinanceClient struct {
	httpClient *RateLimitedHTTPClient
	baseURL    string
	apiKey     string
	batchSize  int
	enabled    bool
	logger     *log.Logger
}

// rawKline is one kline row as the exchange serves it: a mixed-type JSON
// array where prices arrive as strings.
type rawKline []json.RawMessage

// NewBinanceClient creates a new Binance klines client
func NewBinanceClient(httpClient *RateLimitedHTTPClient, baseURL, apiKey string, batchSize int, logger *log.Logger) *BinanceClient {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	if batchSize <= 0 || batchSize > maxKlinesPerRequest {
		batchSize = 1000
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &BinanceClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		batchSize:  batchSize,
		enabled:    true,
		logger:     logger,
	}
}

// Name returns the name of the data source
func (c *BinanceClient) Name() string {
	return binanceSourceName
}

// IsEnabled returns whether this data source is currently enabled
func (c *BinanceClient) IsEnabled() bool {
	return c.enabled
}

// FetchKlines retrieves candles for [start, end), paging through the API
// in batchSize chunks until the range is covered.
func (c *BinanceClient) FetchKlines(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) ([]models.Candle, error) {
	interval, err := timeframe.Duration()
	if err != nil {
		return nil, err
	}

	var candles []models.Candle
	cursor := start
	for cursor.Before(end) {
		batch, err := c.fetchPage(ctx, symbol, timeframe, cursor, end)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		candles = append(candles, batch...)
		cursor = batch[len(batch)-1].Timestamp.Add(interval)
	}

	return candles, nil
}

// fetchPage requests one page of klines starting at cursor.
func (c *BinanceClient) fetchPage(ctx context.Context, symbol string, timeframe models.Timeframe, cursor, end time.Time) ([]models.Candle, error) {
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&startTime=%d&endTime=%d&limit=%d",
		c.baseURL, symbol, timeframe, cursor.UnixMilli(), end.UnixMilli()-1, c.batchSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewDataSourceError(binanceSourceName, ErrCodeNetworkError, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, NewDataSourceError(binanceSourceName, ErrCodeNetworkError, "failed to fetch klines", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, NewDataSourceError(binanceSourceName, ErrCodeAuthenticationFailed, "invalid API key", nil)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, NewDataSourceError(binanceSourceName, ErrCodeRateLimitExceeded, "rate limit exceeded", nil)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, NewDataSourceError(binanceSourceName, ErrCodeServerError,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)), nil)
	}

	var rows []rawKline
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, NewDataSourceError(binanceSourceName, ErrCodeInvalidData, "failed to parse response", err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		candle, err := convertKline(row)
		if err != nil {
			c.logger.Printf("Failed to convert kline for %s: %v", symbol, err)
			continue
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// convertKline decodes one exchange kline row into a Candle.
// Layout: [openTime, open, high, low, close, volume, closeTime, ...].
func convertKline(row rawKline) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("kline row has %d fields, need at least 6", len(row))
	}

	var openTimeMs int64
	if err := json.Unmarshal(row[0], &openTimeMs); err != nil {
		return models.Candle{}, fmt.Errorf("invalid open time: %w", err)
	}

	prices := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		var s string
		if err := json.Unmarshal(row[i], &s); err != nil {
			return models.Candle{}, fmt.Errorf("invalid price field %d: %w", i, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return models.Candle{}, fmt.Errorf("invalid decimal %q: %w", s, err)
		}
		prices[i-1] = d.InexactFloat64()
	}

	candle := models.Candle{
		Timestamp: time.UnixMilli(openTimeMs).UTC(),
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    prices[4],
	}
	return candle, candle.Validate()
}
