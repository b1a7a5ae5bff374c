package datasource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yourusername/candle-forge/internal/models"
)

func mustRaw(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

// TestConvertKline tests decoding one exchange kline row
func TestConvertKline(t *testing.T) {
	row := rawKline{
		mustRaw(t, int64(1704067200000)),
		mustRaw(t, "42000.50"),
		mustRaw(t, "42100.00"),
		mustRaw(t, "41900.25"),
		mustRaw(t, "42050.75"),
		mustRaw(t, "123.456"),
	}

	candle, err := convertKline(row)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	expected := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !candle.Timestamp.Equal(expected) {
		t.Errorf("expected timestamp %v, got %v", expected, candle.Timestamp)
	}
	if candle.Open != 42000.50 {
		t.Errorf("expected open 42000.50, got %v", candle.Open)
	}
	if candle.Volume != 123.456 {
		t.Errorf("expected volume 123.456, got %v", candle.Volume)
	}
}

// TestConvertKlineInvalid tests rejection of malformed rows
func TestConvertKlineInvalid(t *testing.T) {
	tests := []struct {
		name string
		row  rawKline
	}{
		{"TooShort", rawKline{mustRaw(t, int64(1704067200000))}},
		{"BadPrice", rawKline{
			mustRaw(t, int64(1704067200000)),
			mustRaw(t, "not-a-number"),
			mustRaw(t, "1"), mustRaw(t, "1"), mustRaw(t, "1"), mustRaw(t, "1"),
		}},
		{"InvertedHighLow", rawKline{
			mustRaw(t, int64(1704067200000)),
			mustRaw(t, "100"),
			mustRaw(t, "90"), // high below low
			mustRaw(t, "95"),
			mustRaw(t, "96"),
			mustRaw(t, "10"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := convertKline(tt.row); err == nil {
				t.Error("expected error for malformed kline row")
			}
		})
	}
}

// TestFetchKlinesPaging tests that the client pages through the API
func TestFetchKlinesPaging(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	requests := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		startMs := int64(0)
		if v := r.URL.Query().Get("startTime"); v != "" {
			json.Unmarshal([]byte(v), &startMs)
		}

		// Serve 2 hourly bars per page, 4 bars total
		var rows [][]interface{}
		cursor := time.UnixMilli(startMs).UTC()
		for i := 0; i < 2 && cursor.Before(start.Add(4*time.Hour)); i++ {
			rows = append(rows, []interface{}{
				cursor.UnixMilli(), "100", "101", "99", "100.5", "10",
			})
			cursor = cursor.Add(time.Hour)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rows)
	}))
	defer server.Close()

	httpClient := NewRateLimitedHTTPClient(HTTPClientConfig{
		Timeout:           5 * time.Second,
		MaxRetries:        1,
		RetryWaitMin:      time.Millisecond,
		RetryWaitMax:      10 * time.Millisecond,
		RateLimit:         1000,
		RateBurst:         100,
		CircuitBreakerMax: 5,
	}, nil)
	client := NewBinanceClient(httpClient, server.URL, "", 2, nil)

	candles, err := client.FetchKlines(context.Background(), "BTCUSDT", models.Timeframe1h, start, start.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(candles) != 4 {
		t.Fatalf("expected 4 candles, got %d", len(candles))
	}
	if requests < 2 {
		t.Errorf("expected at least 2 paged requests, got %d", requests)
	}
	for i := 1; i < len(candles); i++ {
		if !candles[i-1].Timestamp.Before(candles[i].Timestamp) {
			t.Error("expected ascending timestamps")
		}
	}
}

// TestFetchKlinesServerError tests surfacing of server errors
func TestFetchKlinesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	httpClient := NewRateLimitedHTTPClient(HTTPClientConfig{
		Timeout:           5 * time.Second,
		MaxRetries:        0,
		RetryWaitMin:      time.Millisecond,
		RetryWaitMax:      10 * time.Millisecond,
		RateLimit:         1000,
		RateBurst:         100,
		CircuitBreakerMax: 5,
	}, nil)
	client := NewBinanceClient(httpClient, server.URL, "", 100, nil)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := client.FetchKlines(context.Background(), "BTCUSDT", models.Timeframe1h, start, start.Add(time.Hour))
	if err == nil {
		t.Fatal("expected error for server failure")
	}
}

// TestCircuitBreakerOpens tests that repeated failures open the breaker
func TestCircuitBreakerOpens(t *testing.T) {
	client := NewRateLimitedHTTPClient(HTTPClientConfig{
		Timeout:           100 * time.Millisecond,
		MaxRetries:        0,
		RetryWaitMin:      time.Millisecond,
		RetryWaitMax:      time.Millisecond,
		RateLimit:         1000,
		RateBurst:         100,
		CircuitBreakerMax: 2,
	}, nil)

	ctx := context.Background()
	// Unroutable address to force connection errors
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:1", nil)
		client.Do(ctx, req)
	}

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:1", nil)
	_, err := client.Do(ctx, req)
	if err == nil || !client.breakerOpen() {
		t.Error("expected circuit breaker to be open after consecutive failures")
	}
}

// TestCircuitBreakerConcurrentRequests tests breaker bookkeeping under
// parallel callers; backfill fans requests out across goroutines
func TestCircuitBreakerConcurrentRequests(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Alternate failures and successes so both breaker paths run
		if atomic.AddInt64(&hits, 1)%2 == 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRateLimitedHTTPClient(HTTPClientConfig{
		Timeout:           time.Second,
		MaxRetries:        0,
		RetryWaitMin:      time.Millisecond,
		RetryWaitMax:      time.Millisecond,
		RateLimit:         10000,
		RateBurst:         100,
		CircuitBreakerMax: 1000,
	}, nil)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				resp, err := client.Get(ctx, server.URL)
				if err == nil {
					resp.Body.Close()
				}
			}
		}()
	}
	wg.Wait()

	if client.breakerOpen() {
		t.Error("breaker opened below its failure threshold")
	}
}

// TestCircuitBreakerResetsOnSuccess tests that one success closes the
// failure streak
func TestCircuitBreakerResetsOnSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRateLimitedHTTPClient(HTTPClientConfig{
		Timeout:           100 * time.Millisecond,
		MaxRetries:        0,
		RetryWaitMin:      time.Millisecond,
		RetryWaitMax:      time.Millisecond,
		RateLimit:         1000,
		RateBurst:         100,
		CircuitBreakerMax: 3,
	}, nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:1", nil)
		client.Do(ctx, req)
	}

	resp, err := client.Get(ctx, server.URL)
	if err != nil {
		t.Fatalf("request after recovery failed: %v", err)
	}
	resp.Body.Close()

	// The streak reset, so two more failures must not open the breaker
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:1", nil)
		client.Do(ctx, req)
	}
	if client.breakerOpen() {
		t.Error("breaker opened even though a success reset the failure streak")
	}
}
