package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/yourusername/candle-forge/internal/models"
)

// KlineHandler is called for every closed candle received on the stream.
type KlineHandler func(symbol string, timeframe models.Timeframe, candle models.Candle) error

// ReconnectConfig controls reconnection behavior
type ReconnectConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultReconnectConfig returns default reconnection configuration
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:        10,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 1.5,
	}
}

// streamEvent is the combined-stream envelope the exchange sends.
type streamEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string   `json:"e"`
		Symbol    string   `json:"s"`
		Kline     rawEvent `json:"k"`
	} `json:"data"`
}

// rawEvent is the kline payload inside a stream event.
type rawEvent struct {
	OpenTime int64  `json:"t"`
	Interval string `json:"i"`
	Open     string `json:"o"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Close    string `json:"c"`
	Volume   string `json:"v"`
	Closed   bool   `json:"x"`
}

// StreamClient maintains a WebSocket subscription to live kline updates.
// Only closed bars are forwarded to handlers; the still-forming bar is
// dropped so downstream consumers never see a mutable candle.
type StreamClient struct {
	conn            *websocket.Conn
	baseURL         string
	mu              sync.RWMutex
	isConnected     bool
	handlers        []KlineHandler
	reconnectConfig ReconnectConfig
	lastMessageTime time.Time
	logger          *log.Logger
}

// NewStreamClient creates a new kline stream client
func NewStreamClient(streamURL string, logger *log.Logger) *StreamClient {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &StreamClient{
		baseURL:         streamURL,
		handlers:        make([]KlineHandler, 0),
		reconnectConfig: DefaultReconnectConfig(),
		logger:          logger,
	}
}

// Connect establishes the WebSocket connection and subscribes to kline
// updates for the given symbols and timeframes.
func (s *StreamClient) Connect(ctx context.Context, symbols []string, timeframes []models.Timeframe) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isConnected {
		return fmt.Errorf("already connected")
	}

	streams := make([]string, 0, len(symbols)*len(timeframes))
	for _, sym := range symbols {
		for _, tf := range timeframes {
			streams = append(streams, fmt.Sprintf("%s@kline_%s", strings.ToLower(sym), tf))
		}
	}
	wsURL := fmt.Sprintf("%s/stream?streams=%s", s.baseURL, strings.Join(streams, "/"))

	s.logger.Printf("Connecting to stream: %s", wsURL)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}

	s.conn = conn
	s.isConnected = true
	s.lastMessageTime = time.Now()

	s.logger.Printf("Connected to stream successfully")

	go s.readMessages()

	return nil
}

// AddHandler registers a kline handler
func (s *StreamClient) AddHandler(handler KlineHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// readMessages reads messages from the WebSocket connection
func (s *StreamClient) readMessages() {
	defer s.Close()

	for {
		var raw json.RawMessage
		err := s.conn.ReadJSON(&raw)
		if err != nil {
			s.logger.Printf("Error reading message: %v", err)
			s.mu.Lock()
			s.isConnected = false
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		s.lastMessageTime = time.Now()
		s.mu.Unlock()

		var event streamEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			s.logger.Printf("Failed to parse stream event: %v", err)
			continue
		}
		if event.Data.EventType != "kline" || !event.Data.Kline.Closed {
			continue
		}

		candle, err := convertStreamKline(event.Data.Kline)
		if err != nil {
			s.logger.Printf("Failed to convert stream kline: %v", err)
			continue
		}

		s.mu.RLock()
		handlers := s.handlers
		s.mu.RUnlock()

		tf := models.Timeframe(event.Data.Kline.Interval)
		for _, handler := range handlers {
			if err := handler(event.Data.Symbol, tf, candle); err != nil {
				s.logger.Printf("Handler error: %v", err)
			}
		}
	}
}

// convertStreamKline decodes a live kline payload into a Candle.
func convertStreamKline(k rawEvent) (models.Candle, error) {
	fields := []string{k.Open, k.High, k.Low, k.Close, k.Volume}
	values := make([]float64, len(fields))
	for i, s := range fields {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return models.Candle{}, fmt.Errorf("invalid decimal %q: %w", s, err)
		}
		values[i] = d.InexactFloat64()
	}

	candle := models.Candle{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}
	return candle, candle.Validate()
}

// IsConnected returns whether the stream is connected
func (s *StreamClient) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}

// LastMessageTime returns the time of the last received message
func (s *StreamClient) LastMessageTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMessageTime
}

// Close closes the stream connection
func (s *StreamClient) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	s.isConnected = false
	return s.conn.Close()
}
