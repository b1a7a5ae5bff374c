package service

import (
	"fmt"
	"sync"
	"time"
)

// IngestionStats tracks statistics about one ingestion pass
type IngestionStats struct {
	mu        sync.RWMutex
	StartTime time.Time
	duration  time.Duration
	fetched   int
	stored    int
	dropped   int
	errors    int
}

// NewIngestionStats creates a new stats tracker
func NewIngestionStats() *IngestionStats {
	return &IngestionStats{
		StartTime: time.Now(),
	}
}

// Reset resets all stats
func (m *IngestionStats) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StartTime = time.Now()
	m.duration = 0
	m.fetched = 0
	m.stored = 0
	m.dropped = 0
	m.errors = 0
}

// SetFetched records the number of candles fetched from the source
func (m *IngestionStats) SetFetched(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = n
}

// RecordStored adds to the stored candle count
func (m *IngestionStats) RecordStored(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored += n
}

// RecordDropped adds to the dropped candle count
func (m *IngestionStats) RecordDropped(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped += n
}

// RecordError increments the error count
func (m *IngestionStats) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

// SetDuration records the pass duration
func (m *IngestionStats) SetDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration = d
}

// Stored returns the stored candle count
func (m *IngestionStats) Stored() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stored
}

// Errors returns the error count
func (m *IngestionStats) Errors() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errors
}

// String returns a formatted string representation of the stats
func (m *IngestionStats) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return fmt.Sprintf(
		"IngestionStats{Fetched=%d, Stored=%d, Dropped=%d, Errors=%d, Duration=%v}",
		m.fetched,
		m.stored,
		m.dropped,
		m.errors,
		m.duration,
	)
}
