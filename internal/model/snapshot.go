package model

import (
	"fmt"
	"math"
	"time"
)

// MetricsSnapshot is a point-in-time capture of market metrics for one token.
type MetricsSnapshot struct {
	MarketCap float64   `json:"marketCap"`
	Price     float64   `json:"price"`
	Volume5m  float64   `json:"volume_5m"`
	Volume15m float64   `json:"volume_15m"`
	Volume30m float64   `json:"volume_30m"`
	Holders   uint64    `json:"holders"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate rejects snapshots with negative or non-finite measures.
func (s MetricsSnapshot) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"marketCap", s.MarketCap},
		{"price", s.Price},
		{"volume_5m", s.Volume5m},
		{"volume_15m", s.Volume15m},
		{"volume_30m", s.Volume30m},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%s is not a finite number", f.name)
		}
		if f.value < 0 {
			return fmt.Errorf("%s is negative: %v", f.name, f.value)
		}
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// SnapshotRecord is one captured snapshot as written to the capture log.
type SnapshotRecord struct {
	Address    string          `json:"address"`
	Label      string          `json:"label"`
	Snapshot   MetricsSnapshot `json:"snapshot"`
	CapturedAt string          `json:"captured_at"`
}
