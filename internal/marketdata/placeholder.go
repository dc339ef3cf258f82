package marketdata

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"memeWatch/internal/model"
)

// Placeholder produces random snapshots for local development and demos.
type Placeholder struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewPlaceholder creates a placeholder source. A zero seed uses the current time.
func NewPlaceholder(seed int64) *Placeholder {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Placeholder{rng: rand.New(rand.NewSource(seed)), now: nowUTC}
}

// FetchSnapshot implements Source.
func (p *Placeholder) FetchSnapshot(ctx context.Context, _ string) (model.MetricsSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.MetricsSnapshot{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return model.MetricsSnapshot{
		MarketCap: p.rng.Float64() * 1_000_000,
		Price:     p.rng.Float64() * 0.01,
		Volume5m:  p.rng.Float64() * 1_000,
		Volume15m: p.rng.Float64() * 3_000,
		Volume30m: p.rng.Float64() * 6_000,
		Holders:   uint64(p.rng.Intn(1000)),
		Timestamp: p.now(),
	}, nil
}
