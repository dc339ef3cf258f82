// Package marketdata provides the sources that produce metrics snapshots for a token.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"memeWatch/internal/model"
)

// ErrNoMarket is returned when no trading pair exists for the token.
var ErrNoMarket = errors.New("no market found for token")

// Source fetches one fresh snapshot for a token address.
type Source interface {
	FetchSnapshot(ctx context.Context, address string) (model.MetricsSnapshot, error)
}

// ChainSource provides on-chain figures the market API does not carry.
type ChainSource interface {
	HolderCount(ctx context.Context, address string) (uint64, error)
	TokenSupply(ctx context.Context, address string) (float64, error)
}

// Config selects and tunes a source.
type Config struct {
	Name         string
	BaseURL      string
	RateLimit    float64
	MaxRetries   int
	RetryBackoff time.Duration
	Timeout      time.Duration
	Seed         int64
}

// ErrChainRequired is returned when a source that reports holders is built
// without a chain source.
var ErrChainRequired = errors.New("dexscreener source requires an rpc url for holder counts")

// New creates the source named in cfg. DexScreener carries no holder counts,
// so it is always combined with the chain source.
func New(cfg Config, chain ChainSource, logger *zap.Logger) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "", "dexscreener":
		if chain == nil {
			return nil, ErrChainRequired
		}
		ds := NewDexScreener(DexScreenerConfig{
			BaseURL:      cfg.BaseURL,
			RateLimit:    cfg.RateLimit,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			Timeout:      cfg.Timeout,
		})
		return NewCombined(ds, chain, logger), nil
	case "placeholder":
		return NewPlaceholder(cfg.Seed), nil
	default:
		return nil, fmt.Errorf("unsupported market source: %s", cfg.Name)
	}
}

func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
