package marketdata

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"memeWatch/internal/model"
)

// Combined completes market snapshots with on-chain holder counts and, when
// the market API has no market cap, supply multiplied by price.
type Combined struct {
	market Source
	chain  ChainSource
	logger *zap.Logger
}

// NewCombined creates a combined source.
func NewCombined(market Source, chain ChainSource, logger *zap.Logger) *Combined {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Combined{market: market, chain: chain, logger: logger}
}

// FetchSnapshot implements Source.
func (c *Combined) FetchSnapshot(ctx context.Context, address string) (model.MetricsSnapshot, error) {
	var (
		snap    model.MetricsSnapshot
		holders uint64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = c.market.FetchSnapshot(gctx, address)
		return err
	})
	g.Go(func() error {
		var err error
		holders, err = c.chain.HolderCount(gctx, address)
		if err != nil {
			return fmt.Errorf("holder count: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.MetricsSnapshot{}, err
	}
	snap.Holders = holders

	if snap.MarketCap == 0 && snap.Price > 0 {
		supply, err := c.chain.TokenSupply(ctx, address)
		if err != nil {
			c.logger.Warn("token supply unavailable, market cap left at zero",
				zap.String("address", address),
				zap.Error(err),
			)
		} else {
			snap.MarketCap = supply * snap.Price
		}
	}
	return snap, nil
}
