package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memeWatch/internal/config"
	"memeWatch/internal/storage"
	"memeWatch/internal/tracker"
)

func runRefresh(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	now, err := config.ParseTimestamp(cfg.Now)
	if err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, appOptions{withLock: true})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.refresher.Refresh(ctx, now)
	if err != nil {
		return err
	}

	out := storage.NewJSONLWriterTo(cmd.OutOrStdout())
	if err := out.Write(res); err != nil {
		return err
	}
	return out.Close()
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Interval <= 0 {
		return errors.New("interval must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, appOptions{withLock: true})
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("watch start", zap.Duration("interval", cfg.Interval))
	return watchLoop(ctx, a.refresher, cfg.Interval, time.Now, logger)
}

type refresher interface {
	Refresh(ctx context.Context, now time.Time) (tracker.RefreshResult, error)
}

// watchLoop triggers a sweep immediately and then on every tick until ctx is
// canceled. Failed sweeps are logged and retried on the next tick.
func watchLoop(ctx context.Context, r refresher, interval time.Duration, clock func() time.Time, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_, err := r.Refresh(ctx, clock())
		switch {
		case errors.Is(err, tracker.ErrRefreshInProgress):
			logger.Info("refresh skipped, another sweep holds the lock")
		case err != nil && ctx.Err() == nil:
			logger.Error("refresh failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return nil
		case <-ticker.C:
		}
	}
}
