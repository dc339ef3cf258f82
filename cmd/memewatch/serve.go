package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"memeWatch/internal/api"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, appOptions{allowMemory: true, withLock: true})
	if err != nil {
		return err
	}
	defer a.Close()

	server := api.NewServer(api.Options{
		Registry:  a.registry,
		Refresher: a.refresher,
		Source:    a.source,
		Validator: a.validator,
		Gatherer:  a.metrics,
		EnvCheck:  cfg.EnvCheck(),
		Clock:     time.Now,
		Logger:    logger,
	})
	return server.Run(ctx, cfg.Listen)
}
