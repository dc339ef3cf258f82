package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memeWatch/internal/chain"
	"memeWatch/internal/storage"
	"memeWatch/internal/tracker"
)

func runAdd(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	inputs := append(append([]string{}, args...), cfg.Addresses...)
	keys, err := chain.ParseAddresses(inputs)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("address list is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	out := storage.NewJSONLWriterTo(cmd.OutOrStdout())
	defer out.Close()

	var failed int
	for _, key := range keys {
		token, err := a.registry.Add(ctx, key.String())
		if errors.Is(err, tracker.ErrAlreadyTracked) {
			logger.Warn("address already tracked", zap.String("address", key.String()))
			continue
		}
		if err != nil {
			failed++
			logger.Error("add failed", zap.String("address", key.String()), zap.Error(err))
			continue
		}
		if err := out.Write(token); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d addresses could not be added", failed, len(keys))
	}
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	var filter string
	if len(cfg.Addresses) > 0 {
		filter = cfg.Addresses[0]
	}
	tokens, err := a.registry.List(ctx, filter)
	if err != nil {
		return err
	}

	var out *storage.JSONLWriter
	if cfg.Out != "" {
		out, err = storage.NewJSONLWriter(cfg.Out, false)
		if err != nil {
			return err
		}
	} else {
		out = storage.NewJSONLWriterTo(cmd.OutOrStdout())
	}

	for _, token := range tokens {
		if err := out.Write(token); err != nil {
			out.Close()
			return err
		}
	}
	if err := out.Close(); err != nil {
		return err
	}

	logger.Info("list done", zap.Int("tokens", len(tokens)), zap.String("out", cfg.Out))
	return nil
}
