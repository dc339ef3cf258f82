package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "memewatch",
		Short:        "Solana meme-coin metrics tracker",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	addCommonFlags(root.PersistentFlags())

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tracker HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	addRefreshFlags(serveCmd.Flags())
	root.AddCommand(serveCmd)

	addCmd := &cobra.Command{
		Use:   "add [address...]",
		Short: "Start tracking one or more token addresses",
		RunE:  runAdd,
	}
	addCmd.Flags().StringSlice("address", nil, "token addresses (comma-separated)")
	root.AddCommand(addCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked tokens as JSONL",
		RunE:  runList,
	}
	listCmd.Flags().String("address", "", "only list this address")
	listCmd.Flags().String("out", "", "output JSONL path (default stdout)")
	root.AddCommand(listCmd)

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh sweep over all due tokens",
		RunE:  runRefresh,
	}
	refreshCmd.Flags().String("now", "", "sweep time (unix seconds or RFC3339), default current time")
	addRefreshFlags(refreshCmd.Flags())
	root.AddCommand(refreshCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Trigger a refresh sweep on a fixed interval",
		RunE:  runWatch,
	}
	watchCmd.Flags().Duration("interval", time.Minute, "time between sweeps")
	addRefreshFlags(watchCmd.Flags())
	root.AddCommand(watchCmd)

	return root
}

func addCommonFlags(fs *pflag.FlagSet) {
	fs.String("pg-dsn", "", "Postgres DSN (in-memory store when empty, serve only)")
	fs.String("rpc", "", "Solana RPC URL for holder counts and supply (required by the dexscreener source)")
	fs.String("source", "dexscreener", "market data source (dexscreener, placeholder)")
	fs.String("dexscreener-url", "https://api.dexscreener.com", "DexScreener API base URL")
	fs.Float64("rate-limit", 4, "max DexScreener requests per second (0 disables)")
	fs.Duration("fetch-timeout", 10*time.Second, "per-token fetch timeout")
	fs.Int("max-retries", 3, "maximum retry attempts")
	fs.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	fs.Int64("seed", 0, "placeholder source seed (0 = time based)")
	fs.String("snapshot-log", "", "optional JSONL capture log of every snapshot")
	fs.String("otel-endpoint", "", "OTLP/HTTP endpoint for traces")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
}

func addRefreshFlags(fs *pflag.FlagSet) {
	fs.Int("concurrency", 4, "max tokens fetched in parallel")
	fs.String("state-file", "", "optional local state file for the last refresh run")
	fs.String("redis-addr", "", "Redis address for the cross-instance refresh lock")
	fs.String("redis-password", "", "Redis password")
	fs.Int("redis-db", 0, "Redis database")
	fs.String("lock-key", "memewatch:refresh-lock", "Redis refresh lock key")
	fs.Duration("lock-ttl", 5*time.Minute, "Redis refresh lock lease")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
