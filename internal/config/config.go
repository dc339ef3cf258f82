package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	PGDSN          string
	RPCURL         string
	Source         string
	DexScreenerURL string
	RateLimit      float64
	FetchTimeout   time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	Seed           int64

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockKey       string
	LockTTL       time.Duration

	Listen      string
	Concurrency int
	Interval    time.Duration
	StateFile   string
	SnapshotLog string

	Addresses []string
	Out       string
	Now       string

	OtelEndpoint string
	LogLevel     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MEMEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("source", "dexscreener")
	v.SetDefault("dexscreener-url", "https://api.dexscreener.com")
	v.SetDefault("rate-limit", 4.0)
	v.SetDefault("fetch-timeout", 10*time.Second)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("lock-key", "memewatch:refresh-lock")
	v.SetDefault("lock-ttl", 5*time.Minute)
	v.SetDefault("listen", ":8080")
	v.SetDefault("concurrency", 4)
	v.SetDefault("interval", time.Minute)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		PGDSN:          v.GetString("pg-dsn"),
		RPCURL:         v.GetString("rpc"),
		Source:         v.GetString("source"),
		DexScreenerURL: v.GetString("dexscreener-url"),
		RateLimit:      v.GetFloat64("rate-limit"),
		FetchTimeout:   v.GetDuration("fetch-timeout"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		Seed:           v.GetInt64("seed"),
		RedisAddr:      v.GetString("redis-addr"),
		RedisPassword:  v.GetString("redis-password"),
		RedisDB:        v.GetInt("redis-db"),
		LockKey:        v.GetString("lock-key"),
		LockTTL:        v.GetDuration("lock-ttl"),
		Listen:         v.GetString("listen"),
		Concurrency:    v.GetInt("concurrency"),
		Interval:       v.GetDuration("interval"),
		StateFile:      v.GetString("state-file"),
		SnapshotLog:    v.GetString("snapshot-log"),
		Addresses:      getStringSlice(v, "address"),
		Out:            v.GetString("out"),
		Now:            v.GetString("now"),
		OtelEndpoint:   v.GetString("otel-endpoint"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
}

// EnvCheck reports which collaborators are configured, without their values.
func (c Config) EnvCheck() map[string]string {
	status := func(val string) string {
		if strings.TrimSpace(val) == "" {
			return "Missing"
		}
		return "Set"
	}
	return map[string]string{
		"pgDsn":        status(c.PGDSN),
		"rpcUrl":       status(c.RPCURL),
		"redisAddr":    status(c.RedisAddr),
		"otelEndpoint": status(c.OtelEndpoint),
	}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
