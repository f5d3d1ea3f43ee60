// Package config loads the environment-driven settings for the scanner and
// strategy engine, falling back to sane defaults for anything unset.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the scanner and strategy engine need.
type Config struct {
	ExchangeAPIKey    string
	ExchangeAPISecret string
	TradingEnabled    bool // false when either credential is missing

	RecvWindowMs int
	Leverage     int
	KslBuffer    float64

	RefreshInterval time.Duration

	// Rate-limited fetcher
	RequestIntervalMs  int
	MaxRetryAttempts   int
	RetryBackoffBaseMs int
	MaxRetryBackoffMs  int

	// Universe selector
	VolumeRefreshInterval time.Duration
	MaxSelectedSymbols    int

	// Movers pipeline
	Concurrency int

	// Liquidity probe
	SlippageTargetQuote float64

	// Trading executor
	MaxPositions int

	// Notifier
	TelegramBotToken string
	TelegramChatID   int64

	// Optional HTTP surface
	HTTPPort int
}

// Load reads the environment, falling back to sane defaults for anything
// unset or unparsable: a bad value is logged and the default is kept
// rather than aborting.
func Load() *Config {
	cfg := &Config{
		ExchangeAPIKey:    os.Getenv("EXCHANGE_API_KEY"),
		ExchangeAPISecret: os.Getenv("EXCHANGE_API_SECRET"),

		RecvWindowMs: intEnv("RECV_WINDOW", 5000),
		Leverage:     maxInt(intEnv("LEVERAGE", 5), 1),
		KslBuffer:    clamp(floatEnv("KSL_BUFFER", 1.0), 0.5, 2.0),

		RefreshInterval: time.Duration(maxInt(intEnv("REFRESH_INTERVAL_MINUTES", 10), 1)) * time.Minute,

		RequestIntervalMs:  150,
		MaxRetryAttempts:   5,
		RetryBackoffBaseMs: 500,
		MaxRetryBackoffMs:  4000,

		VolumeRefreshInterval: 12 * time.Hour,
		MaxSelectedSymbols:    80,

		Concurrency: 8,

		SlippageTargetQuote: 10000,

		MaxPositions: 5,

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   int64Env("TELEGRAM_CHAT_ID", 0),

		HTTPPort: intEnv("HTTP_PORT", 3000),
	}

	cfg.TradingEnabled = cfg.ExchangeAPIKey != "" && cfg.ExchangeAPISecret != ""
	if !cfg.TradingEnabled {
		log.Println("[config] exchange credentials missing, trading disabled")
	}

	return cfg
}

func intEnv(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %d", key, raw, def)
		return def
	}
	return v
}

func int64Env(key string, def int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %d", key, raw, def)
		return def
	}
	return v
}

func floatEnv(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %g", key, raw, def)
		return def
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
