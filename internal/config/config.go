// Package config loads engine configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds everything the engine needs to run. DATABASE_URL and
// REDIS_URL are optional: without them the engine falls back to the
// in-memory store (development only).
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	SwapperURL   string
	SolanaRPCURL string
	PriceAPIURL  string

	SlippageBps int
	FeeBuffer   decimal.Decimal // native units reserved per trade for fees
	FanOut      int             // max concurrent wallet units per batch

	ActivationThreshold decimal.Decimal // USD pnl at which a referee counts as active
	DustThreshold       decimal.Decimal // token residue below this is force-zeroed

	CacheTTL       time.Duration
	GatewayTimeout time.Duration
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         envOr("PORT", "8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		SwapperURL:   envOr("SWAPPER_URL", "http://localhost:3030"),
		SolanaRPCURL: envOr("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		PriceAPIURL:  envOr("PRICE_API_URL", "https://lite-api.jup.ag"),
	}

	var err error
	if cfg.SlippageBps, err = envInt("SLIPPAGE_BPS", 100); err != nil {
		return nil, err
	}
	if cfg.FanOut, err = envInt("BATCH_FAN_OUT", 4); err != nil {
		return nil, err
	}
	if cfg.FeeBuffer, err = envDecimal("FEE_BUFFER_SOL", "0.01"); err != nil {
		return nil, err
	}
	if cfg.ActivationThreshold, err = envDecimal("REFERRAL_ACTIVATION_USD", "100"); err != nil {
		return nil, err
	}
	if cfg.DustThreshold, err = envDecimal("DUST_THRESHOLD", "0.0001"); err != nil {
		return nil, err
	}

	ttl, err := envInt("CACHE_TTL_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.CacheTTL = time.Duration(ttl) * time.Second

	timeout, err := envInt("GATEWAY_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.GatewayTimeout = time.Duration(timeout) * time.Second

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}

func envDecimal(key, def string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		v = def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %s must be a decimal: %w", key, err)
	}
	return d, nil
}
