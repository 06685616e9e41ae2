// Package config loads server settings from the environment, optionally seeded by a .env file.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/user/papertrade/backend/internal/auth"
	"github.com/user/papertrade/backend/internal/database"
	"github.com/user/papertrade/backend/internal/pricer"
	"github.com/user/papertrade/backend/internal/ticker"
	"github.com/user/papertrade/backend/internal/trade"
	"github.com/user/papertrade/backend/internal/trading"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds every runtime setting.
type Config struct {
	Port                 string
	StoreBackend         string
	DatabaseURL          string
	SessionSecret        string
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	StartingBalance      decimal.Decimal
	DefaultSlippage      decimal.Decimal
	DefaultFee           decimal.Decimal
	PriceAPIURL          string
	SettlementMint       string
	PriceTimeout         time.Duration
	PriceRateLimit       int
	PriceFeedInterval    time.Duration
	LogLevel             string
	LogFormat            string
	LogFile              string
}

// Load reads .env files (if present) and then the environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, errors.Wrapf(err, "load %s", f)
			}
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	p := parser{lookup: lookup}
	cfg := &Config{
		Port:                 p.str("PORT", "3000"),
		StoreBackend:         p.str("STORE_BACKEND", BackendPostgres),
		DatabaseURL:          p.str("DATABASE_URL", database.DefaultURL),
		SessionSecret:        p.str("SESSION_SECRET", ""),
		SessionTTL:           p.duration("SESSION_TTL", auth.DefaultSessionTTL),
		SessionSweepInterval: p.duration("SESSION_SWEEP_INTERVAL", 10*time.Minute),
		StartingBalance:      p.decimal("STARTING_BALANCE", trading.DefaultStartingBalance),
		DefaultSlippage:      p.decimal("DEFAULT_SLIPPAGE", trade.DefaultSlippagePercent),
		DefaultFee:           p.decimal("DEFAULT_FEE", trade.DefaultFeePercent),
		PriceAPIURL:          p.str("PRICE_API_URL", pricer.DefaultBaseURL),
		SettlementMint:       p.str("SETTLEMENT_MINT", pricer.DefaultSettlementMint),
		PriceTimeout:         p.duration("PRICE_TIMEOUT", pricer.DefaultTimeout),
		PriceRateLimit:       p.int("PRICE_RATE_LIMIT", pricer.DefaultRateLimit),
		PriceFeedInterval:    p.duration("PRICE_FEED_INTERVAL", ticker.DefaultInterval),
		LogLevel:             p.str("LOG_LEVEL", "info"),
		LogFormat:            p.str("LOG_FORMAT", "text"),
		LogFile:              p.str("LOG_FILE", ""),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendPostgres, BackendMemory:
	default:
		return errors.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.StoreBackend)
	}
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required")
	}
	if c.SessionTTL <= 0 || c.SessionSweepInterval <= 0 || c.PriceFeedInterval <= 0 || c.PriceTimeout <= 0 {
		return errors.New("SESSION_TTL, SESSION_SWEEP_INTERVAL, PRICE_FEED_INTERVAL and PRICE_TIMEOUT must be positive")
	}
	if c.PriceRateLimit <= 0 {
		return errors.New("PRICE_RATE_LIMIT must be positive")
	}
	if !c.StartingBalance.IsPositive() {
		return errors.New("STARTING_BALANCE must be positive")
	}
	if c.DefaultSlippage.IsNegative() || c.DefaultFee.IsNegative() {
		return errors.New("DEFAULT_SLIPPAGE and DEFAULT_FEE must not be negative")
	}
	return nil
}

// TradeDefaults returns the configured default slippage and fee.
func (c *Config) TradeDefaults() trade.Params {
	return trade.Params{SlippagePercent: c.DefaultSlippage, FeePercent: c.DefaultFee}
}

type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) str(key, def string) string {
	if v, ok := p.lookup(key); ok && v != "" {
		return v
	}
	return def
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil && p.err == nil {
		p.err = errors.Wrapf(err, "parse %s", key)
	}
	return d
}

func (p *parser) int(key string, def int) int {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && p.err == nil {
		p.err = errors.Wrapf(err, "parse %s", key)
	}
	return n
}

func (p *parser) decimal(key string, def decimal.Decimal) decimal.Decimal {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil && p.err == nil {
		p.err = errors.Wrapf(err, "parse %s", key)
	}
	return d
}
