// Package config defines the top-level configuration for the arbitrage engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBOT_* environment variables.
type Config struct {
	Binance  BinanceConfig  `toml:"binance"`
	Upbit    UpbitConfig    `toml:"upbit"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Trading  TradingConfig  `toml:"trading"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// BinanceConfig holds Binance API credentials and endpoints.
type BinanceConfig struct {
	APIKey    string `toml:"api_key"`
	SecretKey string `toml:"secret_key"`
	BaseURL   string `toml:"base_url"`
	WSURL     string `toml:"ws_url"`
}

// UpbitConfig holds Upbit API credentials and the fee schedule. Upbit has no
// fee discovery endpoints, so the trading fee and withdrawal fees are
// configured here.
type UpbitConfig struct {
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	BaseURL   string `toml:"base_url"`
	WSURL     string `toml:"ws_url"`

	TradingFee     float64            `toml:"trading_fee"`
	WithdrawalFees map[string]float64 `toml:"withdrawal_fees"`
	LotStep        float64            `toml:"lot_step"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
	// Enabled turns opportunity history persistence on.
	Enabled bool `toml:"enabled"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// Enabled turns the signal bus and shared rate limiter on.
	Enabled bool `toml:"enabled"`
}

// TradingConfig holds the engine parameters: which symbols to watch, the
// VWAP depth to price, and the profitability thresholds.
type TradingConfig struct {
	// Symbols are normalized "QUOTE_BASE" pairs, e.g. "BTC_ETH".
	Symbols []string `toml:"symbols"`
	// TargetSize is the quote notional the VWAP is computed for.
	TargetSize float64 `toml:"target_size"`
	// MinSpread is the fractional spread below which a symbol is not worth
	// evaluating, e.g. 0.005 for 0.5%.
	MinSpread float64 `toml:"min_spread"`
	// MinProfit is the minimum net profit in quote currency for a candidate
	// to be surfaced.
	MinProfit float64 `toml:"min_profit"`

	CycleInterval  duration `toml:"cycle_interval"`
	DataRetryDelay duration `toml:"data_retry_delay"`
	StateRefresh   duration `toml:"state_refresh"`

	// BookCap and CandleCap are the buffer sizes at which a symbol's data is
	// sealed for reading.
	BookCap   int `toml:"book_cap"`
	CandleCap int `toml:"candle_cap"`
}

// duration wraps time.Duration for TOML decoding of strings like "5m".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with sane defaults. Credentials are
// intentionally left empty.
func Defaults() Config {
	return Config{
		Binance: BinanceConfig{
			BaseURL: "https://api.binance.com",
			WSURL:   "wss://stream.binance.com:9443",
		},
		Upbit: UpbitConfig{
			BaseURL:    "https://api.upbit.com",
			WSURL:      "wss://api.upbit.com/websocket/v1",
			TradingFee: 0.0005,
			LotStep:    0.00000001,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbot",
			User:          "arbot",
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  0,
			RunMigrations: true,
			Enabled:       false,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 8,
			Enabled:  false,
		},
		Trading: TradingConfig{
			Symbols:        []string{"BTC_ETH"},
			TargetSize:     0.1,
			MinSpread:      0.005,
			MinProfit:      0.0001,
			CycleInterval:  duration{time.Second},
			DataRetryDelay: duration{time.Second},
			StateRefresh:   duration{600 * time.Second},
			BookCap:        20,
			CandleCap:      100,
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"arbitrage": true,
	"monitor":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: arbitrage, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Venue credentials are needed whenever the engine runs cycles; monitor
	// mode only listens on the bus.
	if strings.ToLower(c.Mode) == "arbitrage" {
		if c.Binance.APIKey == "" || c.Binance.SecretKey == "" {
			errs = append(errs, "binance: api_key and secret_key are required for arbitrage mode")
		}
		if c.Upbit.AccessKey == "" || c.Upbit.SecretKey == "" {
			errs = append(errs, "upbit: access_key and secret_key are required for arbitrage mode")
		}
	}

	if c.Upbit.TradingFee <= 0 {
		errs = append(errs, "upbit: trading_fee must be > 0")
	}
	if c.Upbit.LotStep <= 0 {
		errs = append(errs, "upbit: lot_step must be > 0")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if strings.ToLower(c.Mode) == "monitor" && !c.Redis.Enabled {
		errs = append(errs, "redis: must be enabled for monitor mode (it subscribes to the bus)")
	}

	if len(c.Trading.Symbols) == 0 {
		errs = append(errs, "trading: symbols must not be empty")
	}
	for _, s := range c.Trading.Symbols {
		parts := strings.SplitN(s, "_", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			errs = append(errs, fmt.Sprintf("trading: malformed symbol %q (want QUOTE_BASE, e.g. BTC_ETH)", s))
		}
	}
	if c.Trading.TargetSize <= 0 {
		errs = append(errs, "trading: target_size must be > 0")
	}
	if c.Trading.MinSpread <= 0 {
		errs = append(errs, "trading: min_spread must be > 0")
	}
	if c.Trading.MinProfit < 0 {
		errs = append(errs, "trading: min_profit must be >= 0")
	}
	if c.Trading.BookCap < 1 {
		errs = append(errs, "trading: book_cap must be >= 1")
	}
	if c.Trading.CandleCap < 1 {
		errs = append(errs, "trading: candle_cap must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
