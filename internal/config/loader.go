package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Binance ──
	setStr(&cfg.Binance.APIKey, "ARBOT_BINANCE_API_KEY")
	setStr(&cfg.Binance.SecretKey, "ARBOT_BINANCE_SECRET_KEY")
	setStr(&cfg.Binance.BaseURL, "ARBOT_BINANCE_BASE_URL")
	setStr(&cfg.Binance.WSURL, "ARBOT_BINANCE_WS_URL")

	// ── Upbit ──
	setStr(&cfg.Upbit.AccessKey, "ARBOT_UPBIT_ACCESS_KEY")
	setStr(&cfg.Upbit.SecretKey, "ARBOT_UPBIT_SECRET_KEY")
	setStr(&cfg.Upbit.BaseURL, "ARBOT_UPBIT_BASE_URL")
	setStr(&cfg.Upbit.WSURL, "ARBOT_UPBIT_WS_URL")
	setFloat64(&cfg.Upbit.TradingFee, "ARBOT_UPBIT_TRADING_FEE")
	setFloat64(&cfg.Upbit.LotStep, "ARBOT_UPBIT_LOT_STEP")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBOT_REDIS_TLS_ENABLED")

	// ── Trading ──
	setStringSlice(&cfg.Trading.Symbols, "ARBOT_TRADING_SYMBOLS")
	setFloat64(&cfg.Trading.TargetSize, "ARBOT_TRADING_TARGET_SIZE")
	setFloat64(&cfg.Trading.MinSpread, "ARBOT_TRADING_MIN_SPREAD")
	setFloat64(&cfg.Trading.MinProfit, "ARBOT_TRADING_MIN_PROFIT")
	setDuration(&cfg.Trading.CycleInterval, "ARBOT_TRADING_CYCLE_INTERVAL")
	setDuration(&cfg.Trading.DataRetryDelay, "ARBOT_TRADING_DATA_RETRY_DELAY")
	setDuration(&cfg.Trading.StateRefresh, "ARBOT_TRADING_STATE_REFRESH")
	setInt(&cfg.Trading.BookCap, "ARBOT_TRADING_BOOK_CAP")
	setInt(&cfg.Trading.CandleCap, "ARBOT_TRADING_CANDLE_CAP")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBOT_MODE")
	setStr(&cfg.LogLevel, "ARBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
