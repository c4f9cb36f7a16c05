package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/songsb13/arbot/internal/cache/redis"
	"github.com/songsb13/arbot/internal/config"
	"github.com/songsb13/arbot/internal/domain"
	"github.com/songsb13/arbot/internal/exchange/binance"
	"github.com/songsb13/arbot/internal/exchange/upbit"
	"github.com/songsb13/arbot/internal/marketdata"
	"github.com/songsb13/arbot/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Venue adapters. Primary quotes alts in BTC; secondary is the KRW venue.
	Primary   domain.Exchange
	Secondary domain.Exchange

	// Per-venue market-data stores fed by the adapters' streams.
	PrimaryData   *marketdata.Store
	SecondaryData *marketdata.Store

	// Symbols is the normalized watch list from config.
	Symbols []domain.Symbol

	// Optional infrastructure; nil when disabled in config.
	History     domain.OpportunityStore
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
}

// needsVenues returns true for modes that talk to exchanges directly.
func needsVenues(mode string) bool {
	return strings.ToLower(mode) == "arbitrage"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	for _, s := range cfg.Trading.Symbols {
		deps.Symbols = append(deps.Symbols, domain.Symbol(strings.ToUpper(s)))
	}

	// --- Redis (signal bus + shared REST rate limiter) ---
	if cfg.Redis.Enabled {
		rdb, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })

		deps.SignalBus = redis.NewSignalBus(rdb)
		deps.RateLimiter = redis.NewRateLimiter(rdb)
	}

	// --- PostgreSQL (opportunity history) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.History = postgres.NewOpportunityStore(pgClient.Pool())
	}

	// --- Venue adapters and market-data stores ---
	if needsVenues(cfg.Mode) {
		deps.Primary = binance.New(binance.ClientConfig{
			APIKey:    cfg.Binance.APIKey,
			SecretKey: cfg.Binance.SecretKey,
			BaseURL:   cfg.Binance.BaseURL,
			WSURL:     cfg.Binance.WSURL,
		}, deps.RateLimiter, logger)

		withdrawalFees := make(map[string]decimal.Decimal, len(cfg.Upbit.WithdrawalFees))
		for coin, fee := range cfg.Upbit.WithdrawalFees {
			withdrawalFees[strings.ToUpper(coin)] = decimal.NewFromFloat(fee)
		}
		deps.Secondary = upbit.New(upbit.ClientConfig{
			AccessKey:      cfg.Upbit.AccessKey,
			SecretKey:      cfg.Upbit.SecretKey,
			BaseURL:        cfg.Upbit.BaseURL,
			WSURL:          cfg.Upbit.WSURL,
			TradingFee:     decimal.NewFromFloat(cfg.Upbit.TradingFee),
			WithdrawalFees: withdrawalFees,
			LotStep:        decimal.NewFromFloat(cfg.Upbit.LotStep),
		}, deps.RateLimiter, logger)

		deps.PrimaryData = marketdata.NewStore(cfg.Trading.BookCap, cfg.Trading.CandleCap,
			logger.With(slog.String("venue", deps.Primary.Name())))
		deps.SecondaryData = marketdata.NewStore(cfg.Trading.BookCap, cfg.Trading.CandleCap,
			logger.With(slog.String("venue", deps.Secondary.Name())))
	}

	return deps, cleanup, nil
}
