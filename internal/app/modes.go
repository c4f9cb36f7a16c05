package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/songsb13/arbot/internal/arbitrage"
)

// ArbitrageMode runs the full engine: both venue streams feeding the
// market-data stores and the trading cycle evaluating them. The mode is
// detect-only; selected candidates are recorded and published, not executed.
func (a *App) ArbitrageMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting arbitrage mode",
		slog.String("primary", deps.Primary.Name()),
		slog.String("secondary", deps.Secondary.Name()),
		slog.Int("symbols", len(deps.Symbols)),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Primary.Stream(ctx, deps.Symbols, deps.PrimaryData)
	})
	g.Go(func() error {
		return deps.Secondary.Stream(ctx, deps.Symbols, deps.SecondaryData)
	})

	trader := arbitrage.NewTrader(
		arbitrage.TraderConfig{
			Symbols:        deps.Symbols,
			TargetSize:     decimal.NewFromFloat(a.cfg.Trading.TargetSize),
			CycleInterval:  a.cfg.Trading.CycleInterval.Duration,
			DataRetryDelay: a.cfg.Trading.DataRetryDelay.Duration,
			StateRefresh:   a.cfg.Trading.StateRefresh.Duration,
			Evaluator: arbitrage.EvaluatorConfig{
				MinSpread: a.cfg.Trading.MinSpread,
				MinProfit: decimal.NewFromFloat(a.cfg.Trading.MinProfit),
			},
		},
		deps.Primary, deps.Secondary,
		deps.PrimaryData, deps.SecondaryData,
		nil, // detect-only
		deps.History,
		deps.SignalBus,
		a.logger,
	)
	g.Go(func() error {
		return trader.Run(ctx)
	})

	return g.Wait()
}

// MonitorMode is a read-only consumer: it subscribes to the engine's bus
// channels and logs what another instance in arbitrage mode publishes.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	if deps.SignalBus == nil {
		return fmt.Errorf("monitor mode: redis signal bus is not configured")
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, channel := range []string{"spreads", "candidates"} {
		channel := channel
		g.Go(func() error {
			ch, err := deps.SignalBus.Subscribe(ctx, channel)
			if err != nil {
				return fmt.Errorf("monitor mode: subscribe %s: %w", channel, err)
			}
			logger := a.logger.With(slog.String("channel", channel))
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case payload, ok := <-ch:
					if !ok {
						return nil
					}
					logger.Info("signal received", slog.String("payload", string(payload)))
				}
			}
		})
	}

	return g.Wait()
}
