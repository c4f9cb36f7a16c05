package arbitrage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/songsb13/arbot/internal/domain"
	"github.com/songsb13/arbot/internal/marketdata"
	"github.com/songsb13/arbot/internal/retry"
)

// Executor places the two legs of a selected candidate. Order placement is
// external to the engine; a nil Executor makes the trader detect-only.
type Executor interface {
	Execute(ctx context.Context, c domain.ProfitCandidate) error
}

// TraderConfig holds the trading-cycle parameters.
type TraderConfig struct {
	Symbols []domain.Symbol
	// TargetSize is the quote notional the VWAP is computed for.
	TargetSize decimal.Decimal
	// CycleInterval is the pause between evaluation cycles.
	CycleInterval time.Duration
	// DataRetryDelay is the wait after a not-ready read before retrying.
	DataRetryDelay time.Duration
	// StateRefresh is how often balances, fees, addresses and lot steps are
	// re-fetched; they are expensive and rate-limited relative to order-book
	// reads.
	StateRefresh time.Duration

	Evaluator EvaluatorConfig
}

// Trader drives the per-cycle state machine: refresh cached venue state, read
// sealed order books, compute VWAPs, compare spreads, select a candidate, and
// execute or retry. Failures are cycle-scoped: logged and abandoned without
// touching the shared stores.
type Trader struct {
	cfg TraderConfig

	primary   domain.Exchange
	secondary domain.Exchange

	primaryData   *marketdata.Store
	secondaryData *marketdata.Store

	evaluator *Evaluator
	executor  Executor
	history   domain.OpportunityStore
	bus       domain.SignalBus
	logger    *slog.Logger

	primaryState   VenueState
	secondaryState VenueState
	stateFetchedAt time.Time
}

// NewTrader wires a Trader. history, bus, and executor may be nil; the
// corresponding steps are skipped.
func NewTrader(
	cfg TraderConfig,
	primary, secondary domain.Exchange,
	primaryData, secondaryData *marketdata.Store,
	executor Executor,
	history domain.OpportunityStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *Trader {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = time.Second
	}
	if cfg.DataRetryDelay <= 0 {
		cfg.DataRetryDelay = time.Second
	}
	if cfg.StateRefresh <= 0 {
		cfg.StateRefresh = 600 * time.Second
	}
	return &Trader{
		cfg:           cfg,
		primary:       primary,
		secondary:     secondary,
		primaryData:   primaryData,
		secondaryData: secondaryData,
		evaluator:     NewEvaluator(cfg.Evaluator, logger),
		executor:      executor,
		history:       history,
		bus:           bus,
		logger: logger.With(
			slog.String("component", "trader"),
			slog.String("primary", primary.Name()),
			slog.String("secondary", secondary.Name()),
		),
	}
}

// Run executes cycles until ctx is cancelled. A panic inside one cycle is
// recovered and logged; the next cycle starts fresh.
func (t *Trader) Run(ctx context.Context) error {
	t.logger.Info("trader started",
		slog.Int("symbols", len(t.cfg.Symbols)),
		slog.String("target_size", t.cfg.TargetSize.String()),
	)
	defer t.logger.Info("trader stopped")

	for {
		if err := t.safeCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Error("cycle failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.cfg.CycleInterval):
		}
	}
}

func (t *Trader) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return t.runCycle(ctx)
}

func (t *Trader) runCycle(ctx context.Context) error {
	if err := t.refreshVenueState(ctx); err != nil {
		return fmt.Errorf("refresh venue state: %w", err)
	}

	priBooks, secBooks, forward, backward, err := CompareOrderBooks(
		t.primaryData, t.secondaryData, t.cfg.Symbols, t.cfg.TargetSize,
	)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if errors.Is(err, domain.ErrDataNotReady) {
			t.logger.Debug("order books not ready, waiting", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(t.cfg.DataRetryDelay):
			}
			return nil
		}
		return err
	}

	t.publishSpreads(ctx, forward, backward)

	candidate, ok := t.evaluator.SelectBest(Inputs{
		Primary:            t.primaryState,
		Secondary:          t.secondaryState,
		PrimaryBooks:       priBooks,
		SecondaryBooks:     secBooks,
		PrimaryToSecondary: forward,
		SecondaryToPrimary: backward,
	})
	if !ok {
		t.logger.Debug("no profitable candidate this cycle")
		return nil
	}

	t.logger.Info("candidate selected",
		slog.String("symbol", string(candidate.Symbol)),
		slog.String("direction", candidate.Direction.String()),
		slog.Float64("spread", candidate.Spread),
		slog.String("profit", candidate.Profit.String()),
		slog.String("tradable_quote", candidate.TradableQuote.String()),
	)

	if t.history != nil {
		if err := t.history.Insert(ctx, candidate); err != nil {
			t.logger.Warn("record candidate failed", slog.String("error", err.Error()))
		}
	}
	t.publishCandidate(ctx, candidate)

	if t.executor == nil {
		return nil
	}
	if err := t.executor.Execute(ctx, candidate); err != nil {
		return fmt.Errorf("execute %s: %w", candidate.ID, err)
	}
	if t.history != nil {
		if err := t.history.MarkExecuted(ctx, candidate.ID); err != nil {
			t.logger.Warn("mark executed failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// CompareOrderBooks reads both venues' sealed books for the symbol list,
// computes VWAPs at the target quote size, and returns both result sets with
// the two directional spread maps. domain.ErrDataNotReady propagates when
// either venue has an unsealed symbol.
func CompareOrderBooks(
	primary, secondary *marketdata.Store,
	symbols []domain.Symbol,
	targetSize decimal.Decimal,
) (priBooks, secBooks map[domain.Symbol]domain.VWAPResult, forward, backward domain.SpreadMap, err error) {
	priBooks, err = marketdata.AverageOrderBook(primary, symbols, targetSize)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	secBooks, err = marketdata.AverageOrderBook(secondary, symbols, targetSize)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	forward, backward = Compare(priBooks, secBooks)
	return priBooks, secBooks, forward, backward, nil
}

// refreshVenueState re-fetches fees, balances, deposit addresses and lot
// steps when the cached copy is older than StateRefresh.
func (t *Trader) refreshVenueState(ctx context.Context) error {
	if !t.stateFetchedAt.IsZero() && time.Since(t.stateFetchedAt) < t.cfg.StateRefresh {
		return nil
	}

	pri, err := fetchVenueState(ctx, t.primary, t.cfg.Symbols)
	if err != nil {
		return err
	}
	sec, err := fetchVenueState(ctx, t.secondary, t.cfg.Symbols)
	if err != nil {
		return err
	}

	t.primaryState = pri
	t.secondaryState = sec
	t.stateFetchedAt = time.Now()
	t.logger.Info("venue state refreshed",
		slog.String("primary_fee", pri.TradingFee.String()),
		slog.String("secondary_fee", sec.TradingFee.String()),
	)
	return nil
}

// fetchVenueState pulls one venue's evaluator inputs, retrying each call with
// the default bounded policy. Missing deposit addresses are recorded as
// absent, not failures.
func fetchVenueState(ctx context.Context, ex domain.Exchange, symbols []domain.Symbol) (VenueState, error) {
	state := VenueState{
		Name:             ex.Name(),
		FeeCount:         ex.FeeCount(),
		DepositAddresses: make(map[string]string),
		LotSteps:         make(map[domain.Symbol]decimal.Decimal),
	}

	err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
		fee, err := ex.TradingFee(ctx)
		if err != nil {
			return err
		}
		state.TradingFee = fee
		return nil
	})
	if err != nil {
		return VenueState{}, err
	}

	err = retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
		fees, err := ex.TransactionFees(ctx)
		if err != nil {
			return err
		}
		state.TransactionFees = fees
		return nil
	})
	if err != nil {
		return VenueState{}, err
	}

	err = retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
		balances, err := ex.Balances(ctx)
		if err != nil {
			return err
		}
		state.Balances = balances
		return nil
	})
	if err != nil {
		return VenueState{}, err
	}

	coins := make(map[string]struct{})
	for _, sym := range symbols {
		coins[sym.Base()] = struct{}{}
		coins[sym.Quote()] = struct{}{}

		step, err := ex.LotStepSize(ctx, sym)
		if err != nil {
			return VenueState{}, err
		}
		state.LotSteps[sym] = step
	}
	for coin := range coins {
		addr, err := ex.DepositAddress(ctx, coin)
		if err != nil {
			// Absent address just marks the coin untradeable.
			continue
		}
		state.DepositAddresses[coin] = addr
	}

	return state, nil
}

// spreadEvent is the JSON shape published to the "spreads" channel.
type spreadEvent struct {
	Event              string             `json:"event"`
	PrimaryToSecondary map[string]float64 `json:"primary_to_secondary"`
	SecondaryToPrimary map[string]float64 `json:"secondary_to_primary"`
	Timestamp          string             `json:"timestamp"`
}

// candidateEvent is the JSON shape published to the "candidates" channel.
type candidateEvent struct {
	Event     string  `json:"event"`
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Direction string  `json:"direction"`
	Spread    float64 `json:"spread"`
	Profit    string  `json:"profit"`
	Timestamp string  `json:"timestamp"`
}

func (t *Trader) publishSpreads(ctx context.Context, forward, backward domain.SpreadMap) {
	if t.bus == nil {
		return
	}
	ev := spreadEvent{
		Event:              "spread_update",
		PrimaryToSecondary: spreadMapJSON(forward),
		SecondaryToPrimary: spreadMapJSON(backward),
		Timestamp:          time.Now().UTC().Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := t.bus.Publish(ctx, "spreads", payload); err != nil {
		t.logger.Debug("publish spreads failed", slog.String("error", err.Error()))
	}
}

func (t *Trader) publishCandidate(ctx context.Context, c domain.ProfitCandidate) {
	if t.bus == nil {
		return
	}
	ev := candidateEvent{
		Event:     "candidate_selected",
		ID:        c.ID,
		Symbol:    string(c.Symbol),
		Direction: c.Direction.String(),
		Spread:    c.Spread,
		Profit:    c.Profit.String(),
		Timestamp: c.DetectedAt.UTC().Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := t.bus.Publish(ctx, "candidates", payload); err != nil {
		t.logger.Debug("publish candidate failed", slog.String("error", err.Error()))
	}
}

func spreadMapJSON(m domain.SpreadMap) map[string]float64 {
	out := make(map[string]float64, len(m))
	for sym, v := range m {
		out[string(sym)] = v
	}
	return out
}
