package arbitrage

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/songsb13/arbot/internal/domain"
)

// VenueState is the cached per-venue data the evaluator works from: fees,
// balances, deposit addresses, and lot steps. It is refreshed on a timer by
// the trader, not fetched per cycle.
type VenueState struct {
	Name             string
	TradingFee       decimal.Decimal
	FeeCount         int
	TransactionFees  map[string]decimal.Decimal
	Balances         map[string]decimal.Decimal
	DepositAddresses map[string]string
	LotSteps         map[domain.Symbol]decimal.Decimal
}

// EvaluatorConfig holds the two profitability thresholds.
type EvaluatorConfig struct {
	// MinSpread is the minimum fractional spread a symbol/direction must
	// exceed to be considered.
	MinSpread float64
	// MinProfit is the minimum absolute profit in quote units the candidate
	// must clear after all fees.
	MinProfit decimal.Decimal
}

// Inputs bundles one cycle's worth of evaluator input: both venues' cached
// state, their VWAP results, and the two directional spread maps computed
// from them.
type Inputs struct {
	Primary   VenueState
	Secondary VenueState

	PrimaryBooks   map[domain.Symbol]domain.VWAPResult
	SecondaryBooks map[domain.Symbol]domain.VWAPResult

	PrimaryToSecondary domain.SpreadMap
	SecondaryToPrimary domain.SpreadMap
}

// Evaluator selects the most profitable tradeable symbol+direction of a
// cycle, or reports that none clears the thresholds.
type Evaluator struct {
	cfg    EvaluatorConfig
	logger *slog.Logger
}

// NewEvaluator creates an Evaluator with the given thresholds.
func NewEvaluator(cfg EvaluatorConfig, logger *slog.Logger) *Evaluator {
	return &Evaluator{cfg: cfg, logger: logger.With(slog.String("component", "evaluator"))}
}

// SelectBest scans every symbol in both directions and returns the single
// candidate with the highest quote-currency profit that passes all filters.
// The second return is false when nothing profitable was found, which is a
// normal, frequent outcome; the caller just retries the next cycle.
func (e *Evaluator) SelectBest(in Inputs) (domain.ProfitCandidate, bool) {
	var best domain.ProfitCandidate
	found := false

	consider := func(c domain.ProfitCandidate, ok bool) {
		if !ok {
			return
		}
		if !found || c.Profit.GreaterThan(best.Profit) {
			best = c
			found = true
		}
	}

	for sym, spread := range in.PrimaryToSecondary {
		consider(e.evaluate(sym, spread, domain.PrimaryToSecondary, in.Primary, in.Secondary, in.SecondaryBooks))
	}
	for sym, spread := range in.SecondaryToPrimary {
		consider(e.evaluate(sym, spread, domain.SecondaryToPrimary, in.Secondary, in.Primary, in.PrimaryBooks))
	}

	return best, found
}

// evaluate runs all filters for one symbol/direction. buy is the venue the
// base coin is bought on; sell the venue it is sold on; sellBooks that
// venue's VWAP results (its average bid prices the sale).
func (e *Evaluator) evaluate(
	sym domain.Symbol,
	spread float64,
	dir domain.Direction,
	buy, sell VenueState,
	sellBooks map[domain.Symbol]domain.VWAPResult,
) (domain.ProfitCandidate, bool) {
	if spread <= e.cfg.MinSpread {
		return domain.ProfitCandidate{}, false
	}

	quote, base, err := domain.ParseSymbol(sym)
	if err != nil {
		return domain.ProfitCandidate{}, false
	}

	// Both venues need a deposit address for the traded coin, or the legs
	// cannot settle. Missing address means "not tradeable", not an error.
	if buy.DepositAddresses[base] == "" || sell.DepositAddresses[base] == "" {
		e.logger.Debug("skipping symbol without deposit addresses",
			slog.String("symbol", string(sym)),
			slog.String("direction", dir.String()),
		)
		return domain.ProfitCandidate{}, false
	}

	book, ok := sellBooks[sym]
	if !ok || book.Bids.Sign() <= 0 {
		return domain.ProfitCandidate{}, false
	}
	bidPrice := book.Bids

	// Tradeable base quantity: the quote balance on the buy side converted
	// to base at the sale price, capped by the base balance on the sell
	// side, truncated to the coarser venue's lot step.
	quoteBalance := buy.Balances[quote]
	baseBalance := sell.Balances[base]
	tradableBase := decimal.Min(quoteBalance.Div(bidPrice), baseBalance)
	tradableBase = truncateToStep(tradableBase, coarserStep(buy.LotSteps[sym], sell.LotSteps[sym]))
	if tradableBase.Sign() <= 0 {
		return domain.ProfitCandidate{}, false
	}
	tradableQuote := tradableBase.Mul(bidPrice)

	diff := realDiff(spread, buy, sell)

	// Transaction fees in quote terms: withdrawing the base coin from the
	// buy venue (fee charged in base, converted at the sale price) and
	// withdrawing the quote proceeds from the sell venue.
	txFees := buy.TransactionFees[base].Mul(bidPrice).Add(sell.TransactionFees[quote])
	profit := tradableQuote.Mul(diff).Sub(txFees)

	if !profit.GreaterThan(e.cfg.MinProfit) {
		return domain.ProfitCandidate{}, false
	}

	return domain.ProfitCandidate{
		ID:            uuid.Must(uuid.NewRandom()).String(),
		Symbol:        sym,
		Direction:     dir,
		Spread:        spread,
		RealDiff:      diff,
		Profit:        profit,
		TradableQuote: tradableQuote,
		TradableBase:  tradableBase,
		DetectedAt:    time.Now(),
	}, true
}

// realDiff folds the trading fees of both legs into the raw spread. Each
// venue's fee applies FeeCount times: once for a directly quoted market, twice
// when the venue routes through an intermediate asset (KRW→BTC→ALT).
func realDiff(spread float64, buy, sell VenueState) decimal.Decimal {
	one := decimal.New(1, 0)
	gross := one.Add(decimal.NewFromFloat(spread))
	buyFactor := one.Sub(buy.TradingFee).Pow(decimal.NewFromInt(int64(buy.FeeCount)))
	sellFactor := one.Sub(sell.TradingFee).Pow(decimal.NewFromInt(int64(sell.FeeCount)))
	return gross.Mul(buyFactor).Mul(sellFactor).Sub(one)
}

// coarserStep returns the larger of two lot steps; a zero step is treated as
// no constraint from that venue.
func coarserStep(a, b decimal.Decimal) decimal.Decimal {
	if a.Sign() <= 0 {
		return b
	}
	if b.Sign() <= 0 {
		return a
	}
	return decimal.Max(a, b)
}

// truncateToStep rounds qty down to a whole multiple of step.
func truncateToStep(qty, step decimal.Decimal) decimal.Decimal {
	if step.Sign() <= 0 {
		return qty
	}
	return qty.Div(step).Floor().Mul(step)
}
