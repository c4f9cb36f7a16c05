package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarketWriter is the slice of the market-data store a venue stream writes to.
type MarketWriter interface {
	// AppendBook pushes one incremental order-book fragment for a symbol.
	AppendBook(symbol Symbol, frag BookFragment)
	// AppendCandle pushes one OHLCV bar for a symbol.
	AppendCandle(symbol Symbol, bar Candle)
}

// Exchange is the capability interface one venue adapter implements. The
// engine is written once against this interface; venue differences stay
// inside the adapters.
//
// Stream runs the venue's receive loop, pushing normalized fragments into the
// writer until ctx is cancelled. The remaining methods are REST-backed and may
// block on the network; all of them take a context and return explicit errors.
type Exchange interface {
	Name() string

	Stream(ctx context.Context, symbols []Symbol, w MarketWriter) error

	// TradingFee is the fractional fee per trade, e.g. 0.001.
	TradingFee(ctx context.Context) (decimal.Decimal, error)
	// TransactionFees maps coin code to the fixed withdrawal fee in that coin.
	TransactionFees(ctx context.Context) (map[string]decimal.Decimal, error)
	// Balances maps coin code to the available (unlocked) balance.
	Balances(ctx context.Context) (map[string]decimal.Decimal, error)
	// DepositAddress returns the venue's deposit address for a coin, or
	// ErrNotFound when the venue has none.
	DepositAddress(ctx context.Context, coin string) (string, error)
	// LotStepSize is the minimum order-quantity increment for a symbol.
	LotStepSize(ctx context.Context, symbol Symbol) (decimal.Decimal, error)

	// FeeCount is how many times the trading fee is charged per arbitrage
	// leg on this venue: 1 for a directly quoted market (BTC→ALT), 2 when
	// the quote must route through an intermediate asset (KRW→BTC→ALT).
	FeeCount() int
}

// OpportunityStore persists detected profit candidates for later analysis.
type OpportunityStore interface {
	Insert(ctx context.Context, c ProfitCandidate) error
	MarkExecuted(ctx context.Context, id string) error
	ListRecent(ctx context.Context, limit int) ([]ProfitCandidate, error)
}

// SignalBus provides pub/sub distribution of engine events (spread updates,
// selected candidates) to out-of-process consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter bounds how often venue REST endpoints are hit.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, windowSec int) (bool, error)
}
