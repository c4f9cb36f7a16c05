// Package domain defines the core types shared across the arbitrage engine:
// normalized symbols, order-book fragments, candles, VWAP results, and the
// small interfaces implemented by the infrastructure packages.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Symbol is a pair identifier normalized to "QUOTE_BASE" form, e.g. "BTC_ETH"
// meaning ETH priced in BTC. Venue adapters own the translation to and from
// native spellings ("ETHBTC", "ETH-BTC"); only the normalized form crosses
// into the engine.
type Symbol string

// NewSymbol builds a normalized Symbol from quote and base currency codes.
func NewSymbol(quote, base string) Symbol {
	return Symbol(strings.ToUpper(quote) + "_" + strings.ToUpper(base))
}

// ParseSymbol splits a normalized symbol into its quote and base codes.
func ParseSymbol(s Symbol) (quote, base string, err error) {
	parts := strings.SplitN(string(s), "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("domain: malformed symbol %q", s)
	}
	return parts[0], parts[1], nil
}

// Quote returns the quote currency code, or "" for a malformed symbol.
func (s Symbol) Quote() string {
	q, _, err := ParseSymbol(s)
	if err != nil {
		return ""
	}
	return q
}

// Base returns the base currency code, or "" for a malformed symbol.
func (s Symbol) Base() string {
	_, b, err := ParseSymbol(s)
	if err != nil {
		return ""
	}
	return b
}

// BookLevel is one resting order at one price. Amount is always positive;
// Price.Mul(Amount) is the quote-currency notional of the level.
type BookLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// BookFragment is the unit a venue adapter pushes into the market-data store:
// a small incremental batch of levels, not a full book replace. Fragments with
// an empty bid or ask side are dropped by the store.
type BookFragment struct {
	Bids []BookLevel
	Asks []BookLevel
}

// Candle is a single OHLCV bar. Timestamp is venue time in Unix milliseconds.
type Candle struct {
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Timestamp int64
}

// DataKind selects which buffer family of the market-data store an operation
// touches. The two kinds are guarded by independent locks.
type DataKind int

const (
	KindOrderBook DataKind = iota
	KindCandle
)

// String implements fmt.Stringer for log fields.
func (k DataKind) String() string {
	switch k {
	case KindOrderBook:
		return "orderbook"
	case KindCandle:
		return "candle"
	default:
		return fmt.Sprintf("DataKind(%d)", int(k))
	}
}

// VWAPResult is the volume-weighted average bid and ask price for one symbol
// at a requested quote notional. Bids is the average price a seller would
// realize selling into the book; Asks the average a buyer would pay.
type VWAPResult struct {
	Symbol Symbol
	Bids   decimal.Decimal
	Asks   decimal.Decimal
	// Partial is set when the buffered depth ran out before the requested
	// notional was covered, so the averages approximate a smaller trade.
	Partial bool
}

// Direction names which venue buys and which sells in a candidate trade.
type Direction int

const (
	PrimaryToSecondary Direction = iota // buy on primary, sell on secondary
	SecondaryToPrimary
)

// String implements fmt.Stringer for log fields and persistence.
func (d Direction) String() string {
	switch d {
	case PrimaryToSecondary:
		return "primary_to_secondary"
	case SecondaryToPrimary:
		return "secondary_to_primary"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection is the inverse of Direction.String, for rows coming back
// from persistence.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "primary_to_secondary":
		return PrimaryToSecondary, nil
	case "secondary_to_primary":
		return SecondaryToPrimary, nil
	default:
		return 0, fmt.Errorf("domain: unknown direction %q", s)
	}
}

// SpreadMap maps symbols to the signed fractional spread for one direction,
// before fees.
type SpreadMap map[Symbol]float64

// ProfitCandidate is the evaluator's pick: the single most profitable
// symbol+direction of a cycle, with the quantities that are actually movable
// given balances and lot steps.
type ProfitCandidate struct {
	ID            string
	Symbol        Symbol
	Direction     Direction
	Spread        float64
	RealDiff      decimal.Decimal // spread net of trading fees on both legs
	Profit        decimal.Decimal // quote currency, net of transaction fees
	TradableQuote decimal.Decimal
	TradableBase  decimal.Decimal
	DetectedAt    time.Time
}
