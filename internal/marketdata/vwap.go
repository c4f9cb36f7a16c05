package marketdata

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/songsb13/arbot/internal/domain"
)

// vwapScale is the generic minimum price precision: results are truncated
// (rounded toward zero) to this many fractional digits.
const vwapScale = 8

// VWAP computes the volume-weighted average bid and ask price that a trade of
// roughly targetSize quote units would realize against the sealed batch.
//
// Levels are walked in the order they were received; adapters push them
// best-price-first and the calculator does not re-sort (a documented
// assumption, not an enforced guarantee). Accumulation stops once the
// cumulative quote notional reaches targetSize. If the buffered depth runs
// out first, the averages cover whatever depth was available and the result
// is flagged Partial.
func VWAP(symbol domain.Symbol, batch []domain.BookFragment, targetSize decimal.Decimal) (domain.VWAPResult, error) {
	if len(batch) == 0 {
		return domain.VWAPResult{}, fmt.Errorf("marketdata: vwap %s: empty batch", symbol)
	}
	if targetSize.Sign() <= 0 {
		return domain.VWAPResult{}, fmt.Errorf("marketdata: vwap %s: target size must be positive", symbol)
	}

	bids := make([]domain.BookLevel, 0, len(batch))
	asks := make([]domain.BookLevel, 0, len(batch))
	for _, frag := range batch {
		bids = append(bids, frag.Bids...)
		asks = append(asks, frag.Asks...)
	}

	bidAvg, bidFull, err := sideAverage(bids, targetSize)
	if err != nil {
		return domain.VWAPResult{}, fmt.Errorf("marketdata: vwap %s bids: %w", symbol, err)
	}
	askAvg, askFull, err := sideAverage(asks, targetSize)
	if err != nil {
		return domain.VWAPResult{}, fmt.Errorf("marketdata: vwap %s asks: %w", symbol, err)
	}

	return domain.VWAPResult{
		Symbol:  symbol,
		Bids:    bidAvg,
		Asks:    askAvg,
		Partial: !bidFull || !askFull,
	}, nil
}

// sideAverage walks one side of the book accumulating notional and amount
// until the target quote notional is covered. full reports whether the target
// was reached before depth ran out.
func sideAverage(levels []domain.BookLevel, targetSize decimal.Decimal) (avg decimal.Decimal, full bool, err error) {
	if len(levels) == 0 {
		return decimal.Decimal{}, false, fmt.Errorf("no levels")
	}

	notional := decimal.Zero
	amount := decimal.Zero
	for _, lvl := range levels {
		notional = notional.Add(lvl.Price.Mul(lvl.Amount))
		amount = amount.Add(lvl.Amount)
		if notional.GreaterThanOrEqual(targetSize) {
			full = true
			break
		}
	}
	if amount.Sign() <= 0 {
		return decimal.Decimal{}, false, fmt.Errorf("zero cumulative amount")
	}
	return notional.Div(amount).Truncate(vwapScale), full, nil
}

// AverageOrderBook takes the sealed batch for every requested symbol from the
// store and computes its VWAP at the given target quote size. It returns
// domain.ErrDataNotReady (wrapped with the symbol) as soon as any symbol has
// no sealed batch yet; the caller retries the whole call after a short delay.
func AverageOrderBook(store *Store, symbols []domain.Symbol, targetSize decimal.Decimal) (map[domain.Symbol]domain.VWAPResult, error) {
	out := make(map[domain.Symbol]domain.VWAPResult, len(symbols))
	for _, sym := range symbols {
		batch, err := store.TakeBook(sym)
		if err != nil {
			return nil, fmt.Errorf("marketdata: %s: %w", sym, err)
		}
		res, err := VWAP(sym, batch, targetSize)
		if err != nil {
			return nil, err
		}
		out[sym] = res
	}
	return out, nil
}
