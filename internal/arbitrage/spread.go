// Package arbitrage implements the cross-exchange engine: spread comparison
// between two venues' VWAP results, profitability evaluation under fees and
// balances, and the trading cycle that drives them.
package arbitrage

import (
	"github.com/songsb13/arbot/internal/domain"
)

// Compare computes the two directional spread maps for every symbol present
// in both VWAP result sets. Symbols listed on only one venue are skipped;
// the venues need not share a full symbol set.
//
// primaryToSecondary[sym] is the fractional profit of buying at the primary
// venue's average ask and selling at the secondary venue's average bid;
// secondaryToPrimary is the mirror. Spreads are the only place engine math
// leaves decimal for float64, and only for output.
func Compare(primary, secondary map[domain.Symbol]domain.VWAPResult) (primaryToSecondary, secondaryToPrimary domain.SpreadMap) {
	primaryToSecondary = make(domain.SpreadMap, len(primary))
	secondaryToPrimary = make(domain.SpreadMap, len(primary))

	for sym, pri := range primary {
		sec, ok := secondary[sym]
		if !ok {
			continue
		}
		if pri.Asks.Sign() <= 0 || sec.Asks.Sign() <= 0 {
			continue
		}
		forward, _ := sec.Bids.Sub(pri.Asks).Div(pri.Asks).Float64()
		backward, _ := pri.Bids.Sub(sec.Asks).Div(sec.Asks).Float64()
		primaryToSecondary[sym] = forward
		secondaryToPrimary[sym] = backward
	}
	return primaryToSecondary, secondaryToPrimary
}
