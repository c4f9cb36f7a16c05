package arbitrage

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/songsb13/arbot/internal/domain"
)

func vwap(sym domain.Symbol, bid, ask string) domain.VWAPResult {
	return domain.VWAPResult{
		Symbol: sym,
		Bids:   decimal.RequireFromString(bid),
		Asks:   decimal.RequireFromString(ask),
	}
}

func TestCompareIdenticalFlatBooksAreZero(t *testing.T) {
	eth := domain.NewSymbol("BTC", "ETH")
	xrp := domain.NewSymbol("BTC", "XRP")

	// Flat books: average bid equals average ask, identical on both venues.
	books := map[domain.Symbol]domain.VWAPResult{
		eth: vwap(eth, "0.05", "0.05"),
		xrp: vwap(xrp, "0.00002", "0.00002"),
	}

	forward, backward := Compare(books, books)
	for sym, v := range forward {
		if v != 0 {
			t.Errorf("primary_to_secondary[%s] = %v, want exactly 0", sym, v)
		}
	}
	for sym, v := range backward {
		if v != 0 {
			t.Errorf("secondary_to_primary[%s] = %v, want exactly 0", sym, v)
		}
	}
	if len(forward) != 2 || len(backward) != 2 {
		t.Fatalf("map sizes = %d/%d, want 2/2", len(forward), len(backward))
	}
}

func TestCompareDirections(t *testing.T) {
	eth := domain.NewSymbol("BTC", "ETH")
	primary := map[domain.Symbol]domain.VWAPResult{eth: vwap(eth, "0.049", "0.050")}
	secondary := map[domain.Symbol]domain.VWAPResult{eth: vwap(eth, "0.052", "0.053")}

	forward, backward := Compare(primary, secondary)

	// Buy primary at 0.050, sell secondary at 0.052: +4%.
	if got, want := forward[eth], 0.04; !closeTo(got, want) {
		t.Errorf("forward = %v, want %v", got, want)
	}
	// Buy secondary at 0.053, sell primary at 0.049: negative.
	if backward[eth] >= 0 {
		t.Errorf("backward = %v, want negative", backward[eth])
	}
}

func TestCompareSkipsUnsharedSymbols(t *testing.T) {
	eth := domain.NewSymbol("BTC", "ETH")
	ada := domain.NewSymbol("BTC", "ADA")
	primary := map[domain.Symbol]domain.VWAPResult{
		eth: vwap(eth, "0.05", "0.051"),
		ada: vwap(ada, "0.00001", "0.000011"),
	}
	secondary := map[domain.Symbol]domain.VWAPResult{eth: vwap(eth, "0.05", "0.051")}

	forward, backward := Compare(primary, secondary)
	if _, ok := forward[ada]; ok {
		t.Errorf("forward contains symbol missing on secondary venue")
	}
	if len(forward) != 1 || len(backward) != 1 {
		t.Fatalf("map sizes = %d/%d, want 1/1", len(forward), len(backward))
	}
}

func closeTo(got, want float64) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-12
}
