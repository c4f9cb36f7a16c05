package arbitrage

import (
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/songsb13/arbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var ethBTC = domain.NewSymbol("BTC", "ETH")

// venueState builds a fully tradeable venue with the given fee schedule.
func venueState(name string, fee string, feeCount int, balances map[string]string) VenueState {
	bal := make(map[string]decimal.Decimal, len(balances))
	for coin, v := range balances {
		bal[coin] = dec(v)
	}
	return VenueState{
		Name:       name,
		TradingFee: dec(fee),
		FeeCount:   feeCount,
		TransactionFees: map[string]decimal.Decimal{
			"ETH": dec("0.01"),
			"BTC": dec("0.0005"),
		},
		Balances: bal,
		DepositAddresses: map[string]string{
			"ETH": "0xdeadbeef",
			"BTC": "bc1qexample",
		},
		LotSteps: map[domain.Symbol]decimal.Decimal{ethBTC: dec("0.01")},
	}
}

func baseInputs() Inputs {
	return Inputs{
		Primary:   venueState("binance", "0.001", 1, map[string]string{"BTC": "1"}),
		Secondary: venueState("upbit", "0.0005", 2, map[string]string{"ETH": "100"}),
		PrimaryBooks: map[domain.Symbol]domain.VWAPResult{
			ethBTC: {Symbol: ethBTC, Bids: dec("0.0476"), Asks: dec("0.0477")},
		},
		SecondaryBooks: map[domain.Symbol]domain.VWAPResult{
			ethBTC: {Symbol: ethBTC, Bids: dec("0.05"), Asks: dec("0.0501")},
		},
		PrimaryToSecondary: domain.SpreadMap{ethBTC: 0.048},
		SecondaryToPrimary: domain.SpreadMap{ethBTC: -0.05},
	}
}

func TestSelectBestPicksProfitableDirection(t *testing.T) {
	e := NewEvaluator(EvaluatorConfig{MinSpread: 0.01, MinProfit: dec("0.0001")}, testLogger())

	c, ok := e.SelectBest(baseInputs())
	if !ok {
		t.Fatalf("SelectBest found nothing")
	}
	if c.Symbol != ethBTC {
		t.Errorf("symbol = %s, want %s", c.Symbol, ethBTC)
	}
	if c.Direction != domain.PrimaryToSecondary {
		t.Errorf("direction = %s, want primary_to_secondary", c.Direction)
	}

	// Quote balance 1 BTC at sale price 0.05 caps at 20 ETH, within the
	// 100 ETH sell-side balance, on a 0.01 lot step.
	if !c.TradableBase.Equal(dec("20")) {
		t.Errorf("tradable base = %s, want 20", c.TradableBase)
	}
	if !c.TradableQuote.Equal(dec("1")) {
		t.Errorf("tradable quote = %s, want 1", c.TradableQuote)
	}
	if c.Profit.Sign() <= 0 {
		t.Errorf("profit = %s, want positive", c.Profit)
	}
	if c.ID == "" {
		t.Errorf("candidate ID not assigned")
	}
}

func TestSelectBestNoCandidateBelowThreshold(t *testing.T) {
	e := NewEvaluator(EvaluatorConfig{MinSpread: 0.10, MinProfit: dec("0.0001")}, testLogger())

	in := baseInputs()
	if _, ok := e.SelectBest(in); ok {
		t.Fatalf("SelectBest returned a candidate with every spread below the threshold")
	}
}

func TestSelectBestSkipsMissingDepositAddress(t *testing.T) {
	e := NewEvaluator(EvaluatorConfig{MinSpread: 0.01, MinProfit: dec("0.0001")}, testLogger())

	in := baseInputs()
	delete(in.Secondary.DepositAddresses, "ETH")
	if _, ok := e.SelectBest(in); ok {
		t.Fatalf("SelectBest returned a candidate without a deposit address on the sell venue")
	}
}

func TestSelectBestEnforcesMinProfit(t *testing.T) {
	e := NewEvaluator(EvaluatorConfig{MinSpread: 0.01, MinProfit: dec("10")}, testLogger())

	if _, ok := e.SelectBest(baseInputs()); ok {
		t.Fatalf("SelectBest returned a candidate below the absolute profit floor")
	}
}

func TestSelectBestTruncatesToCoarserLotStep(t *testing.T) {
	e := NewEvaluator(EvaluatorConfig{MinSpread: 0.01, MinProfit: dec("0.0001")}, testLogger())

	in := baseInputs()
	// Sell-side balance of 7.77 ETH is the cap; the coarser 0.5 step wins.
	in.Secondary.Balances["ETH"] = dec("7.77")
	in.Secondary.LotSteps[ethBTC] = dec("0.5")

	c, ok := e.SelectBest(in)
	if !ok {
		t.Fatalf("SelectBest found nothing")
	}
	if !c.TradableBase.Equal(dec("7.5")) {
		t.Errorf("tradable base = %s, want 7.5 after truncation to 0.5 step", c.TradableBase)
	}
}

func TestRealDiffFeeCompounding(t *testing.T) {
	buy := venueState("binance", "0.001", 1, nil)
	sellOnce := venueState("upbit", "0.001", 1, nil)
	sellTwice := venueState("upbit", "0.001", 2, nil)

	once := realDiff(0.05, buy, sellOnce)
	twice := realDiff(0.05, buy, sellTwice)

	if !twice.LessThan(once) {
		t.Fatalf("realDiff with fee_count=2 (%s) not below fee_count=1 (%s)", twice, once)
	}
	// The extra fee event must shave off roughly one more fee's worth.
	delta := once.Sub(twice)
	if delta.LessThan(dec("0.0005")) {
		t.Errorf("fee compounding delta = %s, want a measurable gap", delta)
	}

	// Sanity: 1.05 * 0.999^2 - 1 for the single-count case.
	want := dec("1.05").Mul(dec("0.999")).Mul(dec("0.999")).Sub(dec("1"))
	if !once.Equal(want) {
		t.Errorf("realDiff = %s, want %s", once, want)
	}
}
