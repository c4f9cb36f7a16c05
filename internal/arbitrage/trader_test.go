package arbitrage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/songsb13/arbot/internal/domain"
	"github.com/songsb13/arbot/internal/marketdata"
)

// fakeVenue is a canned domain.Exchange whose Stream blocks until cancel.
type fakeVenue struct {
	name     string
	fee      decimal.Decimal
	feeCount int
	balances map[string]decimal.Decimal
	txFees   map[string]decimal.Decimal
	step     decimal.Decimal
}

func (f *fakeVenue) Name() string  { return f.name }
func (f *fakeVenue) FeeCount() int { return f.feeCount }

func (f *fakeVenue) Stream(ctx context.Context, symbols []domain.Symbol, w domain.MarketWriter) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeVenue) TradingFee(ctx context.Context) (decimal.Decimal, error) {
	return f.fee, nil
}

func (f *fakeVenue) TransactionFees(ctx context.Context) (map[string]decimal.Decimal, error) {
	return f.txFees, nil
}

func (f *fakeVenue) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	return f.balances, nil
}

func (f *fakeVenue) DepositAddress(ctx context.Context, coin string) (string, error) {
	return "addr-" + coin, nil
}

func (f *fakeVenue) LotStepSize(ctx context.Context, symbol domain.Symbol) (decimal.Decimal, error) {
	return f.step, nil
}

type recordingExecutor struct {
	mu        sync.Mutex
	executed  []domain.ProfitCandidate
	onExecute func()
}

func (r *recordingExecutor) Execute(ctx context.Context, c domain.ProfitCandidate) error {
	r.mu.Lock()
	r.executed = append(r.executed, c)
	r.mu.Unlock()
	if r.onExecute != nil {
		r.onExecute()
	}
	return nil
}

type memoryHistory struct {
	mu       sync.Mutex
	inserted []domain.ProfitCandidate
	executed []string
}

func (m *memoryHistory) Insert(ctx context.Context, c domain.ProfitCandidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, c)
	return nil
}

func (m *memoryHistory) MarkExecuted(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed = append(m.executed, id)
	return nil
}

func (m *memoryHistory) ListRecent(ctx context.Context, limit int) ([]domain.ProfitCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserted, nil
}

// fillStore appends two-sided fragments until the book buffer seals.
func fillStore(s *marketdata.Store, sym domain.Symbol, bid, ask string, n int) {
	frag := domain.BookFragment{
		Bids: []domain.BookLevel{{Price: dec(bid), Amount: dec("10")}},
		Asks: []domain.BookLevel{{Price: dec(ask), Amount: dec("10")}},
	}
	for i := 0; i < n; i++ {
		s.AppendBook(sym, frag)
	}
}

func TestTraderCycleExecutesProfitableCandidate(t *testing.T) {
	const bookCap = 2
	logger := testLogger()

	primary := &fakeVenue{
		name:     "primary",
		fee:      dec("0.001"),
		feeCount: 1,
		balances: map[string]decimal.Decimal{"BTC": dec("1050")},
		txFees:   map[string]decimal.Decimal{"ETH": decimal.Zero, "BTC": decimal.Zero},
		step:     dec("0.1"),
	}
	secondary := &fakeVenue{
		name:     "secondary",
		fee:      dec("0.001"),
		feeCount: 1,
		balances: map[string]decimal.Decimal{"ETH": dec("5")},
		txFees:   map[string]decimal.Decimal{"ETH": decimal.Zero, "BTC": decimal.Zero},
		step:     dec("0.1"),
	}

	primaryData := marketdata.NewStore(bookCap, 10, logger)
	secondaryData := marketdata.NewStore(bookCap, 10, logger)
	fillStore(primaryData, ethBTC, "99", "100", bookCap)
	fillStore(secondaryData, ethBTC, "105", "106", bookCap)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	executor := &recordingExecutor{onExecute: cancel}
	history := &memoryHistory{}

	trader := NewTrader(
		TraderConfig{
			Symbols:       []domain.Symbol{ethBTC},
			TargetSize:    dec("100"),
			CycleInterval: 10 * time.Millisecond,
			Evaluator: EvaluatorConfig{
				MinSpread: 0.005,
				MinProfit: dec("0.0001"),
			},
		},
		primary, secondary,
		primaryData, secondaryData,
		executor, history, nil,
		logger,
	)

	err := trader.Run(ctx)
	if err != context.Canceled {
		t.Fatalf("Run = %v, want context.Canceled after execution", err)
	}

	executor.mu.Lock()
	defer executor.mu.Unlock()
	if len(executor.executed) == 0 {
		t.Fatal("executor never ran")
	}
	c := executor.executed[0]
	if c.Symbol != ethBTC {
		t.Errorf("symbol = %s", c.Symbol)
	}
	if c.Direction != domain.PrimaryToSecondary {
		t.Errorf("direction = %s, want primary_to_secondary", c.Direction)
	}
	if !closeTo(c.Spread, 0.05) {
		t.Errorf("spread = %v, want 0.05", c.Spread)
	}
	// min(1050/105, 5) truncated to step 0.1.
	if !c.TradableBase.Equal(dec("5")) {
		t.Errorf("tradable base = %s, want 5", c.TradableBase)
	}

	history.mu.Lock()
	defer history.mu.Unlock()
	if len(history.inserted) == 0 {
		t.Fatal("candidate was not recorded")
	}
	if len(history.executed) == 0 || history.executed[0] != c.ID {
		t.Errorf("executed ids = %v, want [%s]", history.executed, c.ID)
	}
}

func TestTraderWaitsWhenDataNotReady(t *testing.T) {
	logger := testLogger()
	venue := &fakeVenue{
		name:     "v",
		fee:      dec("0.001"),
		feeCount: 1,
		balances: map[string]decimal.Decimal{},
		txFees:   map[string]decimal.Decimal{},
		step:     dec("0.1"),
	}

	// Empty stores: every cycle hits not-ready and waits instead of failing.
	primaryData := marketdata.NewStore(2, 10, logger)
	secondaryData := marketdata.NewStore(2, 10, logger)

	executor := &recordingExecutor{}
	trader := NewTrader(
		TraderConfig{
			Symbols:        []domain.Symbol{ethBTC},
			TargetSize:     dec("100"),
			CycleInterval:  5 * time.Millisecond,
			DataRetryDelay: 5 * time.Millisecond,
			Evaluator:      EvaluatorConfig{MinSpread: 0.005, MinProfit: dec("0.0001")},
		},
		venue, venue, primaryData, secondaryData,
		executor, nil, nil, logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := trader.Run(ctx)
	if err != context.DeadlineExceeded {
		t.Fatalf("Run = %v, want deadline exceeded", err)
	}
	executor.mu.Lock()
	defer executor.mu.Unlock()
	if len(executor.executed) != 0 {
		t.Errorf("nothing should execute without data")
	}
}

func TestCompareOrderBooksPropagatesNotReady(t *testing.T) {
	logger := testLogger()
	ready := marketdata.NewStore(1, 10, logger)
	empty := marketdata.NewStore(1, 10, logger)
	fillStore(ready, ethBTC, "99", "100", 1)

	_, _, _, _, err := CompareOrderBooks(ready, empty, []domain.Symbol{ethBTC}, dec("100"))
	if err == nil {
		t.Fatal("expected not-ready error")
	}
}
