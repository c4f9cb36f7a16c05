// Package marketdata holds the process-wide bounded buffers of order-book and
// candle fragments fed by venue streams, and the VWAP calculator that consumes
// them.
package marketdata

import (
	"log/slog"
	"sync"

	"github.com/songsb13/arbot/internal/domain"
)

const (
	// DefaultBookCap is how many order-book fragments accumulate before the
	// buffer is sealed for readers.
	DefaultBookCap = 20
	// DefaultCandleCap is the sealing threshold for candle bars.
	DefaultCandleCap = 100
)

// Store buffers per-symbol market data pushed by one venue's receive loop and
// hands sealed batches to readers. Each venue gets its own Store.
//
// A buffer accumulates fragments until it reaches its cap; the full buffer is
// then published as a unit and a fresh one installed, all inside a single
// critical section, so readers never observe a partially written batch. The
// order-book and candle families are guarded by independent locks: both kinds
// arrive on the same socket, but consuming one must not serialize against the
// other. One lock per kind (not per symbol) is enough at socket cadence;
// sharding by symbol is a possible future optimization.
type Store struct {
	bookCap   int
	candleCap int

	bookMu     sync.Mutex
	bookBuf    map[domain.Symbol][]domain.BookFragment
	bookSealed map[domain.Symbol][]domain.BookFragment

	candleMu     sync.Mutex
	candleBuf    map[domain.Symbol][]domain.Candle
	candleSealed map[domain.Symbol][]domain.Candle

	logger *slog.Logger
}

// NewStore creates an empty Store with the given sealing caps. Zero or
// negative caps fall back to the defaults.
func NewStore(bookCap, candleCap int, logger *slog.Logger) *Store {
	if bookCap <= 0 {
		bookCap = DefaultBookCap
	}
	if candleCap <= 0 {
		candleCap = DefaultCandleCap
	}
	return &Store{
		bookCap:      bookCap,
		candleCap:    candleCap,
		bookBuf:      make(map[domain.Symbol][]domain.BookFragment),
		bookSealed:   make(map[domain.Symbol][]domain.BookFragment),
		candleBuf:    make(map[domain.Symbol][]domain.Candle),
		candleSealed: make(map[domain.Symbol][]domain.Candle),
		logger:       logger.With(slog.String("component", "marketdata_store")),
	}
}

// AppendBook adds one order-book fragment to the symbol's accumulating
// buffer. Fragments with an empty bid or ask side are dropped. When the
// buffer reaches the cap it is sealed for readers and a fresh one installed.
func (s *Store) AppendBook(symbol domain.Symbol, frag domain.BookFragment) {
	if len(frag.Bids) == 0 || len(frag.Asks) == 0 {
		return
	}

	s.bookMu.Lock()
	defer s.bookMu.Unlock()

	buf := append(s.bookBuf[symbol], frag)
	if len(buf) >= s.bookCap {
		s.bookSealed[symbol] = buf
		s.bookBuf[symbol] = nil
		return
	}
	s.bookBuf[symbol] = buf
}

// AppendCandle adds one OHLCV bar, most-recent-last, sealing at the candle cap.
func (s *Store) AppendCandle(symbol domain.Symbol, bar domain.Candle) {
	s.candleMu.Lock()
	defer s.candleMu.Unlock()

	buf := append(s.candleBuf[symbol], bar)
	if len(buf) >= s.candleCap {
		s.candleSealed[symbol] = buf
		s.candleBuf[symbol] = nil
		return
	}
	s.candleBuf[symbol] = buf
}

// TakeBook removes and returns the sealed order-book batch for a symbol.
// It returns domain.ErrDataNotReady when no batch has been sealed since the
// last take; callers retry after a short delay.
func (s *Store) TakeBook(symbol domain.Symbol) ([]domain.BookFragment, error) {
	s.bookMu.Lock()
	defer s.bookMu.Unlock()

	batch, ok := s.bookSealed[symbol]
	if !ok || len(batch) == 0 {
		return nil, domain.ErrDataNotReady
	}
	delete(s.bookSealed, symbol)
	return batch, nil
}

// TakeCandles removes and returns the sealed candle batch for a symbol, or
// domain.ErrDataNotReady when none has been sealed since the last take.
func (s *Store) TakeCandles(symbol domain.Symbol) ([]domain.Candle, error) {
	s.candleMu.Lock()
	defer s.candleMu.Unlock()

	batch, ok := s.candleSealed[symbol]
	if !ok || len(batch) == 0 {
		return nil, domain.ErrDataNotReady
	}
	delete(s.candleSealed, symbol)
	return batch, nil
}

// Compile-time interface check.
var _ domain.MarketWriter = (*Store)(nil)
