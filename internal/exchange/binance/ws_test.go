package binance

import (
	"io"
	"log/slog"
	"testing"

	"github.com/songsb13/arbot/internal/domain"
)

type fakeWriter struct {
	books   map[domain.Symbol][]domain.BookFragment
	candles map[domain.Symbol][]domain.Candle
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		books:   make(map[domain.Symbol][]domain.BookFragment),
		candles: make(map[domain.Symbol][]domain.Candle),
	}
}

func (f *fakeWriter) AppendBook(sym domain.Symbol, frag domain.BookFragment) {
	f.books[sym] = append(f.books[sym], frag)
}

func (f *fakeWriter) AppendCandle(sym domain.Symbol, bar domain.Candle) {
	f.candles[sym] = append(f.candles[sym], bar)
}

func testClient() *Client {
	return New(ClientConfig{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNativeSymbol(t *testing.T) {
	if got := nativeSymbol(domain.NewSymbol("BTC", "ETH")); got != "ETHBTC" {
		t.Fatalf("nativeSymbol = %q, want ETHBTC", got)
	}
}

func TestHandleDepthMessage(t *testing.T) {
	c := testClient()
	w := newFakeWriter()
	sym := domain.NewSymbol("BTC", "ETH")
	idx := nativeIndex([]domain.Symbol{sym})

	msg := []byte(`{
		"stream": "ethbtc@depth20@100ms",
		"data": {
			"bids": [["0.05", "1.2"], ["0.049", "3"]],
			"asks": [["0.051", "0.7"], ["0.052", "2"]]
		}
	}`)
	c.handleStreamMessage(msg, idx, w)

	frags := w.books[sym]
	if len(frags) != 1 {
		t.Fatalf("fragments = %d, want 1", len(frags))
	}
	if len(frags[0].Bids) != 2 || len(frags[0].Asks) != 2 {
		t.Fatalf("levels = %d/%d, want 2/2", len(frags[0].Bids), len(frags[0].Asks))
	}
	if frags[0].Bids[0].Price.String() != "0.05" {
		t.Errorf("best bid = %s, want 0.05", frags[0].Bids[0].Price)
	}
}

func TestHandleKlineMessageOnlyClosedBars(t *testing.T) {
	c := testClient()
	w := newFakeWriter()
	sym := domain.NewSymbol("BTC", "ETH")
	idx := nativeIndex([]domain.Symbol{sym})

	forming := []byte(`{"stream":"ethbtc@kline_1m","data":{"k":{"t":1700000000000,"o":"0.05","h":"0.051","l":"0.049","c":"0.0505","v":"12","x":false}}}`)
	closed := []byte(`{"stream":"ethbtc@kline_1m","data":{"k":{"t":1700000060000,"o":"0.0505","h":"0.052","l":"0.05","c":"0.0515","v":"9","x":true}}}`)

	c.handleStreamMessage(forming, idx, w)
	c.handleStreamMessage(closed, idx, w)

	bars := w.candles[sym]
	if len(bars) != 1 {
		t.Fatalf("candles = %d, want 1 (forming bars must be skipped)", len(bars))
	}
	if bars[0].Timestamp != 1700000060000 {
		t.Errorf("timestamp = %d, want the closed bar's", bars[0].Timestamp)
	}
}

func TestHandleMessageIgnoresUnknownStreams(t *testing.T) {
	c := testClient()
	w := newFakeWriter()
	idx := nativeIndex([]domain.Symbol{domain.NewSymbol("BTC", "ETH")})

	c.handleStreamMessage([]byte(`{"stream":"xrpbtc@depth20@100ms","data":{"bids":[["1","1"]],"asks":[["2","1"]]}}`), idx, w)
	c.handleStreamMessage([]byte(`not json`), idx, w)

	if len(w.books) != 0 || len(w.candles) != 0 {
		t.Fatalf("unknown streams must not write anything")
	}
}
