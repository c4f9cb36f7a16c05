package upbit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/songsb13/arbot/internal/domain"
)

const (
	readWait          = 90 * time.Second
	pingPeriod        = 30 * time.Second
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// Stream implements domain.Exchange. It subscribes to the orderbook and
// ticker channels for every symbol and pushes normalized fragments into the
// writer until ctx is cancelled, reconnecting with backoff on disconnect.
// Ticker messages carry the venue's rolling OHLCV, which is what fills the
// candle buffers here.
func (c *Client) Stream(ctx context.Context, symbols []domain.Symbol, w domain.MarketWriter) error {
	if len(symbols) == 0 {
		return fmt.Errorf("upbit: stream: no symbols")
	}

	delay := reconnectDelay
	for {
		err := c.runStream(ctx, symbols, w)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (c *Client) runStream(ctx context.Context, symbols []domain.Symbol, w domain.MarketWriter) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("upbit: dial: %w", err)
	}
	defer conn.Close()

	codes := make([]string, 0, len(symbols))
	byCode := make(map[string]domain.Symbol, len(symbols))
	for _, sym := range symbols {
		code := nativeSymbol(sym)
		codes = append(codes, code)
		byCode[code] = sym
	}

	// Upbit takes the subscription as a JSON array frame:
	// [{"ticket":...},{"type":"orderbook","codes":[...]},{"type":"ticker","codes":[...]}]
	sub := []any{
		map[string]string{"ticket": uuid.Must(uuid.NewRandom()).String()},
		map[string]any{"type": "orderbook", "codes": codes},
		map[string]any{"type": "ticker", "codes": codes},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("upbit: subscribe: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(readWait))

	done := make(chan struct{})
	defer close(done)
	go func() {
		// Upbit drops idle connections; keep-alive pings hold it open.
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			}
		}
	}()

	c.logger.Info("stream connected", slog.Int("symbols", len(symbols)))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("upbit: read: %w (%w)", err, domain.ErrWSDisconnect)
		}
		conn.SetReadDeadline(time.Now().Add(readWait))
		c.handleStreamMessage(msg, byCode, w)
	}
}

// wsEnvelope sniffs the message type and market code before full decoding.
type wsEnvelope struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

type orderbookMessage struct {
	Code  string `json:"code"`
	Units []struct {
		AskPrice decimal.Decimal `json:"ask_price"`
		BidPrice decimal.Decimal `json:"bid_price"`
		AskSize  decimal.Decimal `json:"ask_size"`
		BidSize  decimal.Decimal `json:"bid_size"`
	} `json:"orderbook_units"`
}

type tickerMessage struct {
	Code           string          `json:"code"`
	OpeningPrice   decimal.Decimal `json:"opening_price"`
	HighPrice      decimal.Decimal `json:"high_price"`
	LowPrice       decimal.Decimal `json:"low_price"`
	TradePrice     decimal.Decimal `json:"trade_price"`
	AccTradeVolume decimal.Decimal `json:"acc_trade_volume"`
	Timestamp      int64           `json:"timestamp"`
}

func (c *Client) handleStreamMessage(msg []byte, byCode map[string]domain.Symbol, w domain.MarketWriter) {
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		c.logger.Debug("unparseable stream message", slog.String("error", err.Error()))
		return
	}
	sym, ok := byCode[env.Code]
	if !ok {
		return
	}

	switch env.Type {
	case "orderbook":
		var ob orderbookMessage
		if err := json.Unmarshal(msg, &ob); err != nil {
			return
		}
		frag := domain.BookFragment{
			Bids: make([]domain.BookLevel, 0, len(ob.Units)),
			Asks: make([]domain.BookLevel, 0, len(ob.Units)),
		}
		// Units arrive best-price-first on both sides.
		for _, u := range ob.Units {
			if u.BidSize.Sign() > 0 {
				frag.Bids = append(frag.Bids, domain.BookLevel{Price: u.BidPrice, Amount: u.BidSize})
			}
			if u.AskSize.Sign() > 0 {
				frag.Asks = append(frag.Asks, domain.BookLevel{Price: u.AskPrice, Amount: u.AskSize})
			}
		}
		w.AppendBook(sym, frag)

	case "ticker":
		var tk tickerMessage
		if err := json.Unmarshal(msg, &tk); err != nil {
			return
		}
		w.AppendCandle(sym, domain.Candle{
			Open:      tk.OpeningPrice,
			High:      tk.HighPrice,
			Low:       tk.LowPrice,
			Close:     tk.TradePrice,
			Volume:    tk.AccTradeVolume,
			Timestamp: tk.Timestamp,
		})
	}
}
