package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/songsb13/arbot/internal/domain"
)

const (
	// pongWait is the time allowed between server pings before the
	// connection is considered dead.
	pongWait = 90 * time.Second

	// reconnectDelay is the base backoff between reconnect attempts.
	reconnectDelay = 2 * time.Second
	// maxReconnectDelay caps the grown backoff.
	maxReconnectDelay = 60 * time.Second
)

// Stream implements domain.Exchange. It subscribes to the partial depth and
// one-minute kline streams for every symbol and pushes normalized fragments
// into the writer until ctx is cancelled. Disconnects are retried with
// exponential backoff; the stream never dies silently.
func (c *Client) Stream(ctx context.Context, symbols []domain.Symbol, w domain.MarketWriter) error {
	if len(symbols) == 0 {
		return fmt.Errorf("binance: stream: no symbols")
	}

	endpoint := c.streamURL(symbols)
	delay := reconnectDelay
	for {
		err := c.runStream(ctx, endpoint, symbols, w)
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

// streamURL builds the combined-stream endpoint:
// /stream?streams=ethbtc@depth20@100ms/ethbtc@kline_1m/...
func (c *Client) streamURL(symbols []domain.Symbol) string {
	names := make([]string, 0, len(symbols)*2)
	for _, sym := range symbols {
		native := strings.ToLower(nativeSymbol(sym))
		names = append(names, native+"@depth20@100ms", native+"@kline_1m")
	}
	return c.cfg.WSURL + "/stream?streams=" + strings.Join(names, "/")
}

func (c *Client) runStream(ctx context.Context, endpoint string, symbols []domain.Symbol, w domain.MarketWriter) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("binance: dial: %w", err)
	}
	defer conn.Close()

	// Binance pings; answering with pongs is handled by gorilla, we only
	// need to keep pushing the read deadline forward.
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
	})

	// Close the socket when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	bySuffix := nativeIndex(symbols)
	c.logger.Info("stream connected", slog.Int("symbols", len(symbols)))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("binance: read: %w (%w)", err, domain.ErrWSDisconnect)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handleStreamMessage(msg, bySuffix, w)
	}
}

// nativeIndex maps lower-cased native spellings back to normalized symbols.
func nativeIndex(symbols []domain.Symbol) map[string]domain.Symbol {
	idx := make(map[string]domain.Symbol, len(symbols))
	for _, sym := range symbols {
		idx[strings.ToLower(nativeSymbol(sym))] = sym
	}
	return idx
}

// combinedMessage is the envelope of the combined-stream endpoint.
type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type depthData struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

type klineData struct {
	Kline struct {
		StartTime int64  `json:"t"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

func (c *Client) handleStreamMessage(msg []byte, bySuffix map[string]domain.Symbol, w domain.MarketWriter) {
	var env combinedMessage
	if err := json.Unmarshal(msg, &env); err != nil {
		c.logger.Debug("unparseable stream message", slog.String("error", err.Error()))
		return
	}

	name, kind, ok := splitStreamName(env.Stream)
	if !ok {
		return
	}
	sym, ok := bySuffix[name]
	if !ok {
		return
	}

	switch kind {
	case "depth20":
		var d depthData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return
		}
		frag := domain.BookFragment{
			Bids: parseLevels(d.Bids),
			Asks: parseLevels(d.Asks),
		}
		w.AppendBook(sym, frag)

	case "kline_1m":
		var k klineData
		if err := json.Unmarshal(env.Data, &k); err != nil {
			return
		}
		// Only closed bars become candles; forming bars churn.
		if !k.Kline.Closed {
			return
		}
		bar, err := parseCandle(k)
		if err != nil {
			return
		}
		w.AppendCandle(sym, bar)
	}
}

// splitStreamName splits "ethbtc@depth20@100ms" into ("ethbtc", "depth20").
func splitStreamName(stream string) (name, kind string, ok bool) {
	parts := strings.Split(stream, "@")
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func parseLevels(raw [][2]string) []domain.BookLevel {
	levels := make([]domain.BookLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			continue
		}
		amount, err := decimal.NewFromString(pair[1])
		if err != nil || amount.Sign() <= 0 {
			continue
		}
		levels = append(levels, domain.BookLevel{Price: price, Amount: amount})
	}
	return levels
}

func parseCandle(k klineData) (domain.Candle, error) {
	open, err := decimal.NewFromString(k.Kline.Open)
	if err != nil {
		return domain.Candle{}, err
	}
	high, err := decimal.NewFromString(k.Kline.High)
	if err != nil {
		return domain.Candle{}, err
	}
	low, err := decimal.NewFromString(k.Kline.Low)
	if err != nil {
		return domain.Candle{}, err
	}
	closePrice, err := decimal.NewFromString(k.Kline.Close)
	if err != nil {
		return domain.Candle{}, err
	}
	volume, err := decimal.NewFromString(k.Kline.Volume)
	if err != nil {
		return domain.Candle{}, err
	}
	return domain.Candle{
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		Timestamp: k.Kline.StartTime,
	}, nil
}
