// Package binance implements the exchange adapter for Binance spot markets:
// signed REST for account state and a websocket stream that feeds normalized
// order-book and candle fragments into the market-data store.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/songsb13/arbot/internal/domain"
)

const venueName = "binance"

// restLimit caps REST requests per second against the shared rate limiter.
const restLimit = 10

// ClientConfig holds Binance endpoints and credentials.
type ClientConfig struct {
	APIKey    string
	SecretKey string
	BaseURL   string // default https://api.binance.com
	WSURL     string // default wss://stream.binance.com:9443
}

// Client is the Binance adapter. It implements domain.Exchange.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter domain.RateLimiter
	logger  *slog.Logger

	// exchangeInfo lot steps are immutable per session; fetched once.
	stepMu    sync.Mutex
	stepCache map[domain.Symbol]decimal.Decimal
}

// New creates a Binance adapter. limiter may be nil to disable REST
// throttling (tests).
func New(cfg ClientConfig, limiter domain.RateLimiter, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.binance.com"
	}
	if cfg.WSURL == "" {
		cfg.WSURL = "wss://stream.binance.com:9443"
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: limiter,
		logger:  logger.With(slog.String("component", "binance")),
	}
}

// Name implements domain.Exchange.
func (c *Client) Name() string { return venueName }

// FeeCount implements domain.Exchange. Binance quotes alts directly in BTC,
// so one fee event covers a leg.
func (c *Client) FeeCount() int { return 1 }

// nativeSymbol converts the normalized "QUOTE_BASE" form to Binance's
// concatenated "BASEQUOTE" spelling, e.g. BTC_ETH → ETHBTC.
func nativeSymbol(sym domain.Symbol) string {
	return sym.Base() + sym.Quote()
}

// TradingFee implements domain.Exchange using the account's taker commission.
func (c *Client) TradingFee(ctx context.Context) (decimal.Decimal, error) {
	var acct accountResponse
	if err := c.signedGet(ctx, "/api/v3/account", nil, &acct); err != nil {
		return decimal.Decimal{}, err
	}
	// takerCommission is expressed in basis points of 1e4.
	return decimal.NewFromInt(acct.TakerCommission).Div(decimal.NewFromInt(10000)), nil
}

// TransactionFees implements domain.Exchange via the capital config endpoint.
func (c *Client) TransactionFees(ctx context.Context) (map[string]decimal.Decimal, error) {
	var coins []capitalCoin
	if err := c.signedGet(ctx, "/sapi/v1/capital/config/getall", nil, &coins); err != nil {
		return nil, err
	}
	fees := make(map[string]decimal.Decimal, len(coins))
	for _, coin := range coins {
		for _, net := range coin.NetworkList {
			if !net.IsDefault {
				continue
			}
			fee, err := decimal.NewFromString(net.WithdrawFee)
			if err != nil {
				continue
			}
			fees[strings.ToUpper(coin.Coin)] = fee
		}
	}
	return fees, nil
}

// Balances implements domain.Exchange, returning free (unlocked) amounts.
func (c *Client) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	var acct accountResponse
	if err := c.signedGet(ctx, "/api/v3/account", nil, &acct); err != nil {
		return nil, err
	}
	balances := make(map[string]decimal.Decimal, len(acct.Balances))
	for _, b := range acct.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil || free.Sign() == 0 {
			continue
		}
		balances[strings.ToUpper(b.Asset)] = free
	}
	return balances, nil
}

// DepositAddress implements domain.Exchange.
func (c *Client) DepositAddress(ctx context.Context, coin string) (string, error) {
	params := url.Values{"coin": {strings.ToUpper(coin)}}
	var resp depositAddressResponse
	if err := c.signedGet(ctx, "/sapi/v1/capital/deposit/address", params, &resp); err != nil {
		return "", err
	}
	if resp.Address == "" {
		return "", fmt.Errorf("binance: deposit address %s: %w", coin, domain.ErrNotFound)
	}
	return resp.Address, nil
}

// LotStepSize implements domain.Exchange from the LOT_SIZE filter of
// exchangeInfo. The full filter table is fetched once and cached.
func (c *Client) LotStepSize(ctx context.Context, symbol domain.Symbol) (decimal.Decimal, error) {
	c.stepMu.Lock()
	defer c.stepMu.Unlock()

	if c.stepCache == nil {
		steps, err := c.fetchLotSteps(ctx)
		if err != nil {
			return decimal.Decimal{}, err
		}
		c.stepCache = steps
	}
	step, ok := c.stepCache[symbol]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("binance: lot step %s: %w", symbol, domain.ErrNotFound)
	}
	return step, nil
}

func (c *Client) fetchLotSteps(ctx context.Context) (map[domain.Symbol]decimal.Decimal, error) {
	var info exchangeInfoResponse
	if err := c.publicGet(ctx, "/api/v3/exchangeInfo", nil, &info); err != nil {
		return nil, err
	}
	steps := make(map[domain.Symbol]decimal.Decimal, len(info.Symbols))
	for _, s := range info.Symbols {
		sym := domain.NewSymbol(s.QuoteAsset, s.BaseAsset)
		for _, f := range s.Filters {
			if f.FilterType != "LOT_SIZE" {
				continue
			}
			step, err := decimal.NewFromString(f.StepSize)
			if err == nil {
				steps[sym] = step
			}
		}
	}
	return steps, nil
}

// ---------------------------------------------------------------------------
// REST plumbing
// ---------------------------------------------------------------------------

func (c *Client) publicGet(ctx context.Context, path string, params url.Values, out any) error {
	return c.doGet(ctx, path, params, false, out)
}

func (c *Client) signedGet(ctx context.Context, path string, params url.Values, out any) error {
	return c.doGet(ctx, path, params, true, out)
}

func (c *Client) doGet(ctx context.Context, path string, params url.Values, signed bool, out any) error {
	if err := c.throttle(ctx, path); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", "5000")
		params.Set("signature", c.sign(params.Encode()))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &domain.VenueError{Venue: venueName, Op: path, Err: err}
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.VenueError{Venue: venueName, Op: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &domain.VenueError{Venue: venueName, Op: path, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		ve := &domain.VenueError{
			Venue: venueName,
			Op:    path,
			Err:   fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256)),
		}
		// 429/418 carry a Retry-After header worth honoring.
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, perr := strconv.Atoi(ra); perr == nil {
				ve.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return ve
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &domain.VenueError{Venue: venueName, Op: path, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// sign computes the HMAC-SHA256 signature over the encoded query string.
func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.SecretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) throttle(ctx context.Context, op string) error {
	if c.limiter == nil {
		return nil
	}
	ok, err := c.limiter.Allow(ctx, "rest:"+venueName, restLimit, 1)
	if err != nil {
		// A broken limiter should not take the venue down with it.
		c.logger.Debug("rate limiter unavailable", slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return &domain.VenueError{
			Venue:      venueName,
			Op:         op,
			RetryAfter: time.Second,
			Err:        fmt.Errorf("local rate limit reached"),
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// ---------------------------------------------------------------------------
// REST response shapes
// ---------------------------------------------------------------------------

type accountResponse struct {
	MakerCommission int64 `json:"makerCommission"`
	TakerCommission int64 `json:"takerCommission"`
	Balances        []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

type capitalCoin struct {
	Coin        string `json:"coin"`
	NetworkList []struct {
		Network     string `json:"network"`
		IsDefault   bool   `json:"isDefault"`
		WithdrawFee string `json:"withdrawFee"`
	} `json:"networkList"`
}

type depositAddressResponse struct {
	Address string `json:"address"`
	Coin    string `json:"coin"`
	Tag     string `json:"tag"`
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
		Filters    []struct {
			FilterType string `json:"filterType"`
			StepSize   string `json:"stepSize"`
		} `json:"filters"`
	} `json:"symbols"`
}

// Compile-time interface check.
var _ domain.Exchange = (*Client)(nil)
