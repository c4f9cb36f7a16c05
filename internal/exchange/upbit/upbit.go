// Package upbit implements the exchange adapter for Upbit, a KRW-quoted
// venue: JWT-authenticated REST for account state and a websocket stream for
// order books and tickers. Reaching an altcoin from KRW routes through BTC,
// so the trading fee applies twice per leg.
package upbit

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/songsb13/arbot/internal/domain"
)

const venueName = "upbit"

// restLimit caps REST requests per second against the shared rate limiter.
const restLimit = 8

// ClientConfig holds Upbit endpoints, credentials, and the fee schedule.
// Upbit exposes no fee discovery endpoints, so the trading fee and the
// per-coin withdrawal fees are configured.
type ClientConfig struct {
	AccessKey string
	SecretKey string
	BaseURL   string // default https://api.upbit.com
	WSURL     string // default wss://api.upbit.com/websocket/v1

	TradingFee     decimal.Decimal
	WithdrawalFees map[string]decimal.Decimal
	// LotStep is the order-quantity increment applied to every market.
	LotStep decimal.Decimal
}

// Client is the Upbit adapter. It implements domain.Exchange.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter domain.RateLimiter
	logger  *slog.Logger
}

// New creates an Upbit adapter. limiter may be nil to disable REST throttling.
func New(cfg ClientConfig, limiter domain.RateLimiter, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.upbit.com"
	}
	if cfg.WSURL == "" {
		cfg.WSURL = "wss://api.upbit.com/websocket/v1"
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: limiter,
		logger:  logger.With(slog.String("component", "upbit")),
	}
}

// Name implements domain.Exchange.
func (c *Client) Name() string { return venueName }

// FeeCount implements domain.Exchange: KRW→BTC→ALT charges the fee twice.
func (c *Client) FeeCount() int { return 2 }

// nativeSymbol converts the normalized "QUOTE_BASE" form to Upbit's
// dash-separated spelling, e.g. BTC_ETH → BTC-ETH.
func nativeSymbol(sym domain.Symbol) string {
	return sym.Quote() + "-" + sym.Base()
}

// TradingFee implements domain.Exchange from the configured schedule.
func (c *Client) TradingFee(ctx context.Context) (decimal.Decimal, error) {
	if c.cfg.TradingFee.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("upbit: trading fee not configured")
	}
	return c.cfg.TradingFee, nil
}

// TransactionFees implements domain.Exchange from the configured schedule.
func (c *Client) TransactionFees(ctx context.Context) (map[string]decimal.Decimal, error) {
	fees := make(map[string]decimal.Decimal, len(c.cfg.WithdrawalFees))
	for coin, fee := range c.cfg.WithdrawalFees {
		fees[strings.ToUpper(coin)] = fee
	}
	return fees, nil
}

// accountEntry is one row of GET /v1/accounts.
type accountEntry struct {
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
	Locked   string `json:"locked"`
}

// Balances implements domain.Exchange, returning unlocked amounts.
func (c *Client) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	var entries []accountEntry
	if err := c.authedGet(ctx, "/v1/accounts", nil, &entries); err != nil {
		return nil, err
	}
	balances := make(map[string]decimal.Decimal, len(entries))
	for _, e := range entries {
		free, err := decimal.NewFromString(e.Balance)
		if err != nil || free.Sign() == 0 {
			continue
		}
		balances[strings.ToUpper(e.Currency)] = free
	}
	return balances, nil
}

// coinAddressResponse is the shape of GET /v1/deposits/coin_address.
type coinAddressResponse struct {
	Currency       string `json:"currency"`
	DepositAddress string `json:"deposit_address"`
}

// DepositAddress implements domain.Exchange. Upbit returns a null address
// until one has been generated for the account; that maps to ErrNotFound.
func (c *Client) DepositAddress(ctx context.Context, coin string) (string, error) {
	params := url.Values{"currency": {strings.ToUpper(coin)}}
	var resp coinAddressResponse
	if err := c.authedGet(ctx, "/v1/deposits/coin_address", params, &resp); err != nil {
		return "", err
	}
	if resp.DepositAddress == "" {
		return "", fmt.Errorf("upbit: deposit address %s: %w", coin, domain.ErrNotFound)
	}
	return resp.DepositAddress, nil
}

// LotStepSize implements domain.Exchange from the configured uniform step.
func (c *Client) LotStepSize(ctx context.Context, symbol domain.Symbol) (decimal.Decimal, error) {
	if c.cfg.LotStep.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("upbit: lot step not configured")
	}
	return c.cfg.LotStep, nil
}

// ---------------------------------------------------------------------------
// REST plumbing
// ---------------------------------------------------------------------------

// authedGet performs a JWT-authenticated GET. The token carries the access
// key, a UUID nonce, and, when there is a query string, its SHA512 hash.
func (c *Client) authedGet(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.throttle(ctx, path); err != nil {
		return err
	}

	query := ""
	if len(params) > 0 {
		query = params.Encode()
	}

	token, err := c.authToken(query)
	if err != nil {
		return &domain.VenueError{Venue: venueName, Op: path, Err: err}
	}

	endpoint := c.cfg.BaseURL + path
	if query != "" {
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &domain.VenueError{Venue: venueName, Op: path, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

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

// authToken builds the HS256 JWT Upbit expects: access_key + nonce claims,
// plus query_hash/query_hash_alg when the request has a query string.
func (c *Client) authToken(query string) (string, error) {
	claims := jwt.MapClaims{
		"access_key": c.cfg.AccessKey,
		"nonce":      uuid.Must(uuid.NewRandom()).String(),
	}
	if query != "" {
		sum := sha512.Sum512([]byte(query))
		claims["query_hash"] = hex.EncodeToString(sum[:])
		claims["query_hash_alg"] = "SHA512"
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.cfg.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign auth token: %w", err)
	}
	return signed, nil
}

func (c *Client) throttle(ctx context.Context, op string) error {
	if c.limiter == nil {
		return nil
	}
	ok, err := c.limiter.Allow(ctx, "rest:"+venueName, restLimit, 1)
	if err != nil {
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

// Compile-time interface check.
var _ domain.Exchange = (*Client)(nil)
