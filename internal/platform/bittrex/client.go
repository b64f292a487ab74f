// Package bittrex binds the Bittrex v1.1 REST API to domain.Venue.
package bittrex

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/zcesur/crypto-arb/internal/crypto"
	"github.com/zcesur/crypto-arb/internal/domain"
	"github.com/zcesur/crypto-arb/internal/platform/rest"
)

// DefaultBaseURL is the v1.1 API root.
const DefaultBaseURL = "https://bittrex.com/api/v1.1"

// Config configures a Client.
type Config struct {
	Name       string
	QuoteAsset string
	Auth       crypto.HMACAuth
	Deposits   domain.DepositBook
	Transport  rest.Config
	// Nonce is shared by every client using the same API key. Nil gives the
	// client its own.
	Nonce *crypto.Nonce
}

// Client is the Bittrex venue binding. Pairs are named "<quote>-<currency>",
// e.g. "BTC-XRP".
type Client struct {
	name     string
	quote    string
	auth     crypto.HMACAuth
	deposits domain.DepositBook
	http     *rest.Client
	nonce    *crypto.Nonce
}

// New creates a Client.
func New(cfg Config) *Client {
	name := cfg.Name
	if name == "" {
		name = "Bittrex"
	}
	quote := cfg.QuoteAsset
	if quote == "" {
		quote = "BTC"
	}
	t := cfg.Transport
	t.Venue = name
	if t.BaseURL == "" {
		t.BaseURL = DefaultBaseURL
	}
	nonce := cfg.Nonce
	if nonce == nil {
		nonce = &crypto.Nonce{}
	}
	return &Client{
		name:     name,
		quote:    quote,
		auth:     cfg.Auth,
		deposits: cfg.Deposits,
		http:     rest.New(t),
		nonce:    nonce,
	}
}

func (c *Client) Name() string { return c.name }

func (c *Client) pair(currency string) string {
	return c.quote + "-" + currency
}

// Markets lists every market on the venue.
func (c *Client) Markets(ctx context.Context) ([]domain.Market, error) {
	var raw []market
	if err := c.public(ctx, "markets", "/public/getmarkets", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Market, 0, len(raw))
	for _, m := range raw {
		out = append(out, domain.Market{
			Symbol: m.MarketName,
			Base:   m.MarketCurrency,
			Quote:  m.BaseCurrency,
			Active: m.IsActive,
		})
	}
	return out, nil
}

// Tickers queries one ticker per currency.
func (c *Client) Tickers(ctx context.Context, currencies []string) (domain.Tickers, error) {
	out := make(domain.Tickers, len(currencies))
	for _, cur := range currencies {
		q := url.Values{}
		q.Set("market", c.pair(cur))
		var t ticker
		if err := c.public(ctx, "tickers", "/public/getticker", q, &t); err != nil {
			return nil, err
		}
		out[cur] = domain.Quote{Ask: t.Ask, Bid: t.Bid, Last: t.Last}
	}
	return out, nil
}

// Balances returns the available balance of each requested currency the
// account holds. A response holding none of them is queried once more
// before it is reported as empty.
func (c *Client) Balances(ctx context.Context, currencies []string) (domain.Balances, error) {
	for attempt := 0; attempt < 2; attempt++ {
		var raw []balance
		if err := c.private(ctx, "balances", "/account/getbalances", nil, &raw, false); err != nil {
			return nil, err
		}
		out := filterBalances(raw, currencies)
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, fmt.Errorf("bittrex: balances: %w", domain.ErrEmptyResponse)
}

func filterBalances(raw []balance, currencies []string) domain.Balances {
	want := make(map[string]bool, len(currencies))
	for _, cur := range currencies {
		want[cur] = true
	}
	out := domain.Balances{}
	for _, b := range raw {
		if want[b.Currency] {
			out[b.Currency] = b.Available
		}
	}
	return out
}

func (c *Client) Buy(ctx context.Context, currency string, size, rate float64) (string, error) {
	return c.limit(ctx, "buy", "/market/buylimit", currency, size, rate)
}

func (c *Client) Sell(ctx context.Context, currency string, size, rate float64) (string, error) {
	return c.limit(ctx, "sell", "/market/selllimit", currency, size, rate)
}

func (c *Client) limit(ctx context.Context, op, path, currency string, size, rate float64) (string, error) {
	q := url.Values{}
	q.Set("market", c.pair(currency))
	q.Set("quantity", decimal.NewFromFloat(size).String())
	q.Set("rate", decimal.NewFromFloat(rate).StringFixed(8))
	var res uuidResult
	if err := c.private(ctx, op, path, q, &res, false); err != nil {
		return "", err
	}
	return res.UUID, nil
}

// Cancel cancels an open order. A successful cancel carries no result.
func (c *Client) Cancel(ctx context.Context, orderID string) (bool, error) {
	q := url.Values{}
	q.Set("uuid", orderID)
	if err := c.private(ctx, "cancel", "/market/cancel", q, nil, true); err != nil {
		return false, err
	}
	return true, nil
}

// Withdraw sends funds to the destination venue's configured address,
// passing the memo as payment id when there is one.
func (c *Client) Withdraw(ctx context.Context, currency string, size float64, destination string) (string, error) {
	addr, err := c.deposits.Lookup(destination, currency)
	if err != nil {
		return "", fmt.Errorf("bittrex: withdraw: %w", err)
	}
	q := url.Values{}
	q.Set("currency", currency)
	q.Set("quantity", decimal.NewFromFloat(size).String())
	q.Set("address", addr.Address)
	if addr.Memo != "" {
		q.Set("paymentid", addr.Memo)
	}
	var res uuidResult
	if err := c.private(ctx, "withdraw", "/account/withdraw", q, &res, false); err != nil {
		return "", err
	}
	return res.UUID, nil
}

// GetOrder reports fill progress. The venue's own price per unit is used;
// it is dropped while nothing has filled.
func (c *Client) GetOrder(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	q := url.Values{}
	q.Set("uuid", orderID)
	var o order
	if err := c.private(ctx, "get_order", "/account/getorder", q, &o, false); err != nil {
		return domain.OrderStatus{}, err
	}
	fill := o.Quantity - o.QuantityRemaining
	st := domain.OrderStatus{
		OpenSize: o.QuantityRemaining,
		FillSize: fill,
	}
	if fill > 0 && o.PricePerUnit != nil {
		ppu := *o.PricePerUnit
		st.PricePerUnit = &ppu
	}
	return st, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) public(ctx context.Context, op, path string, q url.Values, out any) error {
	body, err := c.http.Get(ctx, c.http.URL(path, q), nil)
	if err != nil {
		return fmt.Errorf("bittrex: %s: %w", op, err)
	}
	return c.unwrap(op, body, out, false)
}

// private signs the full request URI, apikey and nonce included, and sends
// it in the apisign header.
func (c *Client) private(ctx context.Context, op, path string, q url.Values, out any, allowEmpty bool) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("apikey", c.auth.Key)
	q.Set("nonce", c.nonce.Next())
	uri := c.http.URL(path, q)

	header := http.Header{}
	header.Set("apisign", c.auth.URISignature(uri))

	body, err := c.http.Get(ctx, uri, header)
	if err != nil {
		return fmt.Errorf("bittrex: %s: %w", op, err)
	}
	return c.unwrap(op, body, out, allowEmpty)
}

func (c *Client) unwrap(op string, body []byte, out any, allowEmpty bool) error {
	var env envelope
	if err := rest.Decode(body, &env); err != nil {
		return fmt.Errorf("bittrex: %s: %w", op, err)
	}
	switch {
	case env.Message == noAPIResponse:
		return fmt.Errorf("bittrex: %s: %w", op, domain.ErrNoResponse)
	case !env.Success:
		return domain.NewVenueError(c.name, op, env.Message)
	case isEmpty(env.Result):
		if allowEmpty {
			return nil
		}
		return fmt.Errorf("bittrex: %s: %w", op, domain.ErrEmptyResponse)
	}
	if out == nil {
		return nil
	}
	if err := rest.Decode(env.Result, out); err != nil {
		return fmt.Errorf("bittrex: %s: result: %w", op, err)
	}
	return nil
}

func isEmpty(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "[]", "{}", `""`:
		return true
	}
	return false
}

// Compile-time interface check.
var _ domain.Venue = (*Client)(nil)
