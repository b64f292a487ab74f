// Package kraken binds the Kraken REST API to domain.Venue.
package kraken

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zcesur/crypto-arb/internal/crypto"
	"github.com/zcesur/crypto-arb/internal/domain"
	"github.com/zcesur/crypto-arb/internal/platform/rest"
)

// DefaultBaseURL is the API root.
const DefaultBaseURL = "https://api.kraken.com"

// Config configures a Client.
type Config struct {
	Name       string
	QuoteAsset string
	// Auth.Secret is the base64 private key issued by the venue.
	Auth      crypto.HMACAuth
	Deposits  domain.DepositBook
	Transport rest.Config
	// Nonce is shared by every client using the same API key. Nil gives the
	// client its own.
	Nonce *crypto.Nonce
}

// Client is the Kraken venue binding. Kraken prefixes crypto asset codes
// with X and calls bitcoin XBT, so XRP/BTC is the pair XXRPXXBT.
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
		name = "Kraken"
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

// asset maps a currency symbol to the venue's asset code.
func asset(currency string) string {
	if currency == "BTC" {
		return "XXBT"
	}
	return "X" + currency
}

func (c *Client) pair(currency string) string {
	return asset(currency) + asset(c.quote)
}

// fromVenue maps a venue asset code back to a currency symbol.
func fromVenue(code string) string {
	if len(code) == 4 && (code[0] == 'X' || code[0] == 'Z') {
		code = code[1:]
	}
	if code == "XBT" {
		return "BTC"
	}
	return code
}

func (c *Client) Markets(ctx context.Context) ([]domain.Market, error) {
	var pairs map[string]assetPair
	if err := c.public(ctx, "markets", "AssetPairs", nil, &pairs); err != nil {
		return nil, err
	}
	out := make([]domain.Market, 0, len(pairs))
	for symbol, p := range pairs {
		base, quote := fromVenue(p.Base), fromVenue(p.Quote)
		if b, q, ok := strings.Cut(p.WSName, "/"); ok {
			base, quote = fromVenue(b), fromVenue(q)
		}
		out = append(out, domain.Market{
			Symbol: symbol,
			Base:   base,
			Quote:  quote,
			Active: p.Status == "" || p.Status == "online",
		})
	}
	return out, nil
}

// Tickers fetches every requested pair in one call. Result keys are mapped
// back through the requested pair names, falling back to the three letters
// after the X prefix.
func (c *Client) Tickers(ctx context.Context, currencies []string) (domain.Tickers, error) {
	byPair := make(map[string]string, len(currencies))
	pairs := make([]string, 0, len(currencies))
	for _, cur := range currencies {
		p := c.pair(cur)
		byPair[p] = cur
		pairs = append(pairs, p)
	}
	q := url.Values{}
	q.Set("pair", strings.Join(pairs, ","))

	var raw map[string]tickerInfo
	if err := c.public(ctx, "tickers", "Ticker", q, &raw); err != nil {
		return nil, err
	}

	out := make(domain.Tickers, len(raw))
	for key, t := range raw {
		cur, ok := byPair[key]
		if !ok {
			if len(key) < 4 {
				continue
			}
			cur = key[1:4]
		}
		var quote domain.Quote
		var err error
		if quote.Ask, err = first(t.Ask); err != nil {
			return nil, fmt.Errorf("kraken: tickers: %s ask: %w", key, err)
		}
		if quote.Bid, err = first(t.Bid); err != nil {
			return nil, fmt.Errorf("kraken: tickers: %s bid: %w", key, err)
		}
		if quote.Last, err = first(t.Last); err != nil {
			return nil, fmt.Errorf("kraken: tickers: %s last: %w", key, err)
		}
		out[cur] = quote
	}
	return out, nil
}

// Balances reports zero for a requested currency the account has never
// held, since the venue omits those assets.
func (c *Client) Balances(ctx context.Context, currencies []string) (domain.Balances, error) {
	var raw map[string]string
	if err := c.private(ctx, "balances", "Balance", url.Values{}, &raw); err != nil {
		return nil, err
	}
	out := make(domain.Balances, len(currencies))
	for _, cur := range currencies {
		v, ok := raw[asset(cur)]
		if !ok {
			out[cur] = 0
			continue
		}
		f, err := parseAmount(v)
		if err != nil {
			return nil, fmt.Errorf("kraken: balances: %s: %w", cur, err)
		}
		out[cur] = f
	}
	return out, nil
}

func (c *Client) Buy(ctx context.Context, currency string, size, rate float64) (string, error) {
	return c.addOrder(ctx, "buy", domain.OrderSideBuy, currency, size, rate)
}

func (c *Client) Sell(ctx context.Context, currency string, size, rate float64) (string, error) {
	return c.addOrder(ctx, "sell", domain.OrderSideSell, currency, size, rate)
}

// addOrder places a limit order. Prices on BTC pairs take at most eight
// decimals and the volume is sent as a whole number. Multiple transaction
// ids are joined with ",", which QueryOrders and CancelOrder accept back.
func (c *Client) addOrder(ctx context.Context, op string, side domain.OrderSide, currency string, size, rate float64) (string, error) {
	form := url.Values{}
	form.Set("pair", c.pair(currency))
	form.Set("type", string(side))
	form.Set("ordertype", "limit")
	form.Set("price", decimal.NewFromFloat(rate).StringFixed(8))
	form.Set("volume", decimal.NewFromFloat(size).StringFixed(0))

	var res addOrderResult
	if err := c.private(ctx, op, "AddOrder", form, &res); err != nil {
		return "", err
	}
	if len(res.TxID) == 0 {
		return "", fmt.Errorf("kraken: %s: %w", op, domain.ErrEmptyResponse)
	}
	return strings.Join(res.TxID, ","), nil
}

func (c *Client) Cancel(ctx context.Context, orderID string) (bool, error) {
	form := url.Values{}
	form.Set("txid", orderID)
	var res cancelResult
	if err := c.private(ctx, "cancel", "CancelOrder", form, &res); err != nil {
		return false, err
	}
	return true, nil
}

// Withdraw uses the withdrawal key pre-registered on the venue for the
// destination's address.
func (c *Client) Withdraw(ctx context.Context, currency string, size float64, destination string) (string, error) {
	addr, err := c.deposits.Lookup(destination, currency)
	if err != nil {
		return "", fmt.Errorf("kraken: withdraw: %w", err)
	}
	if addr.WithdrawalKey == "" {
		return "", fmt.Errorf("kraken: withdraw: %w: no withdrawal key for %s on %s",
			domain.ErrNoDepositEntry, currency, destination)
	}
	form := url.Values{}
	form.Set("asset", asset(currency))
	form.Set("key", addr.WithdrawalKey)
	form.Set("amount", decimal.NewFromFloat(size).String())

	var res withdrawResult
	if err := c.private(ctx, "withdraw", "Withdraw", form, &res); err != nil {
		return "", err
	}
	return res.RefID, nil
}

// GetOrder sums volume, executed volume and cost over every transaction in
// orderID.
func (c *Client) GetOrder(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	form := url.Values{}
	form.Set("txid", orderID)
	var raw map[string]orderInfo
	if err := c.private(ctx, "get_order", "QueryOrders", form, &raw); err != nil {
		return domain.OrderStatus{}, err
	}

	var vol, exec, cost decimal.Decimal
	for txid, o := range raw {
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{{&vol, o.Vol}, {&exec, o.VolExec}, {&cost, o.Cost}} {
			d, err := decimal.NewFromString(f.src)
			if err != nil {
				return domain.OrderStatus{}, fmt.Errorf("kraken: get_order: %s: %w: %v", txid, domain.ErrMalformedPayload, err)
			}
			*f.dst = f.dst.Add(d)
		}
	}
	return domain.NewOrderStatus(vol.InexactFloat64(), exec.InexactFloat64(), cost.InexactFloat64()), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) public(ctx context.Context, op, method string, q url.Values, out any) error {
	body, err := c.http.Get(ctx, c.http.URL("/0/public/"+method, q), nil)
	if err != nil {
		return fmt.Errorf("kraken: %s: %w", op, err)
	}
	return c.unwrap(op, body, out)
}

// private posts a nonce-stamped form signed over the URI path and the
// SHA-256 of nonce plus body.
func (c *Client) private(ctx context.Context, op, method string, form url.Values, out any) error {
	path := "/0/private/" + method
	nonce := c.nonce.Next()
	form.Set("nonce", nonce)
	postData := form.Encode()

	sig, err := c.auth.PathSignature(path, nonce, postData)
	if err != nil {
		return fmt.Errorf("kraken: %s: sign: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.http.URL(path, nil), strings.NewReader(postData))
	if err != nil {
		return fmt.Errorf("kraken: %s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("API-Key", c.auth.Key)
	req.Header.Set("API-Sign", sig)

	body, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("kraken: %s: %w", op, err)
	}
	return c.unwrap(op, body, out)
}

func (c *Client) unwrap(op string, body []byte, out any) error {
	var env envelope
	if err := rest.Decode(body, &env); err != nil {
		return fmt.Errorf("kraken: %s: %w", op, err)
	}
	if len(env.Error) > 0 {
		return domain.NewVenueError(c.name, op, env.Error)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return fmt.Errorf("kraken: %s: %w", op, domain.ErrEmptyResponse)
	}
	if err := rest.Decode(env.Result, out); err != nil {
		return fmt.Errorf("kraken: %s: result: %w", op, err)
	}
	return nil
}

func first(values []string) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: missing price", domain.ErrMalformedPayload)
	}
	return parseAmount(values[0])
}

func parseAmount(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return d.InexactFloat64(), nil
}

// Compile-time interface check.
var _ domain.Venue = (*Client)(nil)
