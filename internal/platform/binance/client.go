// Package binance binds the Binance spot API to domain.Venue through the
// go-binance SDK.
package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"github.com/zcesur/crypto-arb/internal/crypto"
	"github.com/zcesur/crypto-arb/internal/domain"
	"github.com/zcesur/crypto-arb/internal/platform/rest"
)

// Config configures a Client.
type Config struct {
	Name       string
	QuoteAsset string
	Auth       crypto.HMACAuth
	Deposits   domain.DepositBook
	// Transport supplies rate limiting and the timeout. BaseURL, when set,
	// overrides the SDK's endpoint.
	Transport rest.Config
}

// Client is the Binance venue binding. Symbols are "<currency><quote>",
// e.g. XRPBTC. Order ids are returned as "<symbol>:<orderId>" because the
// venue needs both to address an order.
type Client struct {
	name     string
	quote    string
	deposits domain.DepositBook
	api      *binance.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	name := cfg.Name
	if name == "" {
		name = "Binance"
	}
	quote := cfg.QuoteAsset
	if quote == "" {
		quote = "BTC"
	}
	t := cfg.Transport
	t.Venue = name

	api := binance.NewClient(cfg.Auth.Key, cfg.Auth.Secret)
	api.HTTPClient = rest.New(t).HTTPClient()
	if t.BaseURL != "" {
		api.BaseURL = t.BaseURL
	}

	return &Client{
		name:     name,
		quote:    quote,
		deposits: cfg.Deposits,
		api:      api,
	}
}

func (c *Client) Name() string { return c.name }

func (c *Client) symbol(currency string) string {
	return currency + c.quote
}

func (c *Client) Markets(ctx context.Context) ([]domain.Market, error) {
	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, c.wrap("markets", err)
	}
	out := make([]domain.Market, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		out = append(out, domain.Market{
			Symbol: s.Symbol,
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
			Active: s.Status == "TRADING",
		})
	}
	return out, nil
}

// Tickers combines the book ticker (ask, bid) with the last price.
func (c *Client) Tickers(ctx context.Context, currencies []string) (domain.Tickers, error) {
	want := make(map[string]string, len(currencies))
	for _, cur := range currencies {
		want[c.symbol(cur)] = cur
	}

	books, err := c.api.NewListBookTickersService().Do(ctx)
	if err != nil {
		return nil, c.wrap("tickers", err)
	}
	prices, err := c.api.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, c.wrap("tickers", err)
	}
	last := make(map[string]string, len(prices))
	for _, p := range prices {
		if _, ok := want[p.Symbol]; ok {
			last[p.Symbol] = p.Price
		}
	}

	out := make(domain.Tickers, len(currencies))
	for _, b := range books {
		cur, ok := want[b.Symbol]
		if !ok {
			continue
		}
		var q domain.Quote
		if q.Ask, err = parseAmount(b.AskPrice); err != nil {
			return nil, fmt.Errorf("binance: tickers: %s ask: %w", b.Symbol, err)
		}
		if q.Bid, err = parseAmount(b.BidPrice); err != nil {
			return nil, fmt.Errorf("binance: tickers: %s bid: %w", b.Symbol, err)
		}
		if p, ok := last[b.Symbol]; ok {
			if q.Last, err = parseAmount(p); err != nil {
				return nil, fmt.Errorf("binance: tickers: %s last: %w", b.Symbol, err)
			}
		}
		out[cur] = q
	}
	return out, nil
}

// Balances returns the free balance of each requested currency the account
// lists.
func (c *Client) Balances(ctx context.Context, currencies []string) (domain.Balances, error) {
	acct, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.wrap("balances", err)
	}
	want := make(map[string]bool, len(currencies))
	for _, cur := range currencies {
		want[cur] = true
	}
	out := domain.Balances{}
	for _, b := range acct.Balances {
		if !want[b.Asset] {
			continue
		}
		f, err := parseAmount(b.Free)
		if err != nil {
			return nil, fmt.Errorf("binance: balances: %s: %w", b.Asset, err)
		}
		out[b.Asset] = f
	}
	return out, nil
}

func (c *Client) Buy(ctx context.Context, currency string, size, rate float64) (string, error) {
	return c.limit(ctx, "buy", binance.SideTypeBuy, currency, size, rate)
}

func (c *Client) Sell(ctx context.Context, currency string, size, rate float64) (string, error) {
	return c.limit(ctx, "sell", binance.SideTypeSell, currency, size, rate)
}

func (c *Client) limit(ctx context.Context, op string, side binance.SideType, currency string, size, rate float64) (string, error) {
	symbol := c.symbol(currency)
	res, err := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(decimal.NewFromFloat(size).String()).
		Price(decimal.NewFromFloat(rate).StringFixed(8)).
		Do(ctx)
	if err != nil {
		return "", c.wrap(op, err)
	}
	return formatOrderID(res.Symbol, res.OrderID), nil
}

func (c *Client) Cancel(ctx context.Context, orderID string) (bool, error) {
	symbol, id, err := parseOrderID(orderID)
	if err != nil {
		return false, fmt.Errorf("binance: cancel: %w", err)
	}
	if _, err := c.api.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx); err != nil {
		return false, c.wrap("cancel", err)
	}
	return true, nil
}

func (c *Client) Withdraw(ctx context.Context, currency string, size float64, destination string) (string, error) {
	addr, err := c.deposits.Lookup(destination, currency)
	if err != nil {
		return "", fmt.Errorf("binance: withdraw: %w", err)
	}
	svc := c.api.NewCreateWithdrawService().
		Coin(currency).
		Address(addr.Address).
		Amount(decimal.NewFromFloat(size).String())
	if addr.Memo != "" {
		svc = svc.AddressTag(addr.Memo)
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return "", c.wrap("withdraw", err)
	}
	return res.ID, nil
}

// GetOrder derives the price per unit from the cumulative quote quantity.
func (c *Client) GetOrder(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	symbol, id, err := parseOrderID(orderID)
	if err != nil {
		return domain.OrderStatus{}, fmt.Errorf("binance: get_order: %w", err)
	}
	o, err := c.api.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return domain.OrderStatus{}, c.wrap("get_order", err)
	}
	orig, err := parseAmount(o.OrigQuantity)
	if err != nil {
		return domain.OrderStatus{}, fmt.Errorf("binance: get_order: %w", err)
	}
	exec, err := parseAmount(o.ExecutedQuantity)
	if err != nil {
		return domain.OrderStatus{}, fmt.Errorf("binance: get_order: %w", err)
	}
	cost, err := parseAmount(o.CummulativeQuoteQuantity)
	if err != nil {
		return domain.OrderStatus{}, fmt.Errorf("binance: get_order: %w", err)
	}
	return domain.NewOrderStatus(orig, exec, cost), nil
}

// wrap turns SDK API errors into venue errors and maps transport failures
// onto the transient sentinels.
func (c *Client) wrap(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		// The SDK reports any HTTP error status as an APIError, leaving it
		// blank when the body was not the venue's error JSON (a gateway
		// failure page, say).
		if apiErr.Code == 0 && apiErr.Message == "" {
			return fmt.Errorf("binance: %s: %w", op, domain.ErrNoResponse)
		}
		return domain.NewVenueError(c.name, op, fmt.Sprintf("code=%d msg=%s", apiErr.Code, apiErr.Message))
	}
	return fmt.Errorf("binance: %s: %w", op, rest.MapError(err))
}

func formatOrderID(symbol string, id int64) string {
	return symbol + ":" + strconv.FormatInt(id, 10)
}

func parseOrderID(s string) (string, int64, error) {
	symbol, raw, ok := strings.Cut(s, ":")
	if !ok || symbol == "" {
		return "", 0, fmt.Errorf("%w: order id %q is not <symbol>:<id>", domain.ErrInvalidState, s)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: order id %q: %v", domain.ErrInvalidState, s, err)
	}
	return symbol, id, nil
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
