// Package paper provides an in-memory venue for dry runs and tests. Quotes
// come from a real binding or a static table; balances, orders and
// withdrawals are simulated locally.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zcesur/crypto-arb/internal/domain"
)

// Config configures a Venue.
type Config struct {
	Name       string
	QuoteAsset string
	// Source supplies markets and tickers. When nil, Quotes is used.
	Source domain.Venue
	Quotes domain.Tickers
	// Balances are the starting holdings.
	Balances domain.Balances
	// Network receives withdrawals addressed to other paper venues.
	Network *Network
	Logger  *slog.Logger
}

type order struct {
	currency string
	side     domain.OrderSide
	size     float64
	rate     float64
	filled   float64
	canceled bool
}

func (o *order) open() float64 {
	if o.canceled {
		return 0
	}
	return o.size - o.filled
}

// Venue simulates one exchange account. Limit orders fill in full at their
// own rate once the market crosses them: a buy when the ask is at or below
// the rate, a sell when the bid is at or above it. Funds are reserved when
// an order is placed and released on cancel.
type Venue struct {
	name    string
	quote   string
	source  domain.Venue
	network *Network
	logger  *slog.Logger

	mu       sync.Mutex
	quotes   domain.Tickers
	balances domain.Balances
	orders   map[string]*order
}

// New creates a Venue and registers it with cfg.Network if set.
func New(cfg Config) *Venue {
	quote := cfg.QuoteAsset
	if quote == "" {
		quote = "BTC"
	}
	name := cfg.Name
	if name == "" && cfg.Source != nil {
		name = cfg.Source.Name()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	v := &Venue{
		name:     name,
		quote:    quote,
		source:   cfg.Source,
		network:  cfg.Network,
		logger:   logger.With(slog.String("component", "paper"), slog.String("venue", name)),
		quotes:   domain.Tickers{},
		balances: domain.Balances{},
		orders:   map[string]*order{},
	}
	for c, q := range cfg.Quotes {
		v.quotes[c] = q
	}
	for c, b := range cfg.Balances {
		v.balances[c] = b
	}
	if cfg.Network != nil {
		cfg.Network.add(v)
	}
	return v
}

func (v *Venue) Name() string { return v.name }

// SetQuote replaces the static quote for currency.
func (v *Venue) SetQuote(currency string, q domain.Quote) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.quotes[currency] = q
}

func (v *Venue) Markets(ctx context.Context) ([]domain.Market, error) {
	if v.source != nil {
		return v.source.Markets(ctx)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.Market, 0, len(v.quotes))
	for c := range v.quotes {
		out = append(out, domain.Market{Symbol: c + "/" + v.quote, Base: c, Quote: v.quote, Active: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (v *Venue) Tickers(ctx context.Context, currencies []string) (domain.Tickers, error) {
	if v.source != nil {
		return v.source.Tickers(ctx, currencies)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(domain.Tickers, len(currencies))
	for _, c := range currencies {
		if q, ok := v.quotes[c]; ok {
			out[c] = q
		}
	}
	return out, nil
}

// Balances reports holdings for every requested currency, zero for those
// never held.
func (v *Venue) Balances(_ context.Context, currencies []string) (domain.Balances, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(domain.Balances, len(currencies))
	for _, c := range currencies {
		out[c] = v.balances[c]
	}
	return out, nil
}

func (v *Venue) Buy(ctx context.Context, currency string, size, rate float64) (string, error) {
	return v.place(ctx, "buy", domain.OrderSideBuy, currency, size, rate)
}

func (v *Venue) Sell(ctx context.Context, currency string, size, rate float64) (string, error) {
	return v.place(ctx, "sell", domain.OrderSideSell, currency, size, rate)
}

func (v *Venue) place(ctx context.Context, op string, side domain.OrderSide, currency string, size, rate float64) (string, error) {
	if size <= 0 || rate <= 0 {
		return "", domain.NewVenueError(v.name, op, fmt.Sprintf("INVALID_ORDER size=%v rate=%v", size, rate))
	}
	q, err := v.quoteFor(ctx, currency)
	if err != nil {
		return "", err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	asset, amount := v.quote, size*rate
	if side == domain.OrderSideSell {
		asset, amount = currency, size
	}
	if v.balances[asset] < amount {
		return "", domain.NewVenueError(v.name, op,
			fmt.Sprintf("INSUFFICIENT_FUNDS %s: have %v, need %v", asset, v.balances[asset], amount))
	}
	v.balances[asset] -= amount

	id := uuid.NewString()
	o := &order{currency: currency, side: side, size: size, rate: rate}
	v.orders[id] = o
	v.match(o, q)

	v.logger.Info("paper order placed",
		slog.String("order_id", id),
		slog.String("side", string(side)),
		slog.String("currency", currency),
		slog.Float64("size", size),
		slog.Float64("rate", rate),
		slog.Float64("filled", o.filled),
	)
	return id, nil
}

// match fills o if the quote crosses its rate. Caller holds mu.
func (v *Venue) match(o *order, q domain.Quote) {
	if o.open() <= 0 {
		return
	}
	crossed := false
	switch o.side {
	case domain.OrderSideBuy:
		crossed = q.Ask > 0 && q.Ask <= o.rate
	case domain.OrderSideSell:
		crossed = q.Bid > 0 && q.Bid >= o.rate
	}
	if !crossed {
		return
	}
	qty := o.open()
	o.filled = o.size
	if o.side == domain.OrderSideBuy {
		v.balances[o.currency] += qty
	} else {
		v.balances[v.quote] += qty * o.rate
	}
}

func (v *Venue) Cancel(_ context.Context, orderID string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[orderID]
	if !ok {
		return false, domain.NewVenueError(v.name, "cancel", "ORDER_NOT_FOUND "+orderID)
	}
	open := o.open()
	if open <= 0 {
		return false, domain.NewVenueError(v.name, "cancel", "ORDER_NOT_OPEN "+orderID)
	}
	if o.side == domain.OrderSideBuy {
		v.balances[v.quote] += open * o.rate
	} else {
		v.balances[o.currency] += open
	}
	o.canceled = true
	return true, nil
}

// Withdraw debits size from this venue and credits it to destination when
// destination is a paper venue on the same Network.
func (v *Venue) Withdraw(_ context.Context, currency string, size float64, destination string) (string, error) {
	v.mu.Lock()
	if v.balances[currency] < size {
		have := v.balances[currency]
		v.mu.Unlock()
		return "", domain.NewVenueError(v.name, "withdraw",
			fmt.Sprintf("INSUFFICIENT_FUNDS %s: have %v, need %v", currency, have, size))
	}
	v.balances[currency] -= size
	v.mu.Unlock()

	if v.network != nil {
		if dst := v.network.get(destination); dst != nil && dst != v {
			dst.credit(currency, size)
		}
	}

	ref := uuid.NewString()
	v.logger.Info("paper withdrawal",
		slog.String("ref", ref),
		slog.String("currency", currency),
		slog.Float64("size", size),
		slog.String("destination", destination),
	)
	return ref, nil
}

// GetOrder re-matches an open order against the current quote before
// reporting it.
func (v *Venue) GetOrder(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	v.mu.Lock()
	o, ok := v.orders[orderID]
	var currency string
	if ok {
		currency = o.currency
	}
	v.mu.Unlock()
	if !ok {
		return domain.OrderStatus{}, domain.NewVenueError(v.name, "get_order", "ORDER_NOT_FOUND "+orderID)
	}

	q, err := v.quoteFor(ctx, currency)
	if err != nil {
		return domain.OrderStatus{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.match(o, q)
	return domain.NewOrderStatus(o.size, o.filled, o.filled*o.rate), nil
}

func (v *Venue) credit(currency string, size float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[currency] += size
}

func (v *Venue) quoteFor(ctx context.Context, currency string) (domain.Quote, error) {
	t, err := v.Tickers(ctx, []string{currency})
	if err != nil {
		return domain.Quote{}, err
	}
	return t[currency], nil
}

// Network connects paper venues so withdrawals between them move funds.
type Network struct {
	mu     sync.Mutex
	venues map[string]*Venue
}

// NewNetwork creates an empty Network.
func NewNetwork() *Network {
	return &Network{venues: map[string]*Venue{}}
}

func (n *Network) add(v *Venue) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.venues[v.name] = v
}

func (n *Network) get(name string) *Venue {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.venues[name]
}

// Compile-time interface check.
var _ domain.Venue = (*Venue)(nil)
