package domain

import "context"

// Venue is the capability set every exchange binding must expose. All
// currency symbols are base currencies quoted against the quote asset
// (BTC); bindings translate them to their own pair naming.
type Venue interface {
	// Name returns the configured venue name, e.g. "Bittrex".
	Name() string

	// Markets lists the tradable pairs on the venue.
	Markets(ctx context.Context) ([]Market, error)

	// Tickers returns a quote per requested currency. Currencies the venue
	// did not return are absent from the map, never zero-filled.
	Tickers(ctx context.Context, currencies []string) (Tickers, error)

	// Balances returns the available quantity per requested currency.
	Balances(ctx context.Context, currencies []string) (Balances, error)

	// Buy places a limit buy and returns the venue's order identifier.
	Buy(ctx context.Context, currency string, size, rate float64) (string, error)

	// Sell places a limit sell and returns the venue's order identifier.
	Sell(ctx context.Context, currency string, size, rate float64) (string, error)

	// Cancel cancels an open order.
	Cancel(ctx context.Context, orderID string) (bool, error)

	// Withdraw sends size units of currency to the deposit address the
	// destination venue has configured for it. It returns the venue's
	// withdrawal reference.
	Withdraw(ctx context.Context, currency string, size float64, destination string) (string, error)

	// GetOrder reports fill progress for a previously placed order.
	GetOrder(ctx context.Context, orderID string) (OrderStatus, error)
}

// QuoteField selects one side of a Quote.
type QuoteField int

const (
	FieldAsk QuoteField = iota
	FieldBid
	FieldLast
)

// Project reduces a ticker snapshot to one numeric field per currency.
func Project(t Tickers, field QuoteField) map[string]float64 {
	out := make(map[string]float64, len(t))
	for c, q := range t {
		switch field {
		case FieldAsk:
			out[c] = q.Ask
		case FieldBid:
			out[c] = q.Bid
		case FieldLast:
			out[c] = q.Last
		}
	}
	return out
}

// Asks fetches tickers once and returns the ask per currency. Retrying is
// the job of the venue's Tickers call, not of this helper.
func Asks(ctx context.Context, v Venue, currencies []string) (map[string]float64, error) {
	t, err := v.Tickers(ctx, currencies)
	if err != nil {
		return nil, err
	}
	return Project(t, FieldAsk), nil
}

// Bids fetches tickers once and returns the bid per currency.
func Bids(ctx context.Context, v Venue, currencies []string) (map[string]float64, error) {
	t, err := v.Tickers(ctx, currencies)
	if err != nil {
		return nil, err
	}
	return Project(t, FieldBid), nil
}

// Lasts fetches tickers once and returns the last trade price per currency.
func Lasts(ctx context.Context, v Venue, currencies []string) (map[string]float64, error) {
	t, err := v.Tickers(ctx, currencies)
	if err != nil {
		return nil, err
	}
	return Project(t, FieldLast), nil
}
