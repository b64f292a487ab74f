package domain

// Market is a tradable pair as listed by a venue.
type Market struct {
	Symbol string // venue-native pair name, e.g. "BTC-XRP" or "XXRPXXBT"
	Base   string // traded currency, e.g. "XRP"
	Quote  string // quote asset, e.g. "BTC"
	Active bool
}

// Quote is the best ask, best bid and last trade price for one currency
// against the quote asset, as of one poll.
type Quote struct {
	Ask  float64
	Bid  float64
	Last float64
}

// Tickers maps a currency symbol to its quote.
type Tickers map[string]Quote

// Balances maps a currency symbol to its available (non-reserved) quantity.
type Balances map[string]float64
