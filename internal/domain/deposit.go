package domain

import "fmt"

// DepositAddress is where a venue accepts deposits of one currency.
// Memo is the payment id / destination tag for currencies that need one;
// WithdrawalKey is the name of a pre-registered withdrawal address on
// venues that withdraw by key instead of by raw address (Kraken).
type DepositAddress struct {
	Address       string `yaml:"address"`
	Memo          string `yaml:"memo"`
	WithdrawalKey string `yaml:"withdrawal_key"`
}

// DepositBook is keyed by destination venue, then by currency.
type DepositBook map[string]map[string]DepositAddress

// Lookup returns the deposit address the destination venue has for currency.
func (b DepositBook) Lookup(destination, currency string) (DepositAddress, error) {
	byCurrency, ok := b[destination]
	if !ok {
		return DepositAddress{}, fmt.Errorf("%w: venue %s", ErrNoDepositEntry, destination)
	}
	addr, ok := byCurrency[currency]
	if !ok {
		return DepositAddress{}, fmt.Errorf("%w: %s on %s", ErrNoDepositEntry, currency, destination)
	}
	return addr, nil
}
