package resilience

import (
	"context"
	"log/slog"

	"github.com/zcesur/crypto-arb/internal/domain"
)

// Venue decorates a domain.Venue so that every operation goes through Call.
type Venue struct {
	next   domain.Venue
	policy Policy
}

// Wrap returns v with the policy applied to every operation.
func Wrap(v domain.Venue, p Policy) *Venue {
	return &Venue{next: v, policy: p}
}

// Unwrap returns the decorated venue.
func (v *Venue) Unwrap() domain.Venue { return v.next }

func (v *Venue) Name() string { return v.next.Name() }

func (v *Venue) Markets(ctx context.Context) ([]domain.Market, error) {
	return Call(ctx, v.policy, "markets", nil, func(ctx context.Context) ([]domain.Market, error) {
		return v.next.Markets(ctx)
	})
}

func (v *Venue) Tickers(ctx context.Context, currencies []string) (domain.Tickers, error) {
	args := []slog.Attr{slog.Any("currencies", currencies)}
	return Call(ctx, v.policy, "tickers", args, func(ctx context.Context) (domain.Tickers, error) {
		return v.next.Tickers(ctx, currencies)
	})
}

func (v *Venue) Balances(ctx context.Context, currencies []string) (domain.Balances, error) {
	args := []slog.Attr{slog.Any("currencies", currencies)}
	return Call(ctx, v.policy, "balances", args, func(ctx context.Context) (domain.Balances, error) {
		return v.next.Balances(ctx, currencies)
	})
}

func (v *Venue) Buy(ctx context.Context, currency string, size, rate float64) (string, error) {
	args := orderArgs(currency, size, rate)
	return Call(ctx, v.policy, "buy", args, func(ctx context.Context) (string, error) {
		return v.next.Buy(ctx, currency, size, rate)
	})
}

func (v *Venue) Sell(ctx context.Context, currency string, size, rate float64) (string, error) {
	args := orderArgs(currency, size, rate)
	return Call(ctx, v.policy, "sell", args, func(ctx context.Context) (string, error) {
		return v.next.Sell(ctx, currency, size, rate)
	})
}

func (v *Venue) Cancel(ctx context.Context, orderID string) (bool, error) {
	args := []slog.Attr{slog.String("order_id", orderID)}
	return Call(ctx, v.policy, "cancel", args, func(ctx context.Context) (bool, error) {
		return v.next.Cancel(ctx, orderID)
	})
}

func (v *Venue) Withdraw(ctx context.Context, currency string, size float64, destination string) (string, error) {
	args := []slog.Attr{
		slog.String("currency", currency),
		slog.Float64("size", size),
		slog.String("destination", destination),
	}
	return Call(ctx, v.policy, "withdraw", args, func(ctx context.Context) (string, error) {
		return v.next.Withdraw(ctx, currency, size, destination)
	})
}

func (v *Venue) GetOrder(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	args := []slog.Attr{slog.String("order_id", orderID)}
	return Call(ctx, v.policy, "get_order", args, func(ctx context.Context) (domain.OrderStatus, error) {
		return v.next.GetOrder(ctx, orderID)
	})
}

func orderArgs(currency string, size, rate float64) []slog.Attr {
	return []slog.Attr{
		slog.String("currency", currency),
		slog.Float64("size", size),
		slog.Float64("rate", rate),
	}
}

// Compile-time interface check.
var _ domain.Venue = (*Venue)(nil)
