package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/zcesur/crypto-arb/internal/domain"
)

// flakyVenue fails the first n calls of every operation with a transient
// error, then answers.
type flakyVenue struct {
	failures int
	calls    map[string]int
}

func (f *flakyVenue) fail(op string) error {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[op]++
	if f.calls[op] <= f.failures {
		return domain.ErrEmptyResponse
	}
	return nil
}

func (f *flakyVenue) Name() string { return "Flaky" }

func (f *flakyVenue) Markets(ctx context.Context) ([]domain.Market, error) {
	if err := f.fail("markets"); err != nil {
		return nil, err
	}
	return []domain.Market{{Symbol: "BTC-XRP", Base: "XRP", Quote: "BTC", Active: true}}, nil
}

func (f *flakyVenue) Tickers(ctx context.Context, currencies []string) (domain.Tickers, error) {
	if err := f.fail("tickers"); err != nil {
		return nil, err
	}
	return domain.Tickers{"XRP": {Ask: 0.0005, Bid: 0.00049, Last: 0.000495}}, nil
}

func (f *flakyVenue) Balances(ctx context.Context, currencies []string) (domain.Balances, error) {
	if err := f.fail("balances"); err != nil {
		return nil, err
	}
	return domain.Balances{"BTC": 1}, nil
}

func (f *flakyVenue) Buy(ctx context.Context, currency string, size, rate float64) (string, error) {
	if err := f.fail("buy"); err != nil {
		return "", err
	}
	return "buy-1", nil
}

func (f *flakyVenue) Sell(ctx context.Context, currency string, size, rate float64) (string, error) {
	return "", domain.NewVenueError("Flaky", "sell", "rejected")
}

func (f *flakyVenue) Cancel(ctx context.Context, orderID string) (bool, error) {
	if err := f.fail("cancel"); err != nil {
		return false, err
	}
	return true, nil
}

func (f *flakyVenue) Withdraw(ctx context.Context, currency string, size float64, destination string) (string, error) {
	if err := f.fail("withdraw"); err != nil {
		return "", err
	}
	return "wd-1", nil
}

func (f *flakyVenue) GetOrder(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	if err := f.fail("get_order"); err != nil {
		return domain.OrderStatus{}, err
	}
	return domain.NewOrderStatus(10, 0, 0), nil
}

func TestWrappedVenueRetries(t *testing.T) {
	inner := &flakyVenue{failures: 2}
	s := &sleepRecorder{}
	v := Wrap(inner, testPolicy(s))
	ctx := context.Background()

	if v.Name() != "Flaky" || v.Unwrap() != inner {
		t.Fatalf("wrapper does not expose the inner venue")
	}
	if _, err := v.Markets(ctx); err != nil {
		t.Errorf("Markets: %v", err)
	}
	asks, err := domain.Asks(ctx, v, []string{"XRP"})
	if err != nil || asks["XRP"] != 0.0005 {
		t.Errorf("Asks = %v, %v", asks, err)
	}
	if id, err := v.Buy(ctx, "XRP", 100, 0.0005); err != nil || id != "buy-1" {
		t.Errorf("Buy = %q, %v", id, err)
	}
	if id, err := v.Withdraw(ctx, "XRP", 100, "Kraken"); err != nil || id != "wd-1" {
		t.Errorf("Withdraw = %q, %v", id, err)
	}
	st, err := v.GetOrder(ctx, "buy-1")
	if err != nil || st.PricePerUnit != nil || st.OpenSize != 10 {
		t.Errorf("GetOrder = %+v, %v", st, err)
	}
	for op, n := range inner.calls {
		if n != 3 {
			t.Errorf("%s called %d times, want 3", op, n)
		}
	}
}

func TestWrappedVenueSellNotRetried(t *testing.T) {
	s := &sleepRecorder{}
	v := Wrap(&flakyVenue{}, testPolicy(s))
	_, err := v.Sell(context.Background(), "XRP", 100, 0.00052)
	var ve *domain.VenueError
	if !errors.As(err, &ve) || ve.Op != "sell" {
		t.Errorf("err = %v, want sell VenueError", err)
	}
	if len(s.waits) != 0 {
		t.Errorf("waited %d times on an application error", len(s.waits))
	}
}
