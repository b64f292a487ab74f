package paper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/zcesur/crypto-arb/internal/domain"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func newTestVenue(name string, network *Network) *Venue {
	return New(Config{
		Name:       name,
		QuoteAsset: "BTC",
		Quotes: domain.Tickers{
			"XRP": {Ask: 0.0005, Bid: 0.00049, Last: 0.000495},
		},
		Balances: domain.Balances{"BTC": 1, "XRP": 100},
		Network:  network,
		Logger:   quietLogger,
	})
}

func TestTickersAndBalances(t *testing.T) {
	v := newTestVenue("Paper", nil)
	ctx := context.Background()

	tickers, err := v.Tickers(ctx, []string{"XRP", "XLM"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tickers) != 1 || tickers["XRP"].Ask != 0.0005 {
		t.Errorf("tickers = %v", tickers)
	}

	bals, _ := v.Balances(ctx, []string{"BTC", "XLM"})
	if bals["BTC"] != 1 || bals["XLM"] != 0 || len(bals) != 2 {
		t.Errorf("balances = %v", bals)
	}

	markets, _ := v.Markets(ctx)
	if len(markets) != 1 || markets[0].Base != "XRP" || markets[0].Quote != "BTC" {
		t.Errorf("markets = %+v", markets)
	}
}

func TestBuyFillsWhenCrossed(t *testing.T) {
	v := newTestVenue("Paper", nil)
	ctx := context.Background()

	id, err := v.Buy(ctx, "XRP", 1000, 0.0005)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	st, err := v.GetOrder(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if st.FillSize != 1000 || st.OpenSize != 0 || st.PricePerUnit == nil || !near(*st.PricePerUnit, 0.0005) {
		t.Errorf("status = %+v", st)
	}
	bals, _ := v.Balances(ctx, []string{"BTC", "XRP"})
	if !near(bals["BTC"], 0.5) || bals["XRP"] != 1100 {
		t.Errorf("balances = %v", bals)
	}
}

func TestRestingOrderAndCancel(t *testing.T) {
	v := newTestVenue("Paper", nil)
	ctx := context.Background()

	id, err := v.Buy(ctx, "XRP", 1000, 0.0004)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	st, _ := v.GetOrder(ctx, id)
	if st.FillSize != 0 || st.OpenSize != 1000 || st.PricePerUnit != nil {
		t.Errorf("resting status = %+v", st)
	}
	bals, _ := v.Balances(ctx, []string{"BTC"})
	if !near(bals["BTC"], 0.6) {
		t.Errorf("reserved balance = %v", bals["BTC"])
	}

	ok, err := v.Cancel(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Cancel = %v, %v", ok, err)
	}
	bals, _ = v.Balances(ctx, []string{"BTC"})
	if !near(bals["BTC"], 1) {
		t.Errorf("balance after cancel = %v", bals["BTC"])
	}
	if _, err := v.Cancel(ctx, id); !domain.IsVenueError(err) {
		t.Errorf("second cancel err = %v", err)
	}
}

func TestRestingOrderFillsLater(t *testing.T) {
	v := newTestVenue("Paper", nil)
	ctx := context.Background()

	id, _ := v.Sell(ctx, "XRP", 100, 0.0006)
	if st, _ := v.GetOrder(ctx, id); st.FillSize != 0 {
		t.Fatalf("filled early: %+v", st)
	}
	v.SetQuote("XRP", domain.Quote{Ask: 0.00062, Bid: 0.0006})
	st, _ := v.GetOrder(ctx, id)
	if st.FillSize != 100 {
		t.Errorf("status = %+v", st)
	}
	bals, _ := v.Balances(ctx, []string{"BTC", "XRP"})
	if !near(bals["BTC"], 1.06) || bals["XRP"] != 0 {
		t.Errorf("balances = %v", bals)
	}
}

func TestRejections(t *testing.T) {
	v := newTestVenue("Paper", nil)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"buy beyond funds", func() error { _, err := v.Buy(ctx, "XRP", 10000, 0.0005); return err }},
		{"sell beyond holdings", func() error { _, err := v.Sell(ctx, "XRP", 101, 0.0004); return err }},
		{"zero size", func() error { _, err := v.Buy(ctx, "XRP", 0, 0.0005); return err }},
		{"withdraw beyond holdings", func() error { _, err := v.Withdraw(ctx, "XRP", 101, "Other"); return err }},
		{"unknown order", func() error { _, err := v.GetOrder(ctx, "nope"); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ve *domain.VenueError
			if err := tt.call(); !errors.As(err, &ve) || ve.Venue != "Paper" {
				t.Errorf("err = %v, want VenueError", err)
			}
		})
	}
}

func TestWithdrawAcrossNetwork(t *testing.T) {
	network := NewNetwork()
	a := newTestVenue("A", network)
	b := newTestVenue("B", network)
	ctx := context.Background()

	if _, err := a.Withdraw(ctx, "XRP", 60, "B"); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	ab, _ := a.Balances(ctx, []string{"XRP"})
	bb, _ := b.Balances(ctx, []string{"XRP"})
	if ab["XRP"] != 40 || bb["XRP"] != 160 {
		t.Errorf("A=%v B=%v", ab, bb)
	}

	// Unknown destinations just lose the funds, as a real withdrawal to an
	// outside address would.
	if _, err := a.Withdraw(ctx, "XRP", 40, "Elsewhere"); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	ab, _ = a.Balances(ctx, []string{"XRP"})
	if ab["XRP"] != 0 {
		t.Errorf("A = %v", ab)
	}
}

type sourceVenue struct {
	domain.Venue
	calls int
}

func (s *sourceVenue) Name() string { return "Real" }

func (s *sourceVenue) Tickers(context.Context, []string) (domain.Tickers, error) {
	s.calls++
	return domain.Tickers{"XRP": {Ask: 0.001, Bid: 0.0009}}, nil
}

func TestQuotesFromSource(t *testing.T) {
	src := &sourceVenue{}
	v := New(Config{Source: src, Balances: domain.Balances{"BTC": 1}, Logger: quietLogger})
	if v.Name() != "Real" {
		t.Errorf("name = %q", v.Name())
	}
	ctx := context.Background()

	if _, err := v.Buy(ctx, "XRP", 100, 0.001); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if src.calls == 0 {
		t.Error("source not consulted")
	}
	bals, _ := v.Balances(ctx, []string{"XRP"})
	if bals["XRP"] != 100 {
		t.Errorf("balances = %v", bals)
	}
}
