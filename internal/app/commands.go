package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/zcesur/crypto-arb/internal/domain"
)

func amount(f float64) string {
	return decimal.NewFromFloat(f).StringFixed(8)
}

// Balances prints the quote asset and every configured currency for each
// enabled venue. Venues are queried concurrently.
func (a *App) Balances(ctx context.Context, w io.Writer) error {
	deps, err := a.Open(ctx)
	if err != nil {
		return err
	}
	venues := a.cfg.EnabledVenues()
	currencies := append([]string{a.cfg.Arbitrage.QuoteAsset}, a.cfg.Arbitrage.Currencies...)
	results := make([]domain.Balances, len(venues))

	g, gctx := errgroup.WithContext(ctx)
	for i, vc := range venues {
		g.Go(func() error {
			v, err := deps.Venue(vc.Name)
			if err != nil {
				return err
			}
			b, err := v.Balances(gctx, currencies)
			if err != nil {
				return fmt.Errorf("%s: %w", vc.Name, err)
			}
			results[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("app: balances: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "VENUE\t")
	for _, c := range currencies {
		fmt.Fprintf(tw, "%s\t", c)
	}
	fmt.Fprintln(tw)
	for i, vc := range venues {
		fmt.Fprintf(tw, "%s\t", vc.Name)
		for _, c := range currencies {
			if b, ok := results[i][c]; ok {
				fmt.Fprintf(tw, "%s\t", amount(b))
			} else {
				fmt.Fprint(tw, "-\t")
			}
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

// Markets prints the pairs listed by venue that trade against the quote
// asset.
func (a *App) Markets(ctx context.Context, venue string, w io.Writer) error {
	deps, err := a.Open(ctx)
	if err != nil {
		return err
	}
	v, err := deps.Venue(venue)
	if err != nil {
		return err
	}
	markets, err := v.Markets(ctx)
	if err != nil {
		return fmt.Errorf("app: markets: %w", err)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tBASE\tQUOTE\tACTIVE")
	for _, m := range markets {
		if m.Quote != a.cfg.Arbitrage.QuoteAsset {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", m.Symbol, m.Base, m.Quote, m.Active)
	}
	return tw.Flush()
}

// Order prints the fill status of an order.
func (a *App) Order(ctx context.Context, venue, orderID string, w io.Writer) error {
	deps, err := a.Open(ctx)
	if err != nil {
		return err
	}
	v, err := deps.Venue(venue)
	if err != nil {
		return err
	}
	st, err := v.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("app: order: %w", err)
	}
	ppu := "-"
	if st.PricePerUnit != nil {
		ppu = amount(*st.PricePerUnit)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tOPEN\tFILLED\tPRICE/UNIT")
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", orderID, amount(st.OpenSize), amount(st.FillSize), ppu)
	return tw.Flush()
}

// Cancel cancels an open order.
func (a *App) Cancel(ctx context.Context, venue, orderID string, w io.Writer) error {
	deps, err := a.Open(ctx)
	if err != nil {
		return err
	}
	v, err := deps.Venue(venue)
	if err != nil {
		return err
	}
	ok, err := v.Cancel(ctx, orderID)
	if err != nil {
		return fmt.Errorf("app: cancel: %w", err)
	}
	fmt.Fprintf(w, "%s %s cancelled: %t\n", v.Name(), orderID, ok)
	return nil
}
