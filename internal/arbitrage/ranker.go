package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zcesur/crypto-arb/internal/domain"
)

// Ranker evaluates every (currency, destination) pair for one origin venue
// and orders the results by estimated profit.
type Ranker struct {
	currencies []string
	params     CalcParams
	workers    int
	logger     *slog.Logger
}

// NewRanker returns a Ranker over the given traded currencies. Calculations
// run on up to GOMAXPROCS workers.
func NewRanker(currencies []string, params CalcParams, logger *slog.Logger) *Ranker {
	return &Ranker{
		currencies: currencies,
		params:     params,
		workers:    runtime.GOMAXPROCS(0),
		logger:     logger.With(slog.String("stage", "ranker")),
	}
}

// Rank fetches balances and quotes concurrently, evaluates every
// combination in parallel and returns the opportunities sorted by profit,
// highest first. Ties keep their evaluation order. Any fetch or calculation
// failure aborts the whole pass.
func (r *Ranker) Rank(ctx context.Context, origin domain.Venue, destinations []domain.Venue) ([]domain.Opportunity, error) {
	start := time.Now()
	quote := r.params.QuoteAsset

	var (
		originBalances domain.Balances
		originAsks     map[string]float64
		destBalances   = make([]domain.Balances, len(destinations))
		destBids       = make([]map[string]float64, len(destinations))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := origin.Balances(gctx, []string{quote})
		if err != nil {
			return fmt.Errorf("%s balances: %w", origin.Name(), err)
		}
		originBalances = b
		return nil
	})
	g.Go(func() error {
		a, err := domain.Asks(gctx, origin, r.currencies)
		if err != nil {
			return fmt.Errorf("%s asks: %w", origin.Name(), err)
		}
		originAsks = a
		return nil
	})
	for i, dest := range destinations {
		g.Go(func() error {
			b, err := dest.Balances(gctx, r.currencies)
			if err != nil {
				return fmt.Errorf("%s balances: %w", dest.Name(), err)
			}
			destBalances[i] = b
			return nil
		})
		g.Go(func() error {
			bids, err := domain.Bids(gctx, dest, r.currencies)
			if err != nil {
				return fmt.Errorf("%s bids: %w", dest.Name(), err)
			}
			destBids[i] = bids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("rank: fetch: %w", err)
	}

	originBalance, ok := originBalances[quote]
	if !ok {
		return nil, fmt.Errorf("rank: %w: %s returned no %s balance", domain.ErrInvalidState, origin.Name(), quote)
	}

	var inputs []CalcInput
	for i, dest := range destinations {
		for _, currency := range r.currencies {
			bid, ok := destBids[i][currency]
			if !ok {
				continue
			}
			ask, ok := originAsks[currency]
			if !ok {
				return nil, fmt.Errorf("rank: %w: %s returned no ask for %s", domain.ErrInvalidState, origin.Name(), currency)
			}
			destBalance, ok := destBalances[i][currency]
			if !ok {
				return nil, fmt.Errorf("rank: %w: %s returned no %s balance", domain.ErrInvalidState, dest.Name(), currency)
			}
			inputs = append(inputs, CalcInput{
				Origin:             origin.Name(),
				Destination:        dest.Name(),
				Currency:           currency,
				OriginRate:         ask,
				DestinationRate:    bid,
				OriginBalance:      originBalance,
				DestinationBalance: destBalance,
			})
		}
	}

	results := make([]domain.Opportunity, len(inputs))
	var calc errgroup.Group
	calc.SetLimit(r.workers)
	for i, in := range inputs {
		calc.Go(func() error {
			opp, err := Calculate(in, r.params, r.logger)
			if err != nil {
				return err
			}
			results[i] = opp
			return nil
		})
	}
	if err := calc.Wait(); err != nil {
		return nil, fmt.Errorf("rank: calculate: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ProfitEstimate > results[j].ProfitEstimate
	})

	r.logger.DebugContext(ctx, "ranked opportunities",
		slog.String("origin", origin.Name()),
		slog.Int("count", len(results)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return results, nil
}
