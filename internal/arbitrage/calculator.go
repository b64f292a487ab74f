// Package arbitrage scores cross-venue opportunities, ranks them for one
// origin venue, and runs the per-origin buy, sell, settle and withdraw loop.
package arbitrage

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/zcesur/crypto-arb/internal/domain"
)

const (
	// DefaultCommissionRate is charged on the notional of each leg.
	DefaultCommissionRate = 0.0020
	// DefaultMinSpreadPct is the smallest relative spread worth trading.
	DefaultMinSpreadPct = 0.01
)

// CalcParams is the static, read-only input shared by every calculation.
type CalcParams struct {
	QuoteAsset string
	// Fees is the fixed fee per trade in currency units, keyed by venue then
	// currency.
	Fees             map[string]map[string]float64
	MinimumOrderSize map[string]float64
	CommissionRate   float64
	MinSpreadPct     float64
}

// CalcInput is one (currency, destination) combination from a single poll.
type CalcInput struct {
	Origin             string
	Destination        string
	Currency           string
	OriginRate         float64 // origin ask
	DestinationRate    float64 // destination bid
	OriginBalance      float64 // origin balance of the quote asset
	DestinationBalance float64 // destination balance of the currency
}

// Calculate sizes and scores one opportunity. It is a pure function apart
// from the debug log emitted for actionable results.
//
//	size   = floor(min(originBalance/originRate, destinationBalance)), 0 below the minimum order size
//	profit = spread*size - fee[origin][currency]*originRate - (destinationRate+originRate)*size*commission
func Calculate(in CalcInput, p CalcParams, logger *slog.Logger) (domain.Opportunity, error) {
	if !validRate(in.OriginRate) || in.OriginRate == 0 {
		return domain.Opportunity{}, fmt.Errorf("%w: %s ask for %s is %v", domain.ErrInvalidQuote, in.Origin, in.Currency, in.OriginRate)
	}
	if !validRate(in.DestinationRate) {
		return domain.Opportunity{}, fmt.Errorf("%w: %s bid for %s is %v", domain.ErrInvalidQuote, in.Destination, in.Currency, in.DestinationRate)
	}
	minSize, ok := p.MinimumOrderSize[in.Currency]
	if !ok {
		return domain.Opportunity{}, fmt.Errorf("%w: no minimum order size for %s", domain.ErrInvalidState, in.Currency)
	}
	fee, ok := p.Fees[in.Origin][in.Currency]
	if !ok {
		return domain.Opportunity{}, fmt.Errorf("%w: no fee for %s on %s", domain.ErrInvalidState, in.Currency, in.Origin)
	}

	originSize := in.OriginBalance / in.OriginRate
	destinationSize := in.DestinationBalance
	size := math.Floor(math.Min(originSize, destinationSize))
	if size < 0 || math.IsNaN(size) || size < minSize {
		size = 0
	}

	spread := in.DestinationRate - in.OriginRate
	spreadPct := in.DestinationRate/in.OriginRate - 1
	profit := spread*size -
		fee*in.OriginRate -
		(in.DestinationRate+in.OriginRate)*size*p.CommissionRate

	opp := domain.Opportunity{
		Origin:          in.Origin,
		Destination:     in.Destination,
		Currency:        in.Currency,
		ProfitEstimate:  profit,
		Size:            size,
		OriginRate:      in.OriginRate,
		DestinationRate: in.DestinationRate,
		SpreadPct:       spreadPct,
	}

	if opp.Actionable(p.MinSpreadPct) && logger != nil {
		logger.Debug("found a profitable spread",
			slog.String("currency", in.Currency),
			slog.String("origin", in.Origin),
			slog.String("destination", in.Destination),
			slog.String("spread_pct", fmt.Sprintf("%.4f", spreadPct)),
			slog.String("estimated_pnl", fmt.Sprintf("%.8f", profit)),
		)
	}
	return opp, nil
}

func validRate(r float64) bool {
	return r >= 0 && !math.IsNaN(r) && !math.IsInf(r, 0)
}
