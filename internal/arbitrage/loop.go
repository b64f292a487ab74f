package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/zcesur/crypto-arb/internal/domain"
	"github.com/zcesur/crypto-arb/internal/resilience"
)

const (
	DefaultSettleWait   = 10 * time.Second
	DefaultPollInterval = 30 * time.Second
)

// Notification event types emitted by the loop.
const (
	EventTradeExecuted       = "trade_executed"
	EventExecutionIncomplete = "execution_incomplete"
	EventLoopStopped         = "loop_stopped"
)

// Notifier receives operator alerts. notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// LoopConfig holds everything one origin's loop needs.
type LoopConfig struct {
	Origin       domain.Venue
	Destinations []domain.Venue
	Ranker       *Ranker
	MinSpreadPct float64
	SettleWait   time.Duration
	PollInterval time.Duration
	// Notifier is optional.
	Notifier Notifier
	// Sleep waits for settlement and between polls. Nil means resilience.Sleep.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// Loop is the per-origin polling and execution loop. A Loop owns its venue
// handles; separate loops share nothing but the static configuration.
type Loop struct {
	origin       domain.Venue
	destinations []domain.Venue
	byName       map[string]domain.Venue
	ranker       *Ranker
	minSpreadPct float64
	settleWait   time.Duration
	pollInterval time.Duration
	notifier     Notifier
	sleep        func(ctx context.Context, d time.Duration) error
	logger       *slog.Logger
}

// NewLoop creates a Loop from cfg.
func NewLoop(cfg LoopConfig) *Loop {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = resilience.Sleep
	}
	byName := make(map[string]domain.Venue, len(cfg.Destinations))
	for _, d := range cfg.Destinations {
		byName[d.Name()] = d
	}
	return &Loop{
		origin:       cfg.Origin,
		destinations: cfg.Destinations,
		byName:       byName,
		ranker:       cfg.Ranker,
		minSpreadPct: cfg.MinSpreadPct,
		settleWait:   cfg.SettleWait,
		pollInterval: cfg.PollInterval,
		notifier:     cfg.Notifier,
		sleep:        sleep,
		logger: cfg.Logger.With(
			slog.String("stage", "loop"),
			slog.String("origin", cfg.Origin.Name()),
		),
	}
}

// Run polls until ctx is cancelled or a step fails. Any error from a step
// stops this loop only.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.InfoContext(ctx, "arbitrage loop started",
		slog.Int("destinations", len(l.destinations)),
		slog.Duration("poll_interval", l.pollInterval),
	)
	for {
		if err := l.Step(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				l.logger.InfoContext(ctx, "arbitrage loop cancelled")
				return nil
			}
			l.logger.ErrorContext(ctx, "arbitrage loop stopped", slog.String("error", err.Error()))
			l.notify(ctx, EventLoopStopped, "Loop stopped",
				fmt.Sprintf("origin %s: %v", l.origin.Name(), err))
			return err
		}
		if err := l.sleep(ctx, l.pollInterval); err != nil {
			l.logger.InfoContext(ctx, "arbitrage loop cancelled")
			return nil
		}
	}
}

// Step runs one poll: rank, and execute the best opportunity if it is
// profitable and wide enough.
func (l *Loop) Step(ctx context.Context) error {
	start := time.Now()
	opps, err := l.ranker.Rank(ctx, l.origin, l.destinations)
	if err != nil {
		return fmt.Errorf("loop %s: %w", l.origin.Name(), err)
	}
	l.logger.DebugContext(ctx, "poll complete", slog.Duration("elapsed", time.Since(start)))

	if len(opps) == 0 {
		l.logger.InfoContext(ctx, "no opportunities evaluated")
		return nil
	}
	best := opps[0]
	if !best.Actionable(l.minSpreadPct) {
		l.logger.DebugContext(ctx, "no profitable spread",
			slog.String("best_currency", best.Currency),
			slog.String("best_destination", best.Destination),
			slog.String("spread_pct", fmt.Sprintf("%.4f", best.SpreadPct)),
		)
		return nil
	}
	return l.execute(ctx, best)
}

// execute runs buy, sell, settle wait, balance re-check and withdraw in that
// order. A failure after the first leg leaves the position partially
// executed; it is reported and returned, never unwound.
func (l *Loop) execute(ctx context.Context, opp domain.Opportunity) error {
	dest, ok := l.byName[opp.Destination]
	if !ok {
		return fmt.Errorf("loop %s: %w: destination %q", l.origin.Name(), domain.ErrUnknownVenue, opp.Destination)
	}

	log := l.logger.With(
		slog.String("currency", opp.Currency),
		slog.String("destination", opp.Destination),
	)
	log.InfoContext(ctx, "initiating trade sequence",
		slog.Float64("size", opp.Size),
		slog.Float64("origin_rate", opp.OriginRate),
		slog.Float64("destination_rate", opp.DestinationRate),
		slog.String("estimated_pnl", fmt.Sprintf("%.8f", opp.ProfitEstimate)),
	)

	var done []string

	buyID, err := l.origin.Buy(ctx, opp.Currency, opp.Size, opp.OriginRate)
	if err != nil {
		return fmt.Errorf("loop %s: buy %s: %w", l.origin.Name(), opp.Currency, err)
	}
	done = append(done, "buy "+buyID)
	log.InfoContext(ctx, "buy placed", slog.String("order_id", buyID))

	sellID, err := dest.Sell(ctx, opp.Currency, opp.Size, opp.DestinationRate)
	if err != nil {
		return l.incomplete(ctx, opp, "sell", done, err)
	}
	done = append(done, "sell "+sellID)
	log.InfoContext(ctx, "sell placed", slog.String("order_id", sellID))

	if err := l.sleep(ctx, l.settleWait); err != nil {
		return l.incomplete(ctx, opp, "settle wait", done, err)
	}

	balances, err := l.origin.Balances(ctx, []string{opp.Currency})
	if err != nil {
		return l.incomplete(ctx, opp, "balance check", done, err)
	}
	available, ok := balances[opp.Currency]
	if !ok {
		err := fmt.Errorf("%w: %s returned no %s balance", domain.ErrInvalidState, l.origin.Name(), opp.Currency)
		return l.incomplete(ctx, opp, "balance check", done, err)
	}

	amount := math.Min(opp.Size, available)
	withdrawalID, err := l.origin.Withdraw(ctx, opp.Currency, amount, opp.Destination)
	if err != nil {
		return l.incomplete(ctx, opp, "withdraw", done, err)
	}
	log.InfoContext(ctx, "trade sequence complete",
		slog.String("withdrawal_id", withdrawalID),
		slog.Float64("withdrawn", amount),
	)

	l.notify(ctx, EventTradeExecuted, "Arbitrage executed", fmt.Sprintf(
		"%s %s -> %s size %.0f buy %.8f sell %.8f est. pnl %.8f withdrawn %.8f",
		opp.Currency, opp.Origin, opp.Destination, opp.Size,
		opp.OriginRate, opp.DestinationRate, opp.ProfitEstimate, amount,
	))
	return nil
}

func (l *Loop) incomplete(ctx context.Context, opp domain.Opportunity, stage string, done []string, err error) error {
	l.logger.ErrorContext(ctx, "trade sequence incomplete",
		slog.String("stage", stage),
		slog.String("currency", opp.Currency),
		slog.String("destination", opp.Destination),
		slog.String("completed", strings.Join(done, ", ")),
		slog.String("error", err.Error()),
	)
	l.notify(ctx, EventExecutionIncomplete, "Arbitrage incomplete", fmt.Sprintf(
		"%s %s -> %s failed at %s after [%s]: %v",
		opp.Currency, opp.Origin, opp.Destination, stage, strings.Join(done, ", "), err,
	))
	return fmt.Errorf("loop %s: %s %s: %w", l.origin.Name(), stage, opp.Currency, err)
}

func (l *Loop) notify(ctx context.Context, event, title, message string) {
	if l.notifier == nil {
		return
	}
	// Alerts must still go out when the loop is stopping on cancellation.
	ctx = context.WithoutCancel(ctx)
	if err := l.notifier.Notify(ctx, event, title, message); err != nil {
		l.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
