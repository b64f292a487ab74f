// Package app provides the top-level application lifecycle for the arbitrage
// bot. It wires dependencies from the configuration, runs one arbitrage loop
// per origin venue and backs the operator commands of the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/zcesur/crypto-arb/internal/arbitrage"
	"github.com/zcesur/crypto-arb/internal/cache/redis"
	"github.com/zcesur/crypto-arb/internal/config"
	"github.com/zcesur/crypto-arb/internal/logging"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logs    *logging.Factory
	logger  *slog.Logger
	deps    *Dependencies
	closers []func()
}

// New creates a new App from the given configuration and log factory.
func New(cfg *config.Config, logs *logging.Factory) *App {
	return &App{
		cfg:    cfg,
		logs:   logs,
		logger: logs.Logger("orchestrator"),
	}
}

// Open wires the dependencies once; later calls return the same set.
func (a *App) Open(ctx context.Context) (*Dependencies, error) {
	if a.deps != nil {
		return a.deps, nil
	}
	deps, cleanup, err := Wire(ctx, a.cfg, a.logs)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	a.deps = deps
	return deps, nil
}

// Run starts one loop per origin and blocks until all of them have
// returned. Loops do not share a cancellation: one failing leaves the
// others running. The first loop error is returned.
func (a *App) Run(ctx context.Context) error {
	deps, err := a.Open(ctx)
	if err != nil {
		return err
	}
	origins := a.cfg.OriginNames()
	a.logger.InfoContext(ctx, "starting arbitrage",
		slog.Any("origins", origins),
		slog.Any("currencies", a.cfg.Arbitrage.Currencies),
		slog.Bool("dry_run", a.cfg.DryRun),
	)

	var g errgroup.Group
	for _, origin := range origins {
		g.Go(func() error {
			err := a.runOrigin(ctx, deps, origin)
			if err != nil {
				a.logger.ErrorContext(ctx, "origin loop exited",
					slog.String("origin", origin),
					slog.String("error", err.Error()),
				)
			}
			return err
		})
	}
	return g.Wait()
}

func (a *App) runOrigin(ctx context.Context, deps *Dependencies, origin string) error {
	if deps.Locks != nil {
		leaseCtx, release, err := deps.Locks.Hold(ctx, "origin:"+origin, a.cfg.Arbitrage.LeaseTTL.Duration)
		if err != nil {
			return fmt.Errorf("app: lease %s: %w", origin, err)
		}
		defer release()
		ctx = leaseCtx
	}

	src, dests, err := deps.VenueSet(origin)
	if err != nil {
		return fmt.Errorf("app: venues for %s: %w", origin, err)
	}
	if len(dests) == 0 {
		return fmt.Errorf("app: origin %s has no destinations", origin)
	}

	logger := a.logs.Logger("orchestrator")
	loop := arbitrage.NewLoop(arbitrage.LoopConfig{
		Origin:       src,
		Destinations: dests,
		Ranker:       arbitrage.NewRanker(a.cfg.Arbitrage.Currencies, deps.Params, logger),
		MinSpreadPct: a.cfg.Arbitrage.MinSpreadPct,
		SettleWait:   a.cfg.Arbitrage.SettleWait.Duration,
		PollInterval: a.cfg.Arbitrage.PollInterval.Duration,
		Notifier:     deps.Notifier,
		Logger:       logger,
	})
	err = loop.Run(ctx)
	if cause := context.Cause(ctx); errors.Is(cause, redis.ErrLeaseLost) {
		return cause
	}
	return err
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	a.deps = nil
}

// IsShutdown reports whether err only reflects the context being
// cancelled.
func IsShutdown(err error) bool {
	return errors.Is(err, context.Canceled)
}
