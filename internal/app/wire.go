package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/zcesur/crypto-arb/internal/arbitrage"
	"github.com/zcesur/crypto-arb/internal/cache/redis"
	"github.com/zcesur/crypto-arb/internal/config"
	"github.com/zcesur/crypto-arb/internal/crypto"
	"github.com/zcesur/crypto-arb/internal/domain"
	"github.com/zcesur/crypto-arb/internal/logging"
	"github.com/zcesur/crypto-arb/internal/notify"
	"github.com/zcesur/crypto-arb/internal/platform/binance"
	"github.com/zcesur/crypto-arb/internal/platform/bittrex"
	"github.com/zcesur/crypto-arb/internal/platform/kraken"
	"github.com/zcesur/crypto-arb/internal/platform/paper"
	"github.com/zcesur/crypto-arb/internal/platform/rest"
	"github.com/zcesur/crypto-arb/internal/resilience"
)

// Dependencies bundles what every loop and command shares: static trading
// data, the optional Redis services and the notifier. Venue handles are not
// shared; VenueSet builds a fresh set per caller.
type Dependencies struct {
	Config   *config.Config
	Deposits domain.DepositBook
	Params   arbitrage.CalcParams
	Notifier *notify.Notifier

	// Limiter and Locks are nil when Redis is not configured.
	Limiter domain.RateLimiter
	Locks   *redis.LockManager

	logs *logging.Factory
	// shared holds what every binding of one venue must have in common,
	// keyed by venue name. Built once in Wire and read-only afterwards.
	shared map[string]venueShared
	// papers holds one simulated account per venue in dry-run mode. They are
	// shared by every loop, like the real accounts they stand in for.
	papers map[string]*paper.Venue
}

// venueShared is the per-venue state that outlives any one handle: the
// request budget and the nonce counter for the venue's API key.
type venueShared struct {
	limiter *rate.Limiter
	nonce   *crypto.Nonce
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logs *logging.Factory) (*Dependencies, func(), error) {
	logger := logs.Logger("orchestrator")

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Config: cfg,
		Params: CalcParams(cfg),
		logs:   logs,
	}

	// --- Deposit addresses ---
	book, err := config.LoadDeposits(cfg.DepositAddresses)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	deps.Deposits = book

	// --- Redis (optional) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		if cfg.Redis.RateLimit > 0 {
			deps.Limiter = redis.NewRateLimiter(redisClient, cfg.Redis.RateLimit, cfg.Redis.RateWindow.Duration)
		}
		deps.Locks = redis.NewLockManager(redisClient, logs.Logger("lease"))
		logger.InfoContext(ctx, "redis connected", slog.String("addr", cfg.Redis.Addr))
	}

	// --- Per-venue budgets and nonces ---
	deps.shared = make(map[string]venueShared, len(cfg.Venues))
	for _, vc := range cfg.Venues {
		deps.shared[vc.Name] = venueShared{
			limiter: rest.NewLimiter(vc.RequestsPerSecond, vc.Burst),
			nonce:   &crypto.Nonce{},
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		tg, err := notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			// Alerts are best effort; trading goes on without them.
			logger.WarnContext(ctx, "telegram disabled", slog.String("error", err.Error()))
		} else {
			senders = append(senders, tg)
		}
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	prefix := ""
	if cfg.DryRun {
		prefix = "[dry-run]"
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, prefix, logger)

	// --- Paper accounts ---
	if cfg.DryRun {
		network := paper.NewNetwork()
		deps.papers = make(map[string]*paper.Venue)
		for _, vc := range cfg.EnabledVenues() {
			source, err := deps.binding(vc)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: %w", err)
			}
			deps.papers[vc.Name] = paper.New(paper.Config{
				Name:       vc.Name,
				QuoteAsset: cfg.Arbitrage.QuoteAsset,
				Source:     source,
				Balances:   vc.PaperBalances,
				Network:    network,
				Logger:     logs.Logger(vc.Name),
			})
		}
		logger.InfoContext(ctx, "dry run: orders and withdrawals are simulated",
			slog.Int("venues", len(deps.papers)))
	}

	return deps, cleanup, nil
}

// CalcParams extracts the calculator's static inputs from cfg.
func CalcParams(cfg *config.Config) arbitrage.CalcParams {
	return arbitrage.CalcParams{
		QuoteAsset:       cfg.Arbitrage.QuoteAsset,
		Fees:             cfg.Arbitrage.Fees,
		MinimumOrderSize: cfg.Arbitrage.MinimumOrderSize,
		CommissionRate:   cfg.Arbitrage.CommissionRate,
		MinSpreadPct:     cfg.Arbitrage.MinSpreadPct,
	}
}

// Venue returns a retrying handle on the named venue. In dry-run mode the
// handle trades against the venue's simulated account.
func (d *Dependencies) Venue(name string) (domain.Venue, error) {
	vc, ok := d.Config.Venue(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownVenue, name)
	}
	if d.papers != nil {
		p, ok := d.papers[vc.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s is not enabled", domain.ErrUnknownVenue, name)
		}
		return resilience.Wrap(p, d.policy(vc.Name)), nil
	}
	b, err := d.binding(vc)
	if err != nil {
		return nil, err
	}
	return resilience.Wrap(b, d.policy(vc.Name)), nil
}

// VenueSet returns fresh handles on origin and every other enabled venue.
func (d *Dependencies) VenueSet(origin string) (domain.Venue, []domain.Venue, error) {
	o, err := d.Venue(origin)
	if err != nil {
		return nil, nil, err
	}
	var dests []domain.Venue
	for _, vc := range d.Config.EnabledVenues() {
		if strings.EqualFold(vc.Name, o.Name()) {
			continue
		}
		v, err := d.Venue(vc.Name)
		if err != nil {
			return nil, nil, err
		}
		dests = append(dests, v)
	}
	return o, dests, nil
}

// policy is the retry policy for one venue, logging to the venue's stream.
func (d *Dependencies) policy(venue string) resilience.Policy {
	p := resilience.DefaultPolicy(d.logs.Logger(venue))
	p.Attempts = d.Config.Arbitrage.RetryAttempts
	p.Delay = d.Config.Arbitrage.RetryDelay.Duration
	return p
}

// binding builds the raw REST binding for vc.
func (d *Dependencies) binding(vc config.VenueConfig) (domain.Venue, error) {
	var auth crypto.HMACAuth
	if vc.HasCredentials() {
		a, err := vc.Credentials()
		if err != nil {
			return nil, err
		}
		auth = a
	} else if !d.Config.DryRun {
		return nil, fmt.Errorf("venue %s: no credentials configured", vc.Name)
	}

	shared := d.shared[vc.Name]
	transport := rest.Config{
		BaseURL:  vc.BaseURL,
		Timeout:  vc.TimeoutDuration(),
		Limiter:  shared.limiter,
		Shared:   d.Limiter,
		LimitKey: strings.ToLower(vc.Name),
	}
	quote := d.Config.Arbitrage.QuoteAsset

	switch strings.ToLower(vc.Kind) {
	case "bittrex":
		return bittrex.New(bittrex.Config{
			Name: vc.Name, QuoteAsset: quote, Auth: auth, Deposits: d.Deposits, Transport: transport,
			Nonce: shared.nonce,
		}), nil
	case "kraken":
		return kraken.New(kraken.Config{
			Name: vc.Name, QuoteAsset: quote, Auth: auth, Deposits: d.Deposits, Transport: transport,
			Nonce: shared.nonce,
		}), nil
	case "binance":
		return binance.New(binance.Config{
			Name: vc.Name, QuoteAsset: quote, Auth: auth, Deposits: d.Deposits, Transport: transport,
		}), nil
	default:
		return nil, fmt.Errorf("%w: kind %q", domain.ErrUnknownVenue, vc.Kind)
	}
}
