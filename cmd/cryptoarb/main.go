// Command cryptoarb runs cross-exchange arbitrage between crypto venues. It
// loads configuration, validates it, wires dependencies, sets up signal
// handling, and starts one arbitrage loop per origin venue. The remaining
// subcommands inspect accounts and orders on a single venue.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/zcesur/crypto-arb/internal/app"
	"github.com/zcesur/crypto-arb/internal/config"
	"github.com/zcesur/crypto-arb/internal/crypto"
	"github.com/zcesur/crypto-arb/internal/logging"
)

func main() {
	cliApp := &cli.App{
		Name:  "cryptoarb",
		Usage: "cross-exchange arbitrage for crypto currencies",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to configuration file",
				Value:   "config.toml",
				EnvVars: []string{"CRYPTOARB_CONFIG"},
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "simulate orders and withdrawals against live prices",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run one arbitrage loop per origin venue",
				Action: runCommand,
			},
			{
				Name:  "balances",
				Usage: "print balances on every enabled venue",
				Action: withApp(func(ctx context.Context, c *cli.Context, a *app.App) error {
					return a.Balances(ctx, c.App.Writer)
				}),
			},
			{
				Name:      "markets",
				Usage:     "list the pairs a venue trades against the quote asset",
				ArgsUsage: "<venue>",
				Action: withApp(func(ctx context.Context, c *cli.Context, a *app.App) error {
					if c.NArg() != 1 {
						return cli.Exit("usage: markets <venue>", 2)
					}
					return a.Markets(ctx, c.Args().First(), c.App.Writer)
				}),
			},
			{
				Name:      "order",
				Usage:     "print the status of an order",
				ArgsUsage: "<venue> <order-id>",
				Action: withApp(func(ctx context.Context, c *cli.Context, a *app.App) error {
					if c.NArg() != 2 {
						return cli.Exit("usage: order <venue> <order-id>", 2)
					}
					return a.Order(ctx, c.Args().Get(0), c.Args().Get(1), c.App.Writer)
				}),
			},
			{
				Name:      "cancel",
				Usage:     "cancel an open order",
				ArgsUsage: "<venue> <order-id>",
				Action: withApp(func(ctx context.Context, c *cli.Context, a *app.App) error {
					if c.NArg() != 2 {
						return cli.Exit("usage: cancel <venue> <order-id>", 2)
					}
					return a.Cancel(ctx, c.Args().Get(0), c.Args().Get(1), c.App.Writer)
				}),
			},
			{
				Name:  "encrypt-key",
				Usage: "encrypt a venue API key pair with a password",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Required: true, EnvVars: []string{"CRYPTOARB_API_KEY"}},
					&cli.StringFlag{Name: "secret", Required: true, EnvVars: []string{"CRYPTOARB_API_SECRET"}},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"CRYPTOARB_KEY_PASSWORD"}},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Required: true, Usage: "output file"},
				},
				Action: encryptKeyCommand,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration named by the global
// flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if c.Bool("dry-run") {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogs(cfg *config.Config) *logging.Factory {
	return logging.New(logging.Config{
		Dir:        cfg.Log.Dir,
		Level:      logging.ParseLevel(cfg.LogLevel),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
}

func runCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logs := newLogs(cfg)
	defer logs.Close()
	logger := logs.Logger("main")
	slog.SetDefault(logger)

	logger.Info("cryptoarb starting",
		slog.String("config", c.String("config")),
		slog.Bool("dry_run", cfg.DryRun),
	)

	application := app.New(cfg, logs)
	defer application.Close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if app.IsShutdown(err) {
			logger.Info("application shut down gracefully")
			return nil
		}
		logger.Error("application exited with error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("cryptoarb stopped")
	return nil
}

// withApp adapts an operator command to the CLI: it loads the
// configuration, builds the application and releases it afterwards.
func withApp(fn func(context.Context, *cli.Context, *app.App) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		logs := newLogs(cfg)
		defer logs.Close()

		a := app.New(cfg, logs)
		defer a.Close()

		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return fn(ctx, c, a)
	}
}

func encryptKeyCommand(c *cli.Context) error {
	blob, err := crypto.EncryptKey(crypto.HMACAuth{
		Key:    c.String("key"),
		Secret: c.String("secret"),
	}, c.String("password"))
	if err != nil {
		return err
	}
	out := c.String("out")
	if _, err := os.Stat(out); err == nil {
		return fmt.Errorf("%s already exists", out)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.WriteFile(out, blob, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", out)
	return nil
}
