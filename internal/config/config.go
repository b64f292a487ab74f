// Package config defines the top-level configuration for the arbitrage bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CRYPTOARB_* environment variables.
type Config struct {
	Venues    []VenueConfig   `toml:"venue"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Redis     RedisConfig     `toml:"redis"`
	Notify    NotifyConfig    `toml:"notify"`
	Log       LogConfig       `toml:"log"`
	// DepositAddresses is the YAML file of deposit addresses per venue and
	// currency.
	DepositAddresses string `toml:"deposit_addresses"`
	// DryRun routes every order and withdrawal to a simulated account while
	// still reading live quotes.
	DryRun   bool   `toml:"dry_run"`
	LogLevel string `toml:"log_level"`
}

// VenueConfig describes one exchange account.
type VenueConfig struct {
	// Name is how the venue appears in logs, fees and deposit addresses.
	Name string `toml:"name"`
	// Kind selects the binding: bittrex, kraken or binance.
	Kind              string   `toml:"kind"`
	Enabled           bool     `toml:"enabled"`
	BaseURL           string   `toml:"base_url"`
	Timeout           duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`

	// Credentials. APIKey/APISecret take precedence over the key files.
	APIKey           string `toml:"api_key"`
	APISecret        string `toml:"api_secret"`
	KeyPath          string `toml:"key_path"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`

	// PaperBalances seeds the simulated account in dry-run mode.
	PaperBalances map[string]float64 `toml:"paper_balances"`
}

// ArbitrageConfig holds the trading parameters shared by every loop.
type ArbitrageConfig struct {
	QuoteAsset string   `toml:"quote_asset"`
	Currencies []string `toml:"currencies"`
	// Origins lists the venues that run a loop. Empty means every enabled
	// venue.
	Origins          []string                      `toml:"origins"`
	MinimumOrderSize map[string]float64            `toml:"minimum_order_size"`
	Fees             map[string]map[string]float64 `toml:"fees"`
	CommissionRate   float64                       `toml:"commission_rate"`
	MinSpreadPct     float64                       `toml:"min_spread_pct"`
	SettleWait       duration                      `toml:"settle_wait"`
	PollInterval     duration                      `toml:"poll_interval"`
	RetryAttempts    int                           `toml:"retry_attempts"`
	RetryDelay       duration                      `toml:"retry_delay"`
	// LeaseTTL bounds how long a crashed process keeps its origin locked.
	// Only used when Redis is configured.
	LeaseTTL duration `toml:"lease_ttl"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables the
// shared rate limiter and the origin lease.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// RateLimit is the number of requests per RateWindow shared by every
	// process using the same venue account.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// LogConfig controls the per-component log files.
type LogConfig struct {
	// Dir holds one file per component. Empty logs to stderr only.
	Dir        string `toml:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

const defaultVenueTimeout = 30 * time.Second

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Venues: []VenueConfig{
			{
				Name:              "Bittrex",
				Kind:              "bittrex",
				Enabled:           true,
				Timeout:           duration{defaultVenueTimeout},
				RequestsPerSecond: 1,
				Burst:             2,
				KeyPath:           "key/bittrex.json",
			},
			{
				Name:              "Kraken",
				Kind:              "kraken",
				Enabled:           true,
				Timeout:           duration{defaultVenueTimeout},
				RequestsPerSecond: 0.5,
				Burst:             3,
				KeyPath:           "key/kraken.json",
			},
			{
				Name:              "Binance",
				Kind:              "binance",
				Enabled:           false,
				Timeout:           duration{defaultVenueTimeout},
				RequestsPerSecond: 10,
				Burst:             10,
				KeyPath:           "key/binance.json",
			},
		},
		Arbitrage: ArbitrageConfig{
			QuoteAsset:       "BTC",
			Currencies:       []string{"XRP", "XLM"},
			MinimumOrderSize: map[string]float64{"XRP": 30, "XLM": 300},
			Fees: map[string]map[string]float64{
				"Bittrex": {"XLM": 0.01, "XRP": 1},
				"Kraken":  {"XLM": 0.01, "XRP": 0.02},
				"Binance": {"XLM": 0.01, "XRP": 0.25},
			},
			CommissionRate: 0.0020,
			MinSpreadPct:   0.01,
			SettleWait:     duration{10 * time.Second},
			PollInterval:   duration{30 * time.Second},
			RetryAttempts:  5,
			RetryDelay:     duration{5 * time.Second},
			LeaseTTL:       duration{time.Minute},
		},
		Redis: RedisConfig{
			PoolSize:   10,
			MaxRetries: 3,
			RateLimit:  60,
			RateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"trade_executed", "execution_incomplete", "loop_stopped"},
		},
		Log: LogConfig{
			Dir:        "logs",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		DepositAddresses: "deposit_addresses.yaml",
		LogLevel:         "info",
	}
}

// EnabledVenues returns the enabled venues in configuration order.
func (c *Config) EnabledVenues() []VenueConfig {
	out := make([]VenueConfig, 0, len(c.Venues))
	for _, v := range c.Venues {
		if v.Enabled {
			out = append(out, v)
		}
	}
	return out
}

// Venue returns the venue named name, enabled or not.
func (c *Config) Venue(name string) (VenueConfig, bool) {
	for _, v := range c.Venues {
		if strings.EqualFold(v.Name, name) {
			return v, true
		}
	}
	return VenueConfig{}, false
}

// OriginNames returns the venues that run a loop.
func (c *Config) OriginNames() []string {
	if len(c.Arbitrage.Origins) > 0 {
		return c.Arbitrage.Origins
	}
	var out []string
	for _, v := range c.EnabledVenues() {
		out = append(out, v.Name)
	}
	return out
}

// TimeoutDuration returns the venue's per-request timeout.
func (v VenueConfig) TimeoutDuration() time.Duration { return v.Timeout.Duration }

// HasCredentials reports whether any credential source is configured.
func (v VenueConfig) HasCredentials() bool {
	return (v.APIKey != "" && v.APISecret != "") || v.KeyPath != "" || v.EncryptedKeyPath != ""
}

// validKinds enumerates the accepted values for VenueConfig.Kind.
var validKinds = map[string]bool{
	"bittrex": true,
	"kraken":  true,
	"binance": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Venues
	enabled := map[string]bool{}
	seen := map[string]bool{}
	for i, v := range c.Venues {
		if v.Name == "" {
			errs = append(errs, fmt.Sprintf("venue[%d]: name must not be empty", i))
			continue
		}
		if seen[v.Name] {
			errs = append(errs, fmt.Sprintf("venue %s: duplicate name", v.Name))
		}
		seen[v.Name] = true
		if !validKinds[strings.ToLower(v.Kind)] {
			errs = append(errs, fmt.Sprintf("venue %s: unknown kind %q (valid: bittrex, kraken, binance)", v.Name, v.Kind))
		}
		if !v.Enabled {
			continue
		}
		enabled[v.Name] = true
		if v.RequestsPerSecond < 0 {
			errs = append(errs, fmt.Sprintf("venue %s: requests_per_second must be >= 0", v.Name))
		}
		if !c.DryRun {
			if !v.HasCredentials() {
				errs = append(errs, fmt.Sprintf("venue %s: one of api_key/api_secret, key_path or encrypted_key_path must be set", v.Name))
			}
			if v.EncryptedKeyPath != "" && v.KeyPassword == "" {
				errs = append(errs, fmt.Sprintf("venue %s: key_password is required when encrypted_key_path is set", v.Name))
			}
		}
	}
	if len(enabled) < 2 {
		errs = append(errs, fmt.Sprintf("at least two venues must be enabled, got %d", len(enabled)))
	}

	// Arbitrage
	a := c.Arbitrage
	if a.QuoteAsset == "" {
		errs = append(errs, "arbitrage: quote_asset must not be empty")
	}
	if len(a.Currencies) == 0 {
		errs = append(errs, "arbitrage: currencies must not be empty")
	}
	for _, cur := range a.Currencies {
		if _, ok := a.MinimumOrderSize[cur]; !ok {
			errs = append(errs, fmt.Sprintf("arbitrage: minimum_order_size missing for %s", cur))
		}
		for _, v := range c.EnabledVenues() {
			if _, ok := a.Fees[v.Name][cur]; !ok {
				errs = append(errs, fmt.Sprintf("arbitrage: fees missing for %s on %s", cur, v.Name))
			}
		}
	}
	for _, o := range a.Origins {
		if !enabled[o] {
			errs = append(errs, fmt.Sprintf("arbitrage: origin %q is not an enabled venue", o))
		}
	}
	if a.CommissionRate < 0 || a.CommissionRate >= 1 {
		errs = append(errs, "arbitrage: commission_rate must be in [0, 1)")
	}
	if a.MinSpreadPct < 0 {
		errs = append(errs, "arbitrage: min_spread_pct must be >= 0")
	}
	if a.SettleWait.Duration < 0 {
		errs = append(errs, "arbitrage: settle_wait must be >= 0")
	}
	if a.PollInterval.Duration <= 0 {
		errs = append(errs, "arbitrage: poll_interval must be > 0")
	}
	if a.RetryAttempts < 1 {
		errs = append(errs, "arbitrage: retry_attempts must be >= 1")
	}
	if a.RetryDelay.Duration < 0 {
		errs = append(errs, "arbitrage: retry_delay must be >= 0")
	}

	// Deposits
	if c.DepositAddresses == "" {
		errs = append(errs, "deposit_addresses must not be empty")
	}

	// Redis
	if c.Redis.Addr != "" {
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.RateLimit < 0 {
			errs = append(errs, "redis: rate_limit must be >= 0")
		}
		if c.Redis.RateLimit > 0 && c.Redis.RateWindow.Duration <= 0 {
			errs = append(errs, "redis: rate_window must be > 0 when rate_limit is set")
		}
		if a.LeaseTTL.Duration <= 0 {
			errs = append(errs, "arbitrage: lease_ttl must be > 0 when redis is configured")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
