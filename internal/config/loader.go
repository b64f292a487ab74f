package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/zcesur/crypto-arb/internal/crypto"
	"github.com/zcesur/crypto-arb/internal/domain"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CRYPTOARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	// The decoder reuses existing slice elements, so a [[venue]] list in the
	// file would be merged field by field into the default venues. Decode
	// into an empty list and fall back to the defaults when none are given.
	defaultVenues := cfg.Venues
	cfg.Venues = nil
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Venues) == 0 {
		cfg.Venues = defaultVenues
	}
	for i := range cfg.Venues {
		if cfg.Venues[i].Timeout.Duration == 0 {
			cfg.Venues[i].Timeout = duration{defaultVenueTimeout}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// LoadDeposits reads the deposit-address YAML file:
//
//	Bittrex:
//	  XRP: {address: rXXXX, memo: "123"}
//	Kraken:
//	  XRP: {address: rYYYY, withdrawal_key: bittrex-xrp}
func LoadDeposits(path string) (domain.DepositBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading deposit addresses: %w", err)
	}
	var book domain.DepositBook
	if err := yaml.Unmarshal(data, &book); err != nil {
		return nil, fmt.Errorf("config: parsing deposit addresses %s: %w", path, err)
	}
	if book == nil {
		book = domain.DepositBook{}
	}
	return book, nil
}

// Credentials resolves the venue's API key pair. Inline api_key/api_secret
// win over the key files.
func (v VenueConfig) Credentials() (crypto.HMACAuth, error) {
	if v.APIKey != "" && v.APISecret != "" {
		return crypto.HMACAuth{Key: v.APIKey, Secret: v.APISecret}, nil
	}
	auth, err := crypto.LoadKey(crypto.KeyConfig{
		KeyPath:          v.KeyPath,
		EncryptedKeyPath: v.EncryptedKeyPath,
		KeyPassword:      v.KeyPassword,
	})
	if err != nil {
		return crypto.HMACAuth{}, fmt.Errorf("config: venue %s credentials: %w", v.Name, err)
	}
	return auth, nil
}

// applyEnvOverrides reads well-known CRYPTOARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file. Per-venue variables use the upper-cased venue name, e.g.
// CRYPTOARB_KRAKEN_KEY_PASSWORD.
func applyEnvOverrides(cfg *Config) {
	// ── Venues ──
	for i := range cfg.Venues {
		v := &cfg.Venues[i]
		prefix := "CRYPTOARB_" + envName(v.Name) + "_"
		setBool(&v.Enabled, prefix+"ENABLED")
		setStr(&v.BaseURL, prefix+"BASE_URL")
		setStr(&v.APIKey, prefix+"API_KEY")
		setStr(&v.APISecret, prefix+"API_SECRET")
		setStr(&v.KeyPath, prefix+"KEY_PATH")
		setStr(&v.EncryptedKeyPath, prefix+"ENCRYPTED_KEY_PATH")
		setStr(&v.KeyPassword, prefix+"KEY_PASSWORD")
		setFloat64(&v.RequestsPerSecond, prefix+"REQUESTS_PER_SECOND")
	}

	// ── Arbitrage ──
	setStr(&cfg.Arbitrage.QuoteAsset, "CRYPTOARB_ARBITRAGE_QUOTE_ASSET")
	setStringSlice(&cfg.Arbitrage.Currencies, "CRYPTOARB_ARBITRAGE_CURRENCIES")
	setStringSlice(&cfg.Arbitrage.Origins, "CRYPTOARB_ARBITRAGE_ORIGINS")
	setFloat64(&cfg.Arbitrage.CommissionRate, "CRYPTOARB_ARBITRAGE_COMMISSION_RATE")
	setFloat64(&cfg.Arbitrage.MinSpreadPct, "CRYPTOARB_ARBITRAGE_MIN_SPREAD_PCT")
	setDuration(&cfg.Arbitrage.SettleWait, "CRYPTOARB_ARBITRAGE_SETTLE_WAIT")
	setDuration(&cfg.Arbitrage.PollInterval, "CRYPTOARB_ARBITRAGE_POLL_INTERVAL")
	setInt(&cfg.Arbitrage.RetryAttempts, "CRYPTOARB_ARBITRAGE_RETRY_ATTEMPTS")
	setDuration(&cfg.Arbitrage.RetryDelay, "CRYPTOARB_ARBITRAGE_RETRY_DELAY")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CRYPTOARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CRYPTOARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CRYPTOARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CRYPTOARB_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "CRYPTOARB_REDIS_TLS_ENABLED")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CRYPTOARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CRYPTOARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CRYPTOARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CRYPTOARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Log.Dir, "CRYPTOARB_LOG_DIR")
	setStr(&cfg.DepositAddresses, "CRYPTOARB_DEPOSIT_ADDRESSES")
	setBool(&cfg.DryRun, "CRYPTOARB_DRY_RUN")
	setStr(&cfg.LogLevel, "CRYPTOARB_LOG_LEVEL")
}

func envName(venue string) string {
	return strings.ToUpper(strings.ReplaceAll(venue, "-", "_"))
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
