package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Venues
	out.Venues = make([]VenueConfig, len(cfg.Venues))
	for i, v := range cfg.Venues {
		redact(&v.APIKey)
		redact(&v.APISecret)
		redact(&v.KeyPassword)
		if v.PaperBalances != nil {
			v.PaperBalances = copyFloats(v.PaperBalances)
		}
		out.Venues[i] = v
	}

	// Redis
	redact(&out.Redis.Password)

	// Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	out.Notify.Events = copyStrings(cfg.Notify.Events)
	out.Arbitrage.Currencies = copyStrings(cfg.Arbitrage.Currencies)
	out.Arbitrage.Origins = copyStrings(cfg.Arbitrage.Origins)
	if cfg.Arbitrage.MinimumOrderSize != nil {
		out.Arbitrage.MinimumOrderSize = copyFloats(cfg.Arbitrage.MinimumOrderSize)
	}
	if cfg.Arbitrage.Fees != nil {
		out.Arbitrage.Fees = make(map[string]map[string]float64, len(cfg.Arbitrage.Fees))
		for k, v := range cfg.Arbitrage.Fees {
			out.Arbitrage.Fees[k] = copyFloats(v)
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func copyFloats(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
