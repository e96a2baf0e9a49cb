package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type RateLimitConfig struct {
	Enabled        bool          `env:"ENABLED"`
	Capacity       int           `env:"CAPACITY"`
	RefillTokens   int           `env:"REFILL_TOKENS"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL"`
	TTL            time.Duration `env:"TTL"`
	KeyStrategy    string        `env:"KEY_STRATEGY"`
	Prefix         string        `env:"PREFIX"`
	Debug          bool          `env:"DEBUG"`
}

// LoadRateLimitConfig reads the general API limiter from RATE_LIMIT_*.
func LoadRateLimitConfig() RateLimitConfig {
	return loadLimiter("RATE_LIMIT_", RateLimitConfig{
		Enabled:        true,
		Capacity:       100,
		RefillTokens:   100,
		RefillInterval: 15 * time.Minute,
		TTL:            30 * time.Minute,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	})
}

// LoadAuthRateLimitConfig reads the stricter limiter used on login and
// registration from AUTH_RATE_LIMIT_*. Five attempts per fifteen minutes
// per client address by default.
func LoadAuthRateLimitConfig() RateLimitConfig {
	return loadLimiter("AUTH_RATE_LIMIT_", RateLimitConfig{
		Enabled:        true,
		Capacity:       5,
		RefillTokens:   5,
		RefillInterval: 15 * time.Minute,
		TTL:            30 * time.Minute,
		KeyStrategy:    "ip_route",
		Prefix:         "rl-auth",
	})
}

func loadLimiter(prefix string, def RateLimitConfig) RateLimitConfig {
	cfg := def
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix}); err != nil {
		cfg = def
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	if minTTL := 2 * cfg.RefillInterval; cfg.TTL < minTTL {
		cfg.TTL = minTTL
	}
	return cfg
}
