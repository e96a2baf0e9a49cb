package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// CacheConfig defines settings for the public response cache. When Enabled
// is false or no Redis client is configured, caching is disabled.
type CacheConfig struct {
	Enabled      bool          `env:"CACHE_ENABLED" envDefault:"true"`
	MethodList   []string      `env:"CACHE_METHODS" envDefault:"GET" envSeparator:","`
	TTL          time.Duration `env:"CACHE_TTL" envDefault:"30s"`
	KeyStrategy  string        `env:"CACHE_KEY_STRATEGY" envDefault:"route_query"`
	Prefix       string        `env:"CACHE_PREFIX" envDefault:"cache"`
	MaxBodyBytes int           `env:"CACHE_MAX_BODY_BYTES" envDefault:"1048576"`

	Methods map[string]bool
}

// LoadCacheConfig builds a CacheConfig. Methods are upper-cased.
func LoadCacheConfig() CacheConfig {
	var cfg CacheConfig
	if err := env.Parse(&cfg); err != nil {
		cfg = CacheConfig{Enabled: false}
	}
	cfg.Methods = map[string]bool{}
	for _, m := range cfg.MethodList {
		m = strings.TrimSpace(strings.ToUpper(m))
		if m != "" {
			cfg.Methods[m] = true
		}
	}
	return cfg
}
