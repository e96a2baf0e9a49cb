package config

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the shared Redis instance backing the token
// blacklist, rate limiters and response cache.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST"`
	Port     string `env:"REDIS_PORT"`
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	TLS      bool   `env:"REDIS_TLS"`
}

func LoadRedisConfig() RedisConfig {
	var cfg RedisConfig
	_ = env.Parse(&cfg)
	if cfg.Host != "" && cfg.Port != "" {
		cfg.Addr = cfg.Host + ":" + cfg.Port
	}
	return cfg
}

// NewRedisClient connects using cfg and pings with a short timeout. It
// returns nil when the server is unreachable; callers degrade by
// disabling the features that need Redis.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
