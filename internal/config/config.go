package config // package config loads application configuration from environment variables

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the core runtime configuration. Each field maps to one
// environment variable; optional backing services (Redis, RabbitMQ, MongoDB,
// SMTP) have their own loaders in this package.
type Config struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	Port        string `env:"APP_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	DBUser         string `env:"DB_USER,required,notEmpty"`
	DBPass         string `env:"DB_PASS"`
	DBHost         string `env:"DB_HOST,required,notEmpty"`
	DBPort         string `env:"DB_PORT" envDefault:"3306"`
	DBName         string `env:"DB_NAME,required,notEmpty"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"migrations"`

	JWTSecret      string        `env:"JWT_SECRET,required,notEmpty"`
	AccessTTLMin   int           `env:"ACCESS_TOKEN_TTL_MIN" envDefault:"60"`
	RefreshTTLDays int           `env:"REFRESH_TOKEN_TTL_DAYS" envDefault:"7"`
	BcryptCost     int           `env:"BCRYPT_COST" envDefault:"12"`
	ResetTTL       time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"1h"`

	MaxLoginAttempts int           `env:"MAX_LOGIN_ATTEMPTS" envDefault:"5"`
	LockoutDuration  time.Duration `env:"LOCKOUT_DURATION" envDefault:"15m"`
	PasswordHistory  int           `env:"PASSWORD_HISTORY" envDefault:"5"`

	UploadDir      string `env:"UPLOAD_DIR" envDefault:"uploads"`
	UploadMaxBytes int64  `env:"UPLOAD_MAX_BYTES" envDefault:"20971520"`

	ReviewDueDays       int           `env:"REVIEW_DUE_DAYS" envDefault:"21"`
	ReviewSweepInterval time.Duration `env:"REVIEW_SWEEP_INTERVAL" envDefault:"1h"`

	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load parses the environment into a Config. A missing required variable
// is returned as an error so main can log it and exit.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.BcryptCost < 4 {
		cfg.BcryptCost = 4
	}
	if cfg.PasswordHistory < 0 {
		cfg.PasswordHistory = 0
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs in a local development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev"
}
