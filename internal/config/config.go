package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config aggregates all runtime settings.
type Config struct {
	App      AppConfig      `envPrefix:"AUTH_"`
	HTTP     HTTPConfig     `envPrefix:"AUTH_HTTP_"`
	Database DatabaseConfig `envPrefix:"AUTH_DB_"`
	Redis    RedisConfig    `envPrefix:"AUTH_REDIS_"`
	Token    TokenConfig    `envPrefix:"AUTH_TOKEN_"`
	SSO      SSOConfig      `envPrefix:"AUTH_SSO_"`
	Security SecurityConfig `envPrefix:"AUTH_SECURITY_"`
	Webhook  WebhookConfig  `envPrefix:"AUTH_WEBHOOK_"`
	Reaper   ReaperConfig   `envPrefix:"AUTH_REAPER_"`
}

type AppConfig struct {
	Environment string `env:"ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"identity-service"`
}

type HTTPConfig struct {
	Host              string        `env:"HOST" envDefault:"0.0.0.0"`
	Port              int           `env:"PORT" envDefault:"4201"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"25s"`
}

type DatabaseConfig struct {
	URL           string        `env:"URL"`
	MaxConns      int32         `env:"MAX_CONNS" envDefault:"20"`
	MinConns      int32         `env:"MIN_CONNS" envDefault:"2"`
	ConnLifetime  time.Duration `env:"CONN_LIFETIME" envDefault:"30m"`
	QueryTimeout  time.Duration `env:"QUERY_TIMEOUT" envDefault:"5s"`
	RunMigrations bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
}

type RedisConfig struct {
	Addr      string `env:"ADDR" envDefault:"127.0.0.1:6379"`
	Password  string `env:"PASSWORD"`
	DB        int    `env:"DB" envDefault:"0"`
	EnableTLS bool   `env:"ENABLE_TLS" envDefault:"false"`
	Namespace string `env:"NAMESPACE" envDefault:"identity"`
}

type TokenConfig struct {
	CodeTTL         time.Duration `env:"CODE_TTL" envDefault:"10m"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TTL" envDefault:"720h"`
}

type SSOConfig struct {
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"5m"`
	AllowedApps   []string      `env:"ALLOWED_APPS" envSeparator:"," envDefault:"wallet,merchant,checkout,developer"`
	ServiceSecret string        `env:"SERVICE_SECRET"`
}

type SecurityConfig struct {
	Argon2Time      uint32 `env:"ARGON2_TIME" envDefault:"3"`
	Argon2Memory    uint32 `env:"ARGON2_MEMORY" envDefault:"65536"`
	Argon2Threads   uint8  `env:"ARGON2_THREADS" envDefault:"2"`
	Argon2KeyLength uint32 `env:"ARGON2_KEY_LENGTH" envDefault:"32"`
}

type WebhookConfig struct {
	Workers        int           `env:"WORKERS" envDefault:"4"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	InitialBackoff time.Duration `env:"INITIAL_BACKOFF" envDefault:"2s"`
	MaxBackoff     time.Duration `env:"MAX_BACKOFF" envDefault:"5m"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	QueueSize      int           `env:"QUEUE_SIZE" envDefault:"256"`
}

type ReaperConfig struct {
	Interval       time.Duration `env:"INTERVAL" envDefault:"5m"`
	BatchSize      int           `env:"BATCH_SIZE" envDefault:"500"`
	TokenRetention time.Duration `env:"TOKEN_RETENTION" envDefault:"24h"`
}

// Load parses environment variables into Config and performs validation.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.App.Environment != "development" && cfg.App.Environment != "local" {
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("AUTH_DB_URL is required outside development")
		}
		if cfg.SSO.ServiceSecret == "" {
			return nil, fmt.Errorf("AUTH_SSO_SERVICE_SECRET is required outside development")
		}
	}
	if len(cfg.SSO.AllowedApps) == 0 {
		return nil, fmt.Errorf("AUTH_SSO_ALLOWED_APPS must name at least one first-party app")
	}
	if cfg.Token.CodeTTL <= 0 || cfg.Token.AccessTokenTTL <= 0 || cfg.Token.RefreshTokenTTL <= 0 {
		return nil, fmt.Errorf("token TTLs must be positive")
	}
	if cfg.Webhook.MaxAttempts < 1 {
		return nil, fmt.Errorf("AUTH_WEBHOOK_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}
