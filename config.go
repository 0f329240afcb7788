package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all server configuration, sourced from environment
// variables with an optional .env file underneath.
type Config struct {
	Port    int    `env:"PORT" envDefault:"3000"`
	Address string `env:"ADDRESS" envDefault:""`

	// PublicDir serves static files when set; otherwise plain HTTP
	// requests get a placeholder body.
	PublicDir string `env:"HTTP_PUBLIC_FOLDER"`

	// Cross-instance bridges. At most one may be set.
	RedisURL string `env:"REDIS_URL"`
	NATSURL  string `env:"NATS_URL"`

	// TLS serves HTTPS with a self-signed certificate.
	TLS         bool          `env:"TLS" envDefault:"false"`
	TLSValidity time.Duration `env:"TLS_VALIDITY" envDefault:"168h"`
	TLSHostname string        `env:"TLS_HOSTNAME"`

	PingInterval time.Duration `env:"PING_INTERVAL" envDefault:"40s"`
	KeepAlive    time.Duration `env:"KEEP_ALIVE" envDefault:"10s"`
	MaxMessageKB int           `env:"MAX_MSG_KB" envDefault:"250"`

	IdleCheckPeriod time.Duration `env:"IDLE_CHECK_PERIOD" envDefault:"3s"`
	IdleThreshold   time.Duration `env:"IDLE_THRESHOLD" envDefault:"5s"`

	SendQueueDepth int           `env:"SEND_QUEUE_DEPTH" envDefault:"256"`
	StatsInterval  time.Duration `env:"METRICS_INTERVAL" envDefault:"15s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

// LoadConfig reads configuration. Priority: environment variables over
// .env file over defaults.
func LoadConfig() (*Config, error) {
	// The .env file is a development convenience; absence is fine.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and mutually exclusive settings.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be 1-65535, got %d", c.Port)
	}
	if c.RedisURL != "" && c.NATSURL != "" {
		return fmt.Errorf("REDIS_URL and NATS_URL are mutually exclusive")
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("PING_INTERVAL must be positive, got %s", c.PingInterval)
	}
	if c.KeepAlive <= 0 {
		return fmt.Errorf("KEEP_ALIVE must be positive, got %s", c.KeepAlive)
	}
	if c.MaxMessageKB < 1 {
		return fmt.Errorf("MAX_MSG_KB must be positive, got %d", c.MaxMessageKB)
	}
	if c.IdleCheckPeriod <= 0 {
		return fmt.Errorf("IDLE_CHECK_PERIOD must be positive, got %s", c.IdleCheckPeriod)
	}
	if c.IdleThreshold <= 0 {
		return fmt.Errorf("IDLE_THRESHOLD must be positive, got %s", c.IdleThreshold)
	}
	if c.SendQueueDepth < 1 {
		return fmt.Errorf("SEND_QUEUE_DEPTH must be positive, got %d", c.SendQueueDepth)
	}
	if c.StatsInterval <= 0 {
		return fmt.Errorf("METRICS_INTERVAL must be positive, got %s", c.StatsInterval)
	}
	if c.TLS && c.TLSValidity <= 0 {
		return fmt.Errorf("TLS_VALIDITY must be positive, got %s", c.TLSValidity)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be one of: json, console (got: %s)", c.LogFormat)
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

// LogConfig logs the effective configuration. Bridge URLs may carry
// credentials, so only their presence is logged.
func (c *Config) LogConfig(log zerolog.Logger) {
	log.Info().
		Str("addr", c.Addr()).
		Bool("tls", c.TLS).
		Str("public_dir", c.PublicDir).
		Bool("redis", c.RedisURL != "").
		Bool("nats", c.NATSURL != "").
		Dur("ping_interval", c.PingInterval).
		Dur("keep_alive", c.KeepAlive).
		Int("max_msg_kb", c.MaxMessageKB).
		Dur("idle_check_period", c.IdleCheckPeriod).
		Dur("idle_threshold", c.IdleThreshold).
		Int("send_queue_depth", c.SendQueueDepth).
		Msg("configuration loaded")
}
