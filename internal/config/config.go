package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-gateway-go/internal/util"
)

type Config struct {
	Port                      int    `env:"PORT" envDefault:"8080"`
	DatabaseURL               string `env:"DATABASE_URL,required"`
	RedisURL                  string `env:"REDIS_URL,required"`
	SessionDir                string `env:"SESSION_DIR" envDefault:"./auth_sessions"`
	EncryptionKey             string `env:"ENCRYPTION_KEY"`
	APIToken                  string `env:"API_TOKEN"`
	ReconnectDelayMs          int    `env:"RECONNECT_DELAY_MS" envDefault:"5000"`
	QRWaitTimeoutMs           int    `env:"QR_WAIT_TIMEOUT_MS" envDefault:"5000"`
	FreshQRWaitTimeoutMs      int    `env:"FRESH_QR_WAIT_TIMEOUT_MS" envDefault:"8000"`
	SessionTTLHours           int    `env:"SESSION_TTL_HOURS" envDefault:"24"`
	CleanupIntervalMinutes    int    `env:"CLEANUP_INTERVAL_MINUTES" envDefault:"1440"`
	RestoreWorkers            int    `env:"RESTORE_WORKERS" envDefault:"8"`
	SendRateLimitPerMin       int    `env:"SEND_RATE_LIMIT_PER_MIN" envDefault:"60"`
	BridgeReplyTimeoutSeconds int    `env:"BRIDGE_REPLY_TIMEOUT_SECONDS" envDefault:"30"`
	LogLevel                  string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

func (c *Config) QRWaitTimeout() time.Duration {
	return time.Duration(c.QRWaitTimeoutMs) * time.Millisecond
}

func (c *Config) FreshQRWaitTimeout() time.Duration {
	return time.Duration(c.FreshQRWaitTimeoutMs) * time.Millisecond
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}

func (c *Config) BridgeReplyTimeout() time.Duration {
	return time.Duration(c.BridgeReplyTimeoutSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	if c.EncryptionKey != "" {
		if _, err := util.ParseKey(c.EncryptionKey); err != nil {
			return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters (generate with: openssl rand -hex 32)")
		}
	}

	positive := map[string]int{
		"RECONNECT_DELAY_MS":           c.ReconnectDelayMs,
		"QR_WAIT_TIMEOUT_MS":           c.QRWaitTimeoutMs,
		"FRESH_QR_WAIT_TIMEOUT_MS":     c.FreshQRWaitTimeoutMs,
		"SESSION_TTL_HOURS":            c.SessionTTLHours,
		"CLEANUP_INTERVAL_MINUTES":     c.CleanupIntervalMinutes,
		"RESTORE_WORKERS":              c.RestoreWorkers,
		"BRIDGE_REPLY_TIMEOUT_SECONDS": c.BridgeReplyTimeoutSeconds,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, value)
		}
	}

	if strings.TrimSpace(c.SessionDir) == "" {
		return fmt.Errorf("SESSION_DIR must not be empty")
	}

	if c.APIToken == "" {
		log.Warn().Msg("API_TOKEN is empty: session endpoints are unauthenticated")
	}
	if c.EncryptionKey == "" {
		log.Warn().Msg("ENCRYPTION_KEY is empty: credential material is stored in plaintext")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
