package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Session lifecycle
const (
	PairingPollInterval  = 100 * time.Millisecond
	SessionOpenTimeout   = 30 * time.Second
	StoreWriteTimeout    = 10 * time.Second
	StoreRetryDelay      = 200 * time.Millisecond
	StoreRetryAttempts   = 2
	CleanupRunTimeout    = 2 * time.Minute
	NotifyTimeout        = 2 * time.Second
	GoroutineLivenessMax = 20000
)

// Outbound messages
const MaxMessageBodySize = 1 << 20 // 1MB

// Fallback when SEND_RATE_LIMIT_PER_MIN is not positive
const DefaultSendRateLimitPerMin = 60
