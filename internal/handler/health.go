package handler

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/heptiolabs/healthcheck"

	"github.com/openclaw/session-gateway-go/internal/config"
	"github.com/openclaw/session-gateway-go/internal/service"
)

type HealthHandler struct {
	health *service.HealthService
}

func NewHealthHandler(health *service.HealthService) *HealthHandler {
	return &HealthHandler{health: health}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.health.Report(r.Context()))
}

// Pinger is satisfied by the Redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// NewProbes builds the /live and /ready checks. A nil db or redis skips the
// corresponding readiness check.
func NewProbes(db *sql.DB, redis Pinger) healthcheck.Handler {
	probes := healthcheck.NewHandler()
	probes.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(config.GoroutineLivenessMax))

	if db != nil {
		probes.AddReadinessCheck("database", healthcheck.DatabasePingCheck(db, config.DBPingTimeout))
	}
	if redis != nil {
		probes.AddReadinessCheck("redis", healthcheck.Timeout(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
			defer cancel()
			return redis.Ping(ctx)
		}, config.DBPingTimeout))
	}
	return probes
}
