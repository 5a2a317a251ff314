package session

import (
	"context"
	"time"

	"github.com/openclaw/session-gateway-go/internal/config"
)

// AwaitPairingCode blocks until conn has a rendered pairing code or is
// authenticated, or until timeout elapses. It never fails: callers inspect the
// returned state.
func AwaitPairingCode(ctx context.Context, conn *Connection, timeout time.Duration) State {
	return awaitPairingCode(ctx, conn, timeout, config.PairingPollInterval)
}

func awaitPairingCode(ctx context.Context, conn *Connection, timeout, interval time.Duration) State {
	if s := conn.Snapshot(); pairingSettled(s) {
		return s
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return conn.Snapshot()
		case <-deadline.C:
			return conn.Snapshot()
		case <-ticker.C:
			if s := conn.Snapshot(); pairingSettled(s) {
				return s
			}
		}
	}
}

func pairingSettled(s State) bool {
	return s.HasPairingCode() || s.IsAuthenticated
}
