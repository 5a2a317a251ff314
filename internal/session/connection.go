package session

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/openclaw/session-gateway-go/internal/transport"
)

type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseConnecting   Phase = "connecting"
	PhaseAwaitingScan Phase = "awaiting_scan"
	PhaseLive         Phase = "live"
	PhaseReconnecting Phase = "reconnecting"
	PhaseTerminated   Phase = "terminated"
)

// State is a point-in-time view of one session's connection.
type State struct {
	SessionID       string             `json:"sessionId"`
	Phase           Phase              `json:"phase"`
	PairingCode     string             `json:"-"`
	QRImage         string             `json:"qr,omitempty"`
	IsConnected     bool               `json:"isConnected"`
	IsAuthenticated bool               `json:"isAuthenticated"`
	Account         *transport.Account `json:"account,omitempty"`
}

// HasPairingCode reports whether a rendered code is ready for display.
func (s State) HasPairingCode() bool {
	return s.QRImage != ""
}

// Connection owns the transport handle for one session id. Fields other than
// id are guarded by mu; structural changes also require the registry lock for
// the id.
type Connection struct {
	id string

	mu             sync.RWMutex
	state          State
	handle         transport.Conn
	generation     uint64
	reconnectTimer *time.Timer
	backoff        backoff.BackOff
}

func newConnection(id string, policy backoff.BackOff) *Connection {
	return &Connection{
		id:      id,
		state:   State{SessionID: id, Phase: PhaseIdle},
		backoff: policy,
	}
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connection) Send(ctx context.Context, target string, msg transport.Message) error {
	c.mu.RLock()
	handle := c.handle
	c.mu.RUnlock()

	if handle == nil {
		return transport.ErrClosed
	}
	return handle.Send(ctx, target, msg)
}

// Logout asks the transport to unlink the device. It is a no-op without a
// live handle.
func (c *Connection) Logout(ctx context.Context) error {
	c.mu.RLock()
	handle := c.handle
	connected := c.state.IsConnected
	c.mu.RUnlock()

	if handle == nil || !connected {
		return nil
	}
	return handle.Logout(ctx)
}

func (c *Connection) current(gen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation == gen
}
