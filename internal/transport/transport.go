// Package transport defines the boundary between the session lifecycle and
// the chat transport that owns the wire protocol.
package transport

import (
	"context"
	"errors"

	"github.com/openclaw/session-gateway-go/internal/credentials"
)

// ErrClosed is returned by operations on a handle that has been closed.
var ErrClosed = errors.New("transport: connection closed")

type EventType string

const (
	EventPairingCode        EventType = "pairing_code"
	EventConnectionOpen     EventType = "connection_open"
	EventConnectionClosed   EventType = "connection_closed"
	EventCredentialsUpdated EventType = "credentials_updated"
)

// Account is the remote identity reported once pairing completes.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Event is one lifecycle notification from a live connection. Only the
// fields relevant to Type are set.
type Event struct {
	Type        EventType             `json:"type"`
	PairingCode string                `json:"pairingCode,omitempty"`
	Account     *Account              `json:"account,omitempty"`
	Reason      DisconnectReason      `json:"reason,omitempty"`
	Credentials *credentials.Material `json:"credentials,omitempty"`
}

type Message struct {
	Text string `json:"text"`
}

// Conn is one physical connection. Events is closed when the connection is
// gone for good; a closed channel without a preceding EventConnectionClosed
// is treated as a lost connection.
type Conn interface {
	Events() <-chan Event
	Send(ctx context.Context, target string, msg Message) error
	Logout(ctx context.Context) error
	Close() error
}

// Dialer opens connections from stored credential material.
type Dialer interface {
	Open(ctx context.Context, sessionID string, material *credentials.Material) (Conn, error)
}
