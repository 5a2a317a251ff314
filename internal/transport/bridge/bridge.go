// Package bridge implements transport.Dialer on top of Redis. Commands are
// queued for an external protocol worker that owns the device sockets; the
// worker publishes connection events back on a per-session channel.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-gateway-go/internal/credentials"
	redisclient "github.com/openclaw/session-gateway-go/internal/redis"
	"github.com/openclaw/session-gateway-go/internal/transport"
)

const eventBufferSize = 16

type CommandType string

const (
	CommandOpen   CommandType = "open"
	CommandSend   CommandType = "send"
	CommandLogout CommandType = "logout"
	CommandClose  CommandType = "close"
)

type Command struct {
	ID          string                `json:"id"`
	Type        CommandType           `json:"type"`
	SessionID   string                `json:"sessionId"`
	Credentials *credentials.Material `json:"credentials,omitempty"`
	Target      string                `json:"target,omitempty"`
	Message     *transport.Message    `json:"message,omitempty"`
	ReplyTo     string                `json:"replyTo,omitempty"`
}

type Reply struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type Dialer struct {
	redis        *redisclient.Client
	replyTimeout time.Duration
}

func NewDialer(client *redisclient.Client, replyTimeout time.Duration) *Dialer {
	return &Dialer{redis: client, replyTimeout: replyTimeout}
}

// Open subscribes to the session's event channel before asking the worker to
// connect, so no event published in between is lost.
func (d *Dialer) Open(ctx context.Context, sessionID string, material *credentials.Material) (transport.Conn, error) {
	pubsub := d.redis.Subscribe(ctx, redisclient.BridgeEventChannel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe bridge events: %w", err)
	}

	c := &conn{
		sessionID: sessionID,
		dialer:    d,
		pubsub:    pubsub,
		events:    make(chan transport.Event, eventBufferSize),
		done:      make(chan struct{}),
	}
	go c.pump(pubsub.Channel())

	if err := d.call(ctx, Command{Type: CommandOpen, SessionID: sessionID, Credentials: material}); err != nil {
		c.shutdown()
		return nil, err
	}
	return c, nil
}

func (d *Dialer) call(ctx context.Context, cmd Command) error {
	cmd.ID = uuid.NewString()
	cmd.ReplyTo = redisclient.BridgeReplyKey(cmd.ID)

	if err := d.enqueue(ctx, cmd); err != nil {
		return err
	}

	res, err := d.redis.BLPop(ctx, d.replyTimeout, cmd.ReplyTo).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("bridge %s: no reply within %s", cmd.Type, d.replyTimeout)
	}
	if err != nil {
		return fmt.Errorf("bridge %s: wait reply: %w", cmd.Type, err)
	}
	if len(res) != 2 {
		return fmt.Errorf("bridge %s: malformed reply", cmd.Type)
	}

	var reply Reply
	if err := json.Unmarshal([]byte(res[1]), &reply); err != nil {
		return fmt.Errorf("bridge %s: decode reply: %w", cmd.Type, err)
	}
	if !reply.OK {
		return fmt.Errorf("bridge %s: %s", cmd.Type, reply.Error)
	}
	return nil
}

func (d *Dialer) enqueue(ctx context.Context, cmd Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode bridge command: %w", err)
	}
	if err := d.redis.RPush(ctx, redisclient.BridgeCommandQueue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue bridge %s: %w", cmd.Type, err)
	}
	return nil
}

type conn struct {
	sessionID string
	dialer    *Dialer
	pubsub    *redis.PubSub
	events    chan transport.Event
	done      chan struct{}
	closeOnce sync.Once
}

func (c *conn) Events() <-chan transport.Event {
	return c.events
}

func (c *conn) Send(ctx context.Context, target string, msg transport.Message) error {
	if c.closed() {
		return transport.ErrClosed
	}
	return c.dialer.call(ctx, Command{Type: CommandSend, SessionID: c.sessionID, Target: target, Message: &msg})
}

func (c *conn) Logout(ctx context.Context) error {
	if c.closed() {
		return transport.ErrClosed
	}
	return c.dialer.call(ctx, Command{Type: CommandLogout, SessionID: c.sessionID})
}

// Close tells the worker to drop the socket without waiting for a reply.
func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.dialer.replyTimeout)
		defer cancel()
		err = c.dialer.enqueue(ctx, Command{ID: uuid.NewString(), Type: CommandClose, SessionID: c.sessionID})
		c.stop()
	})
	return err
}

// shutdown releases local resources only; used when open itself failed.
func (c *conn) shutdown() {
	c.closeOnce.Do(c.stop)
}

func (c *conn) stop() {
	close(c.done)
	if err := c.pubsub.Close(); err != nil {
		log.Debug().Err(err).Str("sessionId", c.sessionID).Msg("bridge pubsub close")
	}
}

func (c *conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *conn) pump(ch <-chan *redis.Message) {
	defer close(c.events)

	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			evt, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				log.Warn().Err(err).Str("sessionId", c.sessionID).Msg("dropping malformed bridge event")
				continue
			}

			select {
			case c.events <- evt:
			case <-c.done:
				return
			}

			if evt.Type == transport.EventConnectionClosed {
				return
			}
		}
	}
}

// DecodeEvent parses one event published by the bridge worker.
func DecodeEvent(payload []byte) (transport.Event, error) {
	var evt transport.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return transport.Event{}, fmt.Errorf("decode bridge event: %w", err)
	}

	switch evt.Type {
	case transport.EventPairingCode:
		if evt.PairingCode == "" {
			return transport.Event{}, fmt.Errorf("pairing_code event without code")
		}
	case transport.EventConnectionOpen:
	case transport.EventConnectionClosed:
		if evt.Reason == 0 {
			evt.Reason = transport.ReasonConnectionLost
		}
	case transport.EventCredentialsUpdated:
		if evt.Credentials == nil {
			return transport.Event{}, fmt.Errorf("credentials_updated event without credentials")
		}
	default:
		return transport.Event{}, fmt.Errorf("unknown bridge event type %q", evt.Type)
	}
	return evt, nil
}
