package session

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-gateway-go/internal/config"
	"github.com/openclaw/session-gateway-go/internal/credentials"
	"github.com/openclaw/session-gateway-go/internal/metrics"
	"github.com/openclaw/session-gateway-go/internal/model"
	"github.com/openclaw/session-gateway-go/internal/qr"
	"github.com/openclaw/session-gateway-go/internal/repository"
	"github.com/openclaw/session-gateway-go/internal/transport"
	"github.com/openclaw/session-gateway-go/internal/util"
)

// Notifier receives lifecycle notices for fan-out to subscribers.
type Notifier interface {
	Publish(ctx context.Context, sessionID string, eventType string, data any) error
}

type Options struct {
	Registry        *Registry
	Dialer          transport.Dialer
	Credentials     credentials.Store
	Store           repository.SessionRepository
	Notifier        Notifier
	Metrics         *metrics.Metrics
	ReconnectPolicy ReconnectPolicy
	// StoreRetryDelay overrides config.StoreRetryDelay.
	StoreRetryDelay time.Duration
}

// Controller drives every session's lifecycle: it owns registry mutations,
// consumes transport events and keeps the durable store in step.
type Controller struct {
	registry        *Registry
	dialer          transport.Dialer
	creds           credentials.Store
	store           repository.SessionRepository
	notifier        Notifier
	metrics         *metrics.Metrics
	reconnectPolicy ReconnectPolicy
	storeRetryDelay time.Duration
	render          func(string) (string, error)

	ctx    context.Context
	cancel context.CancelFunc
}

func NewController(opts Options) *Controller {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.ReconnectPolicy == nil {
		opts.ReconnectPolicy = ConstantReconnect(5 * time.Second)
	}
	if opts.StoreRetryDelay <= 0 {
		opts.StoreRetryDelay = config.StoreRetryDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		registry:        opts.Registry,
		dialer:          opts.Dialer,
		creds:           opts.Credentials,
		store:           opts.Store,
		notifier:        opts.Notifier,
		metrics:         opts.Metrics,
		reconnectPolicy: opts.ReconnectPolicy,
		storeRetryDelay: opts.StoreRetryDelay,
		render:          qr.Render,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// CreateSession returns the tracked connection for id, opening one if none
// exists. Transport failures are retried in the background and never
// returned; only local credential errors are.
func (c *Controller) CreateSession(ctx context.Context, id string) (*Connection, error) {
	if conn, ok := c.registry.Get(id); ok {
		return conn, nil
	}

	unlock := c.registry.Lock(id)
	defer unlock()

	if conn, ok := c.registry.Get(id); ok {
		return conn, nil
	}

	conn := newConnection(id, c.reconnectPolicy())
	c.registry.Put(id, conn)

	if err := c.open(ctx, conn); err != nil {
		c.registry.RemoveIf(id, conn)
		return nil, err
	}
	return conn, nil
}

func (c *Controller) GetConnection(id string) (*Connection, bool) {
	return c.registry.Get(id)
}

func (c *Controller) ActiveConnectionsCount() int {
	return c.registry.Count()
}

// RemoveConnection closes the handle, cancels any pending reconnect and drops
// the registry entry. The durable store and credential directory are left to
// the caller.
func (c *Controller) RemoveConnection(id string) {
	unlock := c.registry.Lock(id)
	defer unlock()

	conn, ok := c.registry.Get(id)
	if !ok {
		return
	}
	c.teardown(conn)

	conn.mu.Lock()
	conn.state.IsConnected = false
	conn.state.Phase = PhaseIdle
	conn.mu.Unlock()

	log.Info().Str("sessionId", id).Msg("connection removed")
}

func (c *Controller) ClearConnection(id string) {
	c.RemoveConnection(id)
}

// Shutdown closes every handle without touching the durable store, so the
// next process can restore the same sessions.
func (c *Controller) Shutdown() {
	c.cancel()
	for _, id := range c.registry.IDs() {
		unlock := c.registry.Lock(id)
		if conn, ok := c.registry.Get(id); ok {
			c.teardown(conn)
		}
		unlock()
	}
}

// open loads credentials and dials. Callers hold the registry lock for the
// id. A dial failure schedules a retry instead of returning an error.
func (c *Controller) open(ctx context.Context, conn *Connection) error {
	id := conn.id
	if err := c.creds.Ensure(id); err != nil {
		return fmt.Errorf("prepare credentials: %w", err)
	}
	material, err := c.creds.Load(id)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	conn.mu.Lock()
	conn.generation++
	gen := conn.generation
	conn.state.Phase = PhaseConnecting
	conn.state.IsConnected = false
	conn.state.IsAuthenticated = material.Registered
	conn.state.PairingCode = ""
	conn.state.QRImage = ""
	conn.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, config.SessionOpenTimeout)
	defer cancel()

	handle, err := c.dialer.Open(dialCtx, id, material)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", id).Msg("transport open failed")
		c.metrics.Disconnect(string(transport.Retryable), "open_failed")
		if !c.scheduleReconnect(conn, gen) {
			c.applyLocked(conn, gen, c.giveUp(conn, transport.ReasonConnectionLost))
		}
		return nil
	}

	conn.mu.Lock()
	conn.handle = handle
	conn.mu.Unlock()

	log.Info().
		Str("sessionId", id).
		Bool("registered", material.Registered).
		Msg("transport connection opened")

	go c.pump(conn, gen, handle)
	return nil
}

// pump forwards one handle's events until it closes or is superseded.
func (c *Controller) pump(conn *Connection, gen uint64, handle transport.Conn) {
	sawClose := false
	for evt := range handle.Events() {
		if evt.Type == transport.EventConnectionClosed {
			sawClose = true
		}
		if !c.dispatch(conn, gen, evt) {
			return
		}
	}
	if !sawClose {
		c.dispatch(conn, gen, transport.Event{
			Type:   transport.EventConnectionClosed,
			Reason: transport.ReasonConnectionLost,
		})
	}
}

// dispatch applies evt if conn is still the registered connection at gen.
func (c *Controller) dispatch(conn *Connection, gen uint64, evt transport.Event) bool {
	unlock := c.registry.Lock(conn.id)
	defer unlock()

	if !c.isCurrent(conn, gen) {
		log.Debug().
			Str("sessionId", conn.id).
			Str("event", string(evt.Type)).
			Msg("dropping event from superseded connection")
		return false
	}

	conn.mu.Lock()
	next, effects := Transition(conn.state, evt)
	conn.state = next
	conn.mu.Unlock()

	if evt.Type == transport.EventConnectionClosed {
		log.Warn().
			Str("sessionId", conn.id).
			Str("reason", evt.Reason.String()).
			Str("disposition", string(transport.Classify(evt.Reason))).
			Msg("transport connection closed")
	}

	c.applyLocked(conn, gen, effects)
	return true
}

func (c *Controller) isCurrent(conn *Connection, gen uint64) bool {
	registered, ok := c.registry.Get(conn.id)
	return ok && registered == conn && conn.current(gen)
}

// applyLocked runs effects in order. Callers hold the registry lock for the id.
func (c *Controller) applyLocked(conn *Connection, gen uint64, effects []Effect) {
	for _, eff := range effects {
		switch eff.Kind {
		case EffectRenderCode:
			c.renderCode(conn)

		case EffectPersistStatus:
			c.persist(conn.id, eff.Status, eff.Identity)

		case EffectSaveCredentials:
			if err := c.creds.Save(conn.id, eff.Credentials); err != nil {
				log.Error().Err(err).Str("sessionId", conn.id).Msg("failed to save credentials")
			}

		case EffectScheduleReconnect:
			c.metrics.Disconnect(string(transport.Retryable), eff.Reason.String())
			if !c.scheduleReconnect(conn, gen) {
				c.applyLocked(conn, gen, c.giveUp(conn, eff.Reason))
				return
			}

		case EffectResetReconnect:
			conn.mu.Lock()
			conn.backoff.Reset()
			conn.mu.Unlock()

		case EffectTerminate:
			c.metrics.Disconnect(string(transport.Terminal), eff.Reason.String())
			c.teardown(conn)
			log.Warn().
				Str("sessionId", conn.id).
				Str("reason", eff.Reason.String()).
				Msg("session terminated")

		case EffectNotify:
			c.notify(conn, eff)
		}
	}
}

func (c *Controller) renderCode(conn *Connection) {
	conn.mu.RLock()
	code := conn.state.PairingCode
	conn.mu.RUnlock()

	img, err := c.render(code)
	if err != nil {
		log.Error().Err(err).Str("sessionId", conn.id).Msg("failed to render pairing code")
		return
	}

	conn.mu.Lock()
	if conn.state.PairingCode == code {
		conn.state.QRImage = img
	}
	conn.mu.Unlock()

	c.metrics.PairingCode()
	log.Info().
		Str("sessionId", conn.id).
		Str("code", util.MaskCode(code)).
		Msg("pairing code issued")
}

// scheduleReconnect arms the retry timer. It returns false when the policy
// has given up.
func (c *Controller) scheduleReconnect(conn *Connection, gen uint64) bool {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	delay := conn.backoff.NextBackOff()
	if delay == backoff.Stop {
		return false
	}

	if conn.reconnectTimer != nil {
		conn.reconnectTimer.Stop()
	}
	conn.state.Phase = PhaseReconnecting
	conn.reconnectTimer = time.AfterFunc(delay, func() {
		c.reconnect(conn, gen)
	})

	log.Warn().
		Str("sessionId", conn.id).
		Dur("delay", delay).
		Msg("reconnect scheduled")
	return true
}

// giveUp ends a session whose reconnect policy is exhausted.
func (c *Controller) giveUp(conn *Connection, reason transport.DisconnectReason) []Effect {
	log.Error().Str("sessionId", conn.id).Msg("reconnect policy exhausted")

	conn.mu.Lock()
	next, effects := terminate(conn.state, reason)
	conn.state = next
	conn.mu.Unlock()
	return effects
}

func (c *Controller) reconnect(conn *Connection, gen uint64) {
	unlock := c.registry.Lock(conn.id)
	defer unlock()

	if !c.isCurrent(conn, gen) {
		log.Debug().Str("sessionId", conn.id).Msg("skipping reconnect for removed connection")
		return
	}

	conn.mu.Lock()
	old := conn.handle
	conn.handle = nil
	conn.reconnectTimer = nil
	conn.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			log.Debug().Err(err).Str("sessionId", conn.id).Msg("closing previous transport handle")
		}
	}

	c.metrics.ReconnectAttempt()
	log.Info().Str("sessionId", conn.id).Msg("reconnecting")

	if err := c.open(c.ctx, conn); err != nil {
		log.Error().Err(err).Str("sessionId", conn.id).Msg("reconnect failed on local credentials")
		conn.mu.Lock()
		next, effects := terminate(conn.state, transport.ReasonBadSession)
		conn.state = next
		conn.mu.Unlock()
		c.applyLocked(conn, gen, effects)
	}
}

// teardown invalidates conn, closes its handle and drops it from the
// registry. Callers hold the registry lock for the id.
func (c *Controller) teardown(conn *Connection) {
	conn.mu.Lock()
	if conn.reconnectTimer != nil {
		conn.reconnectTimer.Stop()
		conn.reconnectTimer = nil
	}
	conn.generation++
	handle := conn.handle
	conn.handle = nil
	conn.mu.Unlock()

	if handle != nil {
		if err := handle.Close(); err != nil {
			log.Warn().Err(err).Str("sessionId", conn.id).Msg("error closing transport handle")
		}
	}
	c.registry.RemoveIf(conn.id, conn)
}

// persist writes through to the durable store. Failures are logged and
// counted; they never interrupt the lifecycle.
func (c *Controller) persist(id string, status model.SessionStatus, identity *model.AccountIdentity) {
	ctx, cancel := context.WithTimeout(c.ctx, config.StoreWriteTimeout)
	defer cancel()

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.storeRetryDelay), config.StoreRetryAttempts),
		ctx,
	)
	err := backoff.Retry(func() error {
		return c.store.Upsert(ctx, id, status, identity)
	}, policy)
	if err != nil {
		c.metrics.StoreError("upsert")
		log.Error().
			Err(err).
			Str("sessionId", id).
			Str("status", string(status)).
			Msg("failed to write session status")
	}
}

func (c *Controller) notify(conn *Connection, eff Effect) {
	if c.notifier == nil {
		return
	}

	s := conn.Snapshot()
	data := map[string]any{
		"sessionId":       conn.id,
		"isConnected":     s.IsConnected,
		"isAuthenticated": s.IsAuthenticated,
	}
	switch eff.Notice {
	case NoticeQR:
		if !s.HasPairingCode() {
			return
		}
		data["qr"] = s.QRImage
	case NoticeConnected:
		if s.Account != nil {
			data["account"] = s.Account
		}
	case NoticeDisconnected, NoticeLoggedOut:
		data["reason"] = eff.Reason.String()
	}

	ctx, cancel := context.WithTimeout(c.ctx, config.NotifyTimeout)
	defer cancel()
	if err := c.notifier.Publish(ctx, conn.id, eff.Notice, data); err != nil {
		log.Warn().Err(err).Str("sessionId", conn.id).Str("notice", eff.Notice).Msg("failed to publish notice")
	}
}
