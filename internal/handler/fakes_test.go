package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/session-gateway-go/internal/credentials"
	"github.com/openclaw/session-gateway-go/internal/metrics"
	"github.com/openclaw/session-gateway-go/internal/model"
	"github.com/openclaw/session-gateway-go/internal/service"
	"github.com/openclaw/session-gateway-go/internal/session"
	"github.com/openclaw/session-gateway-go/internal/transport"
)

type pairingConn struct {
	mu     sync.Mutex
	events chan transport.Event
	closed bool
	sent   []string
}

func (c *pairingConn) Events() <-chan transport.Event { return c.events }

func (c *pairingConn) Send(_ context.Context, target string, msg transport.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, target+"|"+msg.Text)
	return nil
}

func (c *pairingConn) Logout(context.Context) error { return nil }

func (c *pairingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *pairingConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type pairingDialer struct {
	mu    sync.Mutex
	conns map[string]*pairingConn
}

func (d *pairingDialer) Open(_ context.Context, sessionID string, _ *credentials.Material) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	conn := &pairingConn{events: make(chan transport.Event, 8)}
	conn.events <- transport.Event{Type: transport.EventPairingCode, PairingCode: "2@" + sessionID}
	d.conns[sessionID] = conn
	return conn, nil
}

func (d *pairingDialer) conn(id string) *pairingConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[id]
}

type recordStore struct {
	mu      sync.Mutex
	records map[string]*model.SessionRecord
}

func (s *recordStore) FindByToken(_ context.Context, token string) (*model.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[token]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (s *recordStore) Insert(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[token] = &model.SessionRecord{
		Token:      token,
		Status:     model.SessionStatusUnauthenticated,
		DeleteFlag: model.DeleteFlagActive,
		CreatedAt:  time.Now(),
	}
	return nil
}

func (s *recordStore) Upsert(_ context.Context, token string, status model.SessionStatus, _ *model.AccountIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[token]
	if !ok {
		r = &model.SessionRecord{Token: token, DeleteFlag: model.DeleteFlagActive, CreatedAt: time.Now()}
		s.records[token] = r
	}
	r.Status = status
	return nil
}

func (s *recordStore) MarkDeleted(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[token]; ok {
		r.DeleteFlag = model.DeleteFlagDeleted
	}
	return nil
}

func (s *recordStore) ListExpired(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tokens []string
	for token, r := range s.records {
		if r.Status == model.SessionStatusUnauthenticated && r.DeleteFlag == model.DeleteFlagActive && r.CreatedAt.Before(cutoff) {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

func (s *recordStore) ListActiveTokens(context.Context) ([]string, error) {
	return nil, nil
}

type handlerEnv struct {
	gateway *service.GatewayService
	handler *GatewayHandler
	ctrl    *session.Controller
	dialer  *pairingDialer
	store   *recordStore
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	creds, err := credentials.NewFileStore(t.TempDir(), "")
	require.NoError(t, err)

	env := &handlerEnv{
		dialer: &pairingDialer{conns: make(map[string]*pairingConn)},
		store:  &recordStore{records: make(map[string]*model.SessionRecord)},
	}
	m := metrics.New()
	env.ctrl = session.NewController(session.Options{
		Dialer:          env.dialer,
		Credentials:     creds,
		Store:           env.store,
		Metrics:         m,
		ReconnectPolicy: session.ConstantReconnect(time.Hour),
		StoreRetryDelay: time.Millisecond,
	})
	t.Cleanup(env.ctrl.Shutdown)

	env.gateway = service.NewGatewayService(env.ctrl, env.store, creds, m, service.GatewayConfig{
		QRWait:      time.Second,
		FreshQRWait: time.Second,
		SessionTTL:  time.Hour,
	})
	env.handler = NewGatewayHandler(env.gateway, nil)
	return env
}

func (e *handlerEnv) pair(t *testing.T, id string) {
	t.Helper()
	conn, err := e.ctrl.CreateSession(context.Background(), id)
	require.NoError(t, err)
	e.dialer.conn(id).events <- transport.Event{
		Type:    transport.EventConnectionOpen,
		Account: &transport.Account{ID: "15550001111:2@s.whatsapp.net", Name: "Ops"},
	}
	require.Eventually(t, func() bool {
		return conn.Snapshot().IsAuthenticated
	}, 2*time.Second, 5*time.Millisecond)
}
