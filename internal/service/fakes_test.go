package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/session-gateway-go/internal/credentials"
	"github.com/openclaw/session-gateway-go/internal/metrics"
	"github.com/openclaw/session-gateway-go/internal/model"
	"github.com/openclaw/session-gateway-go/internal/session"
	"github.com/openclaw/session-gateway-go/internal/transport"
)

type stubConn struct {
	mu        sync.Mutex
	events    chan transport.Event
	closed    bool
	sent      []string
	targets   []string
	loggedOut bool
	sendErr   error
}

func (c *stubConn) Events() <-chan transport.Event { return c.events }

func (c *stubConn) Send(_ context.Context, target string, msg transport.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.targets = append(c.targets, target)
	c.sent = append(c.sent, msg.Text)
	return nil
}

func (c *stubConn) Logout(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedOut = true
	return nil
}

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *stubConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *stubConn) didLogout() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedOut
}

func (c *stubConn) failSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *stubConn) emit(evt transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.events <- evt
	}
}

// stubDialer hands out connections that immediately issue a pairing code
// unless silent is set.
type stubDialer struct {
	mu     sync.Mutex
	conns  map[string][]*stubConn
	silent bool
}

func newStubDialer() *stubDialer {
	return &stubDialer{conns: make(map[string][]*stubConn)}
}

func (d *stubDialer) Open(_ context.Context, sessionID string, _ *credentials.Material) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	conn := &stubConn{events: make(chan transport.Event, 8)}
	if !d.silent {
		conn.events <- transport.Event{Type: transport.EventPairingCode, PairingCode: "2@code-" + sessionID}
	}
	d.conns[sessionID] = append(d.conns[sessionID], conn)
	return conn, nil
}

func (d *stubDialer) latest(id string) *stubConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	conns := d.conns[id]
	if len(conns) == 0 {
		return nil
	}
	return conns[len(conns)-1]
}

func (d *stubDialer) opens(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns[id])
}

type memoryStore struct {
	mu      sync.Mutex
	records map[string]*model.SessionRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*model.SessionRecord)}
}

func (s *memoryStore) put(r model.SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.Token] = &r
}

func (s *memoryStore) get(token string) *model.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[token]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (s *memoryStore) FindByToken(_ context.Context, token string) (*model.SessionRecord, error) {
	return s.get(token), nil
}

func (s *memoryStore) Insert(_ context.Context, token string) error {
	s.put(model.SessionRecord{
		Token:      token,
		Status:     model.SessionStatusUnauthenticated,
		DeleteFlag: model.DeleteFlagActive,
		CreatedAt:  time.Now(),
	})
	return nil
}

func (s *memoryStore) Upsert(_ context.Context, token string, status model.SessionStatus, identity *model.AccountIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[token]
	if !ok {
		r = &model.SessionRecord{Token: token, DeleteFlag: model.DeleteFlagActive, CreatedAt: time.Now()}
		s.records[token] = r
	}
	r.Status = status
	if identity != nil {
		id, name := identity.ID, identity.Name
		r.ScanID, r.ScanName = &id, &name
	}
	return nil
}

func (s *memoryStore) MarkDeleted(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[token]; ok {
		r.DeleteFlag = model.DeleteFlagDeleted
	}
	return nil
}

func (s *memoryStore) ListExpired(_ context.Context, cutoff time.Time) ([]string, error) {
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

func (s *memoryStore) ListActiveTokens(context.Context) ([]string, error) {
	return nil, nil
}

type gatewayEnv struct {
	svc    *GatewayService
	ctrl   *session.Controller
	dialer *stubDialer
	store  *memoryStore
	creds  *credentials.FileStore
}

func newGatewayEnv(t *testing.T) *gatewayEnv {
	t.Helper()
	creds, err := credentials.NewFileStore(t.TempDir(), "")
	require.NoError(t, err)

	env := &gatewayEnv{
		dialer: newStubDialer(),
		store:  newMemoryStore(),
		creds:  creds,
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

	env.svc = NewGatewayService(env.ctrl, env.store, creds, m, GatewayConfig{
		QRWait:      time.Second,
		FreshQRWait: time.Second,
		SessionTTL:  time.Hour,
	})
	return env
}

// pair drives id to an authenticated live connection.
func (e *gatewayEnv) pair(t *testing.T, id string) {
	t.Helper()
	_, err := e.svc.GetQR(context.Background(), id)
	require.NoError(t, err)
	e.dialer.latest(id).emit(transport.Event{
		Type:    transport.EventConnectionOpen,
		Account: &transport.Account{ID: "15551234567:1@s.whatsapp.net", Name: "Alice"},
	})
	require.Eventually(t, func() bool {
		conn, ok := e.ctrl.GetConnection(id)
		return ok && conn.Snapshot().IsAuthenticated
	}, 2*time.Second, 5*time.Millisecond)
}
