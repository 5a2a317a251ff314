package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/session-gateway-go/internal/credentials"
	"github.com/openclaw/session-gateway-go/internal/metrics"
	"github.com/openclaw/session-gateway-go/internal/model"
	"github.com/openclaw/session-gateway-go/internal/transport"
)

type fakeConn struct {
	mu     sync.Mutex
	events chan transport.Event
	closed bool
	sent   []transport.Message
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan transport.Event, 16)}
}

func (c *fakeConn) Events() <-chan transport.Event {
	return c.events
}

func (c *fakeConn) emit(evt transport.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.events <- evt
	return true
}

func (c *fakeConn) Send(_ context.Context, _ string, msg transport.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Logout(context.Context) error {
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeDialer struct {
	mu        sync.Mutex
	attempts  map[string]int
	conns     map[string][]*fakeConn
	failOpens int
	delay     time.Duration
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		attempts: make(map[string]int),
		conns:    make(map[string][]*fakeConn),
	}
}

func (d *fakeDialer) Open(_ context.Context, sessionID string, _ *credentials.Material) (transport.Conn, error) {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts[sessionID]++
	if d.failOpens > 0 {
		d.failOpens--
		return nil, errors.New("bridge unavailable")
	}
	conn := newFakeConn()
	d.conns[sessionID] = append(d.conns[sessionID], conn)
	return conn, nil
}

func (d *fakeDialer) attemptCount(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts[id]
}

func (d *fakeDialer) openCount(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns[id])
}

func (d *fakeDialer) latest(id string) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	conns := d.conns[id]
	if len(conns) == 0 {
		return nil
	}
	return conns[len(conns)-1]
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*model.SessionRecord
	upserts map[string]int
	failing bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[string]*model.SessionRecord),
		upserts: make(map[string]int),
	}
}

func (s *fakeStore) seed(token string, status model.SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[token] = &model.SessionRecord{
		Token:      token,
		Status:     status,
		DeleteFlag: model.DeleteFlagActive,
		CreatedAt:  time.Now(),
	}
}

func (s *fakeStore) FindByToken(_ context.Context, token string) (*model.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[token]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) Insert(_ context.Context, token string) error {
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

func (s *fakeStore) Upsert(_ context.Context, token string, status model.SessionStatus, identity *model.AccountIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts[token]++
	if s.failing {
		return errors.New("database unavailable")
	}
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

func (s *fakeStore) MarkDeleted(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[token]; ok {
		r.DeleteFlag = model.DeleteFlagDeleted
	}
	return nil
}

func (s *fakeStore) ListExpired(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tokens []string
	for token, r := range s.records {
		if r.Status == model.SessionStatusUnauthenticated && r.DeleteFlag == model.DeleteFlagActive && r.CreatedAt.Before(cutoff) {
			tokens = append(tokens, token)
		}
	}
	sort.Strings(tokens)
	return tokens, nil
}

func (s *fakeStore) ListActiveTokens(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tokens []string
	for token, r := range s.records {
		if r.Status == model.SessionStatusAuthenticated && r.DeleteFlag == model.DeleteFlagActive {
			tokens = append(tokens, token)
		}
	}
	sort.Strings(tokens)
	return tokens, nil
}

func (s *fakeStore) status(token string) model.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[token]; ok {
		return r.Status
	}
	return ""
}

func (s *fakeStore) upsertCount(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts[token]
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *recordingNotifier) Publish(_ context.Context, _ string, eventType string, _ any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, eventType)
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notices...)
}

type testEnv struct {
	ctrl     *Controller
	dialer   *fakeDialer
	store    *fakeStore
	creds    *credentials.FileStore
	notifier *recordingNotifier
	metrics  *metrics.Metrics
}

func newTestEnv(t *testing.T, policy ReconnectPolicy) *testEnv {
	t.Helper()
	creds, err := credentials.NewFileStore(t.TempDir(), "")
	require.NoError(t, err)

	env := &testEnv{
		dialer:   newFakeDialer(),
		store:    newFakeStore(),
		creds:    creds,
		notifier: &recordingNotifier{},
		metrics:  metrics.New(),
	}
	env.ctrl = NewController(Options{
		Dialer:          env.dialer,
		Credentials:     env.creds,
		Store:           env.store,
		Notifier:        env.notifier,
		Metrics:         env.metrics,
		ReconnectPolicy: policy,
		StoreRetryDelay: time.Millisecond,
	})
	t.Cleanup(env.ctrl.Shutdown)
	return env
}

const (
	eventually = 2 * time.Second
	tick       = 5 * time.Millisecond
)
