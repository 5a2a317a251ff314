package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-gateway-go/internal/credentials"
	apperrors "github.com/openclaw/session-gateway-go/internal/errors"
	"github.com/openclaw/session-gateway-go/internal/metrics"
	"github.com/openclaw/session-gateway-go/internal/model"
	"github.com/openclaw/session-gateway-go/internal/repository"
	"github.com/openclaw/session-gateway-go/internal/session"
	"github.com/openclaw/session-gateway-go/internal/transport"
	"github.com/openclaw/session-gateway-go/internal/util"
)

const (
	msgAlreadyLoggedIn = "Already logged in"
	msgQRNotReady      = "QR code not ready yet, please try again in a moment"
	msgQRFailed        = "Failed to generate QR code, please try again"
)

type QRPayload struct {
	Success bool   `json:"success"`
	Img     string `json:"img,omitempty"`
	Message string `json:"message,omitempty"`
}

type QRResult struct {
	Status   bool      `json:"status"`
	LoggedIn bool      `json:"loggedIn"`
	QR       QRPayload `json:"qr"`
}

type SendTextInput struct {
	ID      string
	Number  string
	Message string
}

type GatewayConfig struct {
	QRWait      time.Duration
	FreshQRWait time.Duration
	SessionTTL  time.Duration
}

// GatewayService implements the tenant-facing operations on top of the
// session controller.
type GatewayService struct {
	sessions *session.Controller
	repo     repository.SessionRepository
	creds    credentials.Store
	metrics  *metrics.Metrics
	cfg      GatewayConfig
	now      func() time.Time
}

func NewGatewayService(
	sessions *session.Controller,
	repo repository.SessionRepository,
	creds credentials.Store,
	m *metrics.Metrics,
	cfg GatewayConfig,
) *GatewayService {
	return &GatewayService{
		sessions: sessions,
		repo:     repo,
		creds:    creds,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
	}
}

// GetQR returns the pending pairing code for id, creating the session and
// its connection on first use.
func (s *GatewayService) GetQR(ctx context.Context, id string) (*QRResult, error) {
	if err := validateSessionID(id); err != nil {
		return nil, err
	}
	if err := s.ensureRecord(ctx, id); err != nil {
		return nil, err
	}

	conn, ok := s.sessions.GetConnection(id)
	if ok && conn.Snapshot().IsAuthenticated {
		return alreadyLoggedIn(), nil
	}

	var state session.State
	if ok {
		state = conn.Snapshot()
	} else {
		created, err := s.sessions.CreateSession(ctx, id)
		if err != nil {
			return nil, apperrors.Internal("Failed to start session").WithCause(err)
		}
		state = session.AwaitPairingCode(ctx, created, s.cfg.QRWait)
	}

	switch {
	case state.HasPairingCode():
		return qrReady(state.QRImage), nil
	case state.IsAuthenticated:
		return alreadyLoggedIn(), nil
	default:
		return &QRResult{QR: QRPayload{Message: msgQRNotReady}}, nil
	}
}

// GetFreshQR discards any existing pairing and starts over.
func (s *GatewayService) GetFreshQR(ctx context.Context, id string) (*QRResult, error) {
	if err := validateSessionID(id); err != nil {
		return nil, err
	}

	s.sessions.ClearConnection(id)
	if err := s.creds.Remove(id); err != nil {
		return nil, apperrors.Internal("Failed to reset credentials").WithCause(err)
	}
	if err := s.repo.Upsert(ctx, id, model.SessionStatusUnauthenticated, nil); err != nil {
		return nil, apperrors.Database(err)
	}

	conn, err := s.sessions.CreateSession(ctx, id)
	if err != nil {
		return nil, apperrors.Internal("Failed to start session").WithCause(err)
	}

	state := session.AwaitPairingCode(ctx, conn, s.cfg.FreshQRWait)
	if state.HasPairingCode() {
		return qrReady(state.QRImage), nil
	}
	return &QRResult{QR: QRPayload{Message: msgQRFailed}}, nil
}

// Logout unlinks the device, marks the session unauthenticated and wipes its
// credentials.
func (s *GatewayService) Logout(ctx context.Context, id string) error {
	if err := validateSessionID(id); err != nil {
		return err
	}

	if conn, ok := s.sessions.GetConnection(id); ok {
		if err := conn.Logout(ctx); err != nil {
			log.Warn().Err(err).Str("sessionId", id).Msg("transport logout failed, continuing local logout")
		}
	}

	if err := s.repo.Upsert(ctx, id, model.SessionStatusUnauthenticated, nil); err != nil {
		return apperrors.Database(err)
	}
	s.sessions.RemoveConnection(id)
	if err := s.creds.Remove(id); err != nil {
		return apperrors.Internal("Failed to remove credentials").WithCause(err)
	}

	log.Info().Str("sessionId", id).Msg("session logged out")
	return nil
}

// CleanExpired soft-deletes sessions that never completed pairing within the
// TTL and returns how many were removed.
func (s *GatewayService) CleanExpired(ctx context.Context) (int, error) {
	cutoff := model.ExpiryCutoff(s.now(), s.cfg.SessionTTL)
	tokens, err := s.repo.ListExpired(ctx, cutoff)
	if err != nil {
		return 0, apperrors.Database(err)
	}

	cleaned := 0
	for _, token := range tokens {
		s.sessions.RemoveConnection(token)
		if err := s.creds.Remove(token); err != nil {
			log.Warn().Err(err).Str("sessionId", token).Msg("failed to remove credentials of expired session")
		}
		if err := s.repo.MarkDeleted(ctx, token); err != nil {
			log.Error().Err(err).Str("sessionId", token).Msg("failed to mark session deleted")
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		log.Info().Int("count", cleaned).Time("cutoff", cutoff).Msg("cleaned expired sessions")
	}
	return cleaned, nil
}

func (s *GatewayService) SendText(ctx context.Context, input SendTextInput) error {
	if err := validateSessionID(input.ID); err != nil {
		return err
	}
	if input.Number == "" {
		return apperrors.MissingRequired("number")
	}
	if strings.TrimSpace(input.Message) == "" {
		return apperrors.MissingRequired("message")
	}
	if !strings.HasSuffix(input.Number, util.UserJIDSuffix) && !util.ValidatePhoneNumber(input.Number) {
		return apperrors.InvalidInput("number", "must contain 10 to 15 digits")
	}

	conn, ok := s.sessions.GetConnection(input.ID)
	if !ok || !conn.Snapshot().IsAuthenticated {
		return apperrors.SessionNotLoggedIn()
	}

	target := util.FormatPhoneNumber(input.Number)
	err := conn.Send(ctx, target, transport.Message{Text: util.DecodeMessageText(input.Message)})
	s.metrics.MessageSent(err == nil)
	if err != nil {
		return apperrors.External("transport", err)
	}
	return nil
}

func (s *GatewayService) ActiveConnections() int {
	return s.sessions.ActiveConnectionsCount()
}

// SessionState reports the live state of id, if it has a connection.
func (s *GatewayService) SessionState(id string) (session.State, bool) {
	conn, ok := s.sessions.GetConnection(id)
	if !ok {
		return session.State{}, false
	}
	return conn.Snapshot(), true
}

// ensureRecord creates the durable record on first use and reactivates a
// soft-deleted one.
func (s *GatewayService) ensureRecord(ctx context.Context, id string) error {
	record, err := s.repo.FindByToken(ctx, id)
	if err != nil {
		return apperrors.Database(err)
	}
	if record != nil && !record.IsDeleted() {
		return nil
	}
	if err := s.repo.Insert(ctx, id); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

func validateSessionID(id string) error {
	if id == "" {
		return apperrors.MissingRequired("id")
	}
	if !util.IsValidSessionID(id) {
		return apperrors.InvalidInput("id", "only letters, digits, '.', '_' and '-' are allowed")
	}
	return nil
}

func alreadyLoggedIn() *QRResult {
	return &QRResult{Status: true, LoggedIn: true, QR: QRPayload{Message: msgAlreadyLoggedIn}}
}

func qrReady(img string) *QRResult {
	return &QRResult{Status: true, QR: QRPayload{Success: true, Img: img}}
}
