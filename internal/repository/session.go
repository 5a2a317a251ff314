package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/session-gateway-go/internal/model"
)

// SessionRepository is the durable session store. Every method is keyed by
// token and safe to retry.
type SessionRepository interface {
	// FindByToken is a direct lookup and also returns soft-deleted records.
	FindByToken(ctx context.Context, token string) (*model.SessionRecord, error)
	// Insert creates an unauthenticated record, or reactivates a deleted one.
	Insert(ctx context.Context, token string) error
	// Upsert writes the status and, when identity is non-nil, the account fields.
	Upsert(ctx context.Context, token string, status model.SessionStatus, identity *model.AccountIdentity) error
	MarkDeleted(ctx context.Context, token string) error
	ListExpired(ctx context.Context, cutoff time.Time) ([]string, error)
	ListActiveTokens(ctx context.Context) ([]string, error)
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db sessionDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) FindByToken(ctx context.Context, token string) (*model.SessionRecord, error) {
	var record model.SessionRecord
	err := r.db.GetContext(ctx, &record, `
		SELECT id, token, status, scan_id, scan_name, delete_flag, created_at, updated_at
		FROM sessions WHERE token = $1
	`, token)
	return findOne(&record, err)
}

func (r *sessionRepo) Insert(ctx context.Context, token string) error {
	// Reactivation restarts the expiry window.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (token, status, delete_flag, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (token) DO UPDATE SET
			status = EXCLUDED.status,
			delete_flag = EXCLUDED.delete_flag,
			created_at = NOW(),
			updated_at = NOW()
	`, token, model.SessionStatusUnauthenticated, model.DeleteFlagActive)
	return err
}

func (r *sessionRepo) Upsert(ctx context.Context, token string, status model.SessionStatus, identity *model.AccountIdentity) error {
	var scanID, scanName *string
	if identity != nil {
		scanID = nullable(identity.ID)
		scanName = nullable(identity.Name)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (token, status, scan_id, scan_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (token) DO UPDATE SET
			status = EXCLUDED.status,
			scan_id = COALESCE(EXCLUDED.scan_id, sessions.scan_id),
			scan_name = COALESCE(EXCLUDED.scan_name, sessions.scan_name),
			updated_at = NOW()
	`, token, status, scanID, scanName)
	return err
}

func (r *sessionRepo) MarkDeleted(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			delete_flag = $2,
			updated_at = NOW()
		WHERE token = $1
	`, token, model.DeleteFlagDeleted)
	return err
}

func (r *sessionRepo) ListExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	var tokens []string
	err := r.db.SelectContext(ctx, &tokens, `
		SELECT token FROM sessions
		WHERE status = $1
		AND delete_flag = $2
		AND created_at < $3
		ORDER BY created_at
	`, model.SessionStatusUnauthenticated, model.DeleteFlagActive, cutoff)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *sessionRepo) ListActiveTokens(ctx context.Context) ([]string, error) {
	var tokens []string
	err := r.db.SelectContext(ctx, &tokens, `
		SELECT token FROM sessions
		WHERE status = $1
		AND delete_flag = $2
		ORDER BY id
	`, model.SessionStatusAuthenticated, model.DeleteFlagActive)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
