package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id            BIGSERIAL PRIMARY KEY,
		token         VARCHAR(255) NOT NULL UNIQUE,
		status        VARCHAR(32)  NOT NULL DEFAULT 'unauthenticated',
		scan_id       VARCHAR(255),
		scan_name     VARCHAR(255),
		delete_flag   VARCHAR(16)  NOT NULL DEFAULT 'active',
		created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
		CONSTRAINT sessions_status_check CHECK (status IN ('unauthenticated', 'authenticated')),
		CONSTRAINT sessions_delete_flag_check CHECK (delete_flag IN ('active', 'deleted'))
	)`,
	`CREATE INDEX IF NOT EXISTS sessions_status_delete_flag_idx ON sessions (status, delete_flag)`,
	`CREATE INDEX IF NOT EXISTS sessions_created_at_idx ON sessions (created_at)`,
}

// EnsureSchema creates the sessions table and its indexes when missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	log.Info().Msg("database schema ready")
	return nil
}
