package repository

import (
	"database/sql"
	"errors"
)

// findOne maps sql.ErrNoRows to a nil result so lookups report absence
// without an error.
func findOne[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
