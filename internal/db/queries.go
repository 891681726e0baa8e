package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/hpungsan/heritage/internal/errors"
)

// Querier is the subset of *sql.DB and *sql.Tx used by the stores, so every
// query can run standalone or inside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction and commits it.
// Any error from fn rolls the transaction back. A failed commit is returned as is;
// the transaction is finished either way.
func WithTx(ctx context.Context, database *sql.DB, fn func(q Querier) error) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// toInt64 converts a uint64 for storage in an INTEGER column.
func toInt64(v uint64, field string) (int64, error) {
	if v > math.MaxInt64 {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("%s %d exceeds storage range", field, v))
	}
	return int64(v), nil
}

// fromInt64 converts a stored INTEGER back, treating negatives as corrupt.
func fromInt64(v int64, field string) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("stored %s is negative: %d", field, v)
	}
	return uint64(v), nil
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return string(data), nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
