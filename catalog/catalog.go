// Package catalog is the relational data access layer for doughub.
//
// It owns the SQLite schema (sources, questions, media, logs) and exposes
// a Store with idempotent upserts keyed on the (source_id, source_question_key)
// business key. Callers open their own Store per unit of work; entities
// returned from committed operations are snapshots, not live rows.
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dogebooch/doughub/dbopen"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps a catalog database for all mutating and read operations.
// A Store obtained from WithTx is bound to that transaction.
type Store struct {
	DB *sql.DB
	q  querier
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, q: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// WithTx runs fn inside a single transaction, retrying on transient
// SQLITE_BUSY. The Store passed to fn is bound to the transaction; all
// catalog operations performed through it commit or roll back together.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return dbopen.RunTx(ctx, s.DB, func(sqltx *sql.Tx) error {
		return fn(&Store{DB: s.DB, q: sqltx})
	})
}

func persistErr(op string, err error) error {
	return fmt.Errorf("catalog: %s: %w: %w", op, ErrPersistence, err)
}
