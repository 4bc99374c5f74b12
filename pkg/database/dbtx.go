package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the common subset of *pgxpool.Pool and pgx.Tx that repositories
// need. Accepting it instead of a concrete pool lets a repository run
// equally well against the pool (autocommit reads) or against an open
// transaction (the Ledger Store's Session), and lets tests substitute
// pgxmock without a second repository implementation.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}
