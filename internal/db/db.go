// Package db is a thin, hand-written query layer over pgx — the methods a
// sqlc-generated package would produce, written directly against the
// tenants/jobs schema in migrations/000001_init.up.sql.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn, and pgx.Tx, so callers
// can pass a pool for simple calls or a single connection/transaction when
// they need to hold one across a handful of statements.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries groups all prepared statements against a DBTX.
type Queries struct {
	db DBTX
}

// New creates a Queries bound to the given executor.
func New(dbtx DBTX) *Queries {
	return &Queries{db: dbtx}
}
