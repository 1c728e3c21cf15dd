package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is satisfied by both *pgx.Conn and *pgxpool.Pool. Schema
// introspection and test helpers accept either.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// Begin starts a transaction. The context only affects the begin
	// command; there is no auto-rollback on context cancellation.
	Begin(ctx context.Context) (pgx.Tx, error)
}
