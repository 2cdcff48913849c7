package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TransactionManager starts database transactions for domain services
type TransactionManager interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
}

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx, so repository
// helpers can run the same query inside or outside a transaction
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
