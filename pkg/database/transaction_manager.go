package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTransactionManager opens read-committed transactions on a pool and
// bounds how long any statement inside them may queue for a row lock.
type PostgresTransactionManager struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresTransactionManager returns a manager over pool. A zero
// lockTimeout keeps the server default.
func NewPostgresTransactionManager(pool *pgxpool.Pool, lockTimeout time.Duration) *PostgresTransactionManager {
	return &PostgresTransactionManager{pool: pool, lockTimeout: lockTimeout}
}

func (m *PostgresTransactionManager) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if m.lockTimeout <= 0 {
		return tx, nil
	}

	// is_local = true scopes the setting to this transaction
	setting := fmt.Sprintf("%dms", m.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", setting); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("failed to apply lock_timeout %s: %w", setting, err)
	}
	return tx, nil
}
