//go:build integration

package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floroz/procura/pkg/database"
	"github.com/floroz/procura/pkg/testhelpers"
)

func TestPostgresTransactionManager_LockTimeout(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../services/bidding-service/migrations")
	t.Cleanup(testDB.Close)
	ctx := context.Background()

	tests := []struct {
		name        string
		lockTimeout time.Duration
		want        string
	}{
		{name: "applied inside the transaction", lockTimeout: 250 * time.Millisecond, want: "250ms"},
		{name: "zero keeps server default", lockTimeout: 0, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := database.NewPostgresTransactionManager(testDB.Pool, tt.lockTimeout)

			tx, err := manager.BeginTx(ctx)
			require.NoError(t, err)
			defer func() { _ = tx.Rollback(ctx) }()

			var got string
			require.NoError(t, tx.QueryRow(ctx, "SHOW lock_timeout").Scan(&got))
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("setting does not leak past the transaction", func(t *testing.T) {
		manager := database.NewPostgresTransactionManager(testDB.Pool, time.Second)
		tx, err := manager.BeginTx(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))

		var got string
		require.NoError(t, testDB.Pool.QueryRow(ctx, "SHOW lock_timeout").Scan(&got))
		assert.Equal(t, "0", got)
	})
}
