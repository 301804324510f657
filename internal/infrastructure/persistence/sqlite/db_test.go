package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openDB(t *testing.T) *DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", "file::memory:?_txlock=immediate")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	_, err = sqlDB.Exec(`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`)
	require.NoError(t, err)

	return NewDB(sqlDB, zap.NewNop())
}

func count(t *testing.T, db *DB) int {
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n))
	return n
}

func TestWithTransaction_CommitsAndRunsAfterCommit(t *testing.T) {
	db := openDB(t)
	var order []string

	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		assert.True(t, InTransaction(ctx))
		_, err := ExecutorFrom(ctx, db.DB).ExecContext(ctx, `INSERT INTO kv VALUES ('a', '1')`)
		db.AfterCommit(ctx, func(cbCtx context.Context) {
			assert.False(t, InTransaction(cbCtx), "callbacks must not see the finished transaction")
			order = append(order, "after-commit")
		})
		order = append(order, "body")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"body", "after-commit"}, order)
	assert.Equal(t, 1, count(t, db))
}

func TestWithTransaction_RollbackDropsCallbacks(t *testing.T) {
	db := openDB(t)
	boom := errors.New("hook failed")
	called := false

	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		_, err := ExecutorFrom(ctx, db.DB).ExecContext(ctx, `INSERT INTO kv VALUES ('a', '1')`)
		require.NoError(t, err)
		db.AfterCommit(ctx, func(context.Context) { called = true })
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
	assert.Equal(t, 0, count(t, db))
}

func TestWithTransaction_NestedJoinsOuter(t *testing.T) {
	db := openDB(t)
	var callbacks int

	err := db.WithTransaction(context.Background(), func(outer context.Context) error {
		inner := db.WithTransaction(outer, func(ctx context.Context) error {
			_, err := ExecutorFrom(ctx, db.DB).ExecContext(ctx, `INSERT INTO kv VALUES ('a', '1')`)
			db.AfterCommit(ctx, func(context.Context) { callbacks++ })
			return err
		})
		require.NoError(t, inner)
		assert.Equal(t, 0, callbacks, "inner callbacks wait for the outer commit")
		return errors.New("outer fails")
	})

	assert.Error(t, err)
	assert.Equal(t, 0, callbacks)
	assert.Equal(t, 0, count(t, db), "inner work rolls back with the outer transaction")
}

func TestAfterCommit_WithoutTransactionRunsImmediately(t *testing.T) {
	db := openDB(t)
	called := false

	db.AfterCommit(context.Background(), func(context.Context) { called = true })
	assert.True(t, called)
}

func TestWithTransaction_PanicRollsBack(t *testing.T) {
	db := openDB(t)

	assert.Panics(t, func() {
		_ = db.WithTransaction(context.Background(), func(ctx context.Context) error {
			_, _ = ExecutorFrom(ctx, db.DB).ExecContext(ctx, `INSERT INTO kv VALUES ('a', '1')`)
			panic("boom")
		})
	})
	assert.Equal(t, 0, count(t, db))
}
