package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/pm-approval/internal/application/port"
	"go.uber.org/zap"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const txKey contextKey = "tx"

// txState travels in the context for the lifetime of one transaction
type txState struct {
	tx          *sql.Tx
	base        context.Context
	afterCommit []func(ctx context.Context)
}

// DB wraps sql.DB and implements TransactionManager
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database wrapper
func NewDB(sqlDB *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     sqlDB,
		logger: logger,
	}
}

// WithTransaction implements port.TransactionManager.
// A context that already carries a transaction joins it.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if state := stateFrom(ctx); state != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	state := &txState{tx: tx, base: context.WithoutCancel(ctx)}
	txCtx := context.WithValue(ctx, txKey, state)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, cb := range state.afterCommit {
		cb(state.base)
	}
	return nil
}

// AfterCommit implements port.TransactionManager
func (db *DB) AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if state := stateFrom(ctx); state != nil {
		state.afterCommit = append(state.afterCommit, fn)
		return
	}
	fn(context.WithoutCancel(ctx))
}

func stateFrom(ctx context.Context) *txState {
	if state, ok := ctx.Value(txKey).(*txState); ok {
		return state
	}
	return nil
}

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ExecutorFrom returns the transaction carried by ctx, or db when there is none.
// Repositories use it so their statements join the caller's transaction.
func ExecutorFrom(ctx context.Context, db *sql.DB) Executor {
	if state := stateFrom(ctx); state != nil {
		return state.tx
	}
	return db
}

// InTransaction reports whether ctx carries a transaction
func InTransaction(ctx context.Context) bool {
	return stateFrom(ctx) != nil
}

// Verify interface compliance
var _ port.TransactionManager = (*DB)(nil)
