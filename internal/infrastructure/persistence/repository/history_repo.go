package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/domain/entity"
	"github.com/garyjia/pm-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const historyColumns = `id, instance_id, step_order, action, approver_id, delegate_to_id, comment, timestamp`

// HistoryRepository implements port.HistoryRepository.
// Rows are append-only; a trigger rejects updates.
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append writes an audit entry
func (r *HistoryRepository) Append(ctx context.Context, h *entity.ApprovalHistory) error {
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now().UTC()
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		INSERT INTO approval_history (
			instance_id, step_order, action, approver_id, delegate_to_id, comment, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		h.InstanceID,
		h.StepOrder,
		h.Action,
		h.ApproverID,
		nullInt64(h.DelegateToID),
		nullString(h.Comment),
		h.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to append history",
			zap.Int64("instance_id", h.InstanceID),
			zap.String("action", string(h.Action)),
			zap.Error(err))
		return fmt.Errorf("failed to append history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	h.ID = id
	return nil
}

// ListByInstance returns the audit trail of an instance in the order it was written
func (r *HistoryRepository) ListByInstance(ctx context.Context, instanceID int64) ([]*entity.ApprovalHistory, error) {
	return r.list(ctx,
		`SELECT `+historyColumns+` FROM approval_history WHERE instance_id = ? ORDER BY id ASC`, instanceID)
}

// ListByInstanceStep returns the entries written for one step of an instance
func (r *HistoryRepository) ListByInstanceStep(ctx context.Context, instanceID int64, stepOrder int) ([]*entity.ApprovalHistory, error) {
	return r.list(ctx,
		`SELECT `+historyColumns+` FROM approval_history
		WHERE instance_id = ? AND step_order = ? ORDER BY id ASC`, instanceID, stepOrder)
}

// ListByApprover pages through the actions a user performed, in the order performed
func (r *HistoryRepository) ListByApprover(ctx context.Context, approverID int64, offset, limit int) ([]*entity.ApprovalHistory, int, error) {
	var total int
	if err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM approval_history WHERE approver_id = ?`, approverID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count history: %w", err)
	}

	items, err := r.list(ctx,
		`SELECT `+historyColumns+` FROM approval_history
		WHERE approver_id = ? ORDER BY id ASC LIMIT ? OFFSET ?`, approverID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *HistoryRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalHistory, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	items := []*entity.ApprovalHistory{}
	for rows.Next() {
		var h entity.ApprovalHistory
		var delegateTo sql.NullInt64
		var comment sql.NullString

		if err := rows.Scan(
			&h.ID,
			&h.InstanceID,
			&h.StepOrder,
			&h.Action,
			&h.ApproverID,
			&delegateTo,
			&comment,
			&h.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		h.DelegateToID = delegateTo.Int64
		h.Comment = comment.String
		items = append(items, &h)
	}
	return items, rows.Err()
}
