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

const taskColumns = `id, instance_id, step_order, node_name, assignee_id, delegated_from_id,
	status, action, comment, created_at, completed_at`

// TaskRepository implements port.TaskRepository
type TaskRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *sql.DB, logger *zap.Logger) port.TaskRepository {
	return &TaskRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new approval task
func (r *TaskRepository) Create(ctx context.Context, task *entity.ApprovalTask) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		INSERT INTO approval_tasks (
			instance_id, step_order, node_name, assignee_id, delegated_from_id,
			status, action, comment, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.InstanceID,
		task.StepOrder,
		task.NodeName,
		task.AssigneeID,
		nullInt64(task.DelegatedFromID),
		task.Status,
		nullString(string(task.Action)),
		nullString(task.Comment),
		task.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create task",
			zap.Int64("instance_id", task.InstanceID),
			zap.Int("step_order", task.StepOrder),
			zap.Error(err))
		return fmt.Errorf("failed to create task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	task.ID = id
	return nil
}

// GetByID retrieves a task by ID
func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalTask, error) {
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM approval_tasks WHERE id = ?`, id)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// CompleteIfPending records the outcome of a pending task
func (r *TaskRepository) CompleteIfPending(ctx context.Context, id int64, status entity.TaskStatus, action entity.Action, comment string, at time.Time) (bool, error) {
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		UPDATE approval_tasks
		SET status = ?, action = ?, comment = ?, completed_at = ?
		WHERE id = ? AND status = 'PENDING'
	`, status, nullString(string(action)), nullString(comment), at, id)
	if err != nil {
		r.logger.Error("Failed to complete task", zap.Int64("task_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to complete task: %w", err)
	}
	return affected(result)
}

// CancelPending cancels every open task of an instance
func (r *TaskRepository) CancelPending(ctx context.Context, instanceID int64, at time.Time) (int64, error) {
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		UPDATE approval_tasks
		SET status = 'CANCELLED', completed_at = ?
		WHERE instance_id = ? AND status = 'PENDING'
	`, at, instanceID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel tasks: %w", err)
	}
	return result.RowsAffected()
}

// ListByInstance retrieves all tasks of an instance in creation order
func (r *TaskRepository) ListByInstance(ctx context.Context, instanceID int64) ([]*entity.ApprovalTask, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx,
		`SELECT `+taskColumns+` FROM approval_tasks WHERE instance_id = ? ORDER BY id ASC`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*entity.ApprovalTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// FirstForStep retrieves the first task created for a step of an instance
func (r *TaskRepository) FirstForStep(ctx context.Context, instanceID int64, stepOrder int) (*entity.ApprovalTask, error) {
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM approval_tasks
		WHERE instance_id = ? AND step_order = ?
		ORDER BY id ASC LIMIT 1`, instanceID, stepOrder)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get first task for step: %w", err)
	}
	return task, nil
}

// ListPendingByAssignee pages through a user's open tasks, oldest first
func (r *TaskRepository) ListPendingByAssignee(ctx context.Context, assigneeID int64, offset, limit int) ([]*entity.PendingTaskView, int, error) {
	exec := sqlite.ExecutorFrom(ctx, r.db)

	var total int
	if err := exec.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM approval_tasks t
		JOIN approval_instances i ON i.id = t.instance_id
		WHERE t.assignee_id = ? AND t.status = 'PENDING' AND i.status = 'PENDING'
	`, assigneeID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count pending tasks: %w", err)
	}

	rows, err := exec.QueryContext(ctx, `
		SELECT t.id, t.instance_id, t.step_order, t.node_name, t.assignee_id, t.delegated_from_id,
			t.status, t.action, t.comment, t.created_at, t.completed_at,
			i.entity_type, i.entity_id, i.urgency
		FROM approval_tasks t
		JOIN approval_instances i ON i.id = t.instance_id
		WHERE t.assignee_id = ? AND t.status = 'PENDING' AND i.status = 'PENDING'
		ORDER BY t.id ASC
		LIMIT ? OFFSET ?
	`, assigneeID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pending tasks: %w", err)
	}
	defer rows.Close()

	items := []*entity.PendingTaskView{}
	for rows.Next() {
		var view entity.PendingTaskView
		task, err := scanTask(rows, &view.EntityType, &view.EntityID, &view.Urgency)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan pending task: %w", err)
		}
		view.Task = task
		items = append(items, &view)
	}
	return items, total, rows.Err()
}

// scanTask reads the task columns followed by any extra destinations
func scanTask(row rowScanner, extra ...interface{}) (*entity.ApprovalTask, error) {
	var task entity.ApprovalTask
	var delegatedFrom sql.NullInt64
	var action, comment sql.NullString
	var completedAt sql.NullTime

	dest := []interface{}{
		&task.ID,
		&task.InstanceID,
		&task.StepOrder,
		&task.NodeName,
		&task.AssigneeID,
		&delegatedFrom,
		&task.Status,
		&action,
		&comment,
		&task.CreatedAt,
		&completedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	task.DelegatedFromID = delegatedFrom.Int64
	task.Action = entity.Action(action.String)
	task.Comment = comment.String
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	return &task, nil
}
