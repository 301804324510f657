package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/pm-approval/internal/application/apperr"
	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/domain/entity"
	"github.com/garyjia/pm-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const instanceColumns = `id, entity_type, entity_id, template_id, initiator_id, status, urgency,
	current_step, form_data, created_at, updated_at, completed_at`

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new approval instance. The partial unique index on pending
// instances turns a concurrent second submission into ErrDuplicatePending.
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.ApprovalInstance) error {
	formData, err := encodeFormData(instance.FormData)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}
	if instance.UpdatedAt.IsZero() {
		instance.UpdatedAt = instance.CreatedAt
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		INSERT INTO approval_instances (
			entity_type, entity_id, template_id, initiator_id, status, urgency,
			current_step, form_data, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		instance.EntityType,
		instance.EntityID,
		instance.TemplateID,
		instance.InitiatorID,
		instance.Status,
		instance.Urgency,
		instance.CurrentStep,
		formData,
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.ErrDuplicatePending, "submit",
				"%s %d already has a pending approval", instance.EntityType, instance.EntityID)
		}
		r.logger.Error("Failed to create instance",
			zap.String("entity_type", string(instance.EntityType)),
			zap.Int64("entity_id", instance.EntityID),
			zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	instance.ID = id
	return nil
}

// GetByID retrieves an approval instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalInstance, error) {
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM approval_instances WHERE id = ?`, id)
	return scanInstance(row)
}

// GetPendingByEntity retrieves the pending instance of a business entity
func (r *InstanceRepository) GetPendingByEntity(ctx context.Context, entityType entity.EntityType, entityID int64) (*entity.ApprovalInstance, error) {
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM approval_instances
		WHERE entity_type = ? AND entity_id = ? AND status = 'PENDING'`, entityType, entityID)
	return scanInstance(row)
}

// GetLatestByEntity retrieves the newest instance of a business entity
func (r *InstanceRepository) GetLatestByEntity(ctx context.Context, entityType entity.EntityType, entityID int64) (*entity.ApprovalInstance, error) {
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM approval_instances
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY id DESC LIMIT 1`, entityType, entityID)
	return scanInstance(row)
}

// AdvanceIfPending moves the step cursor of a pending instance
func (r *InstanceRepository) AdvanceIfPending(ctx context.Context, id int64, stepOrder int, formData map[string]interface{}, at time.Time) (bool, error) {
	data, err := encodeOptionalFormData(formData)
	if err != nil {
		return false, err
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		UPDATE approval_instances
		SET current_step = ?, form_data = COALESCE(?, form_data), updated_at = ?
		WHERE id = ? AND status = 'PENDING'
	`, stepOrder, data, at, id)
	if err != nil {
		r.logger.Error("Failed to advance instance", zap.Int64("instance_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to advance instance: %w", err)
	}
	return affected(result)
}

// FinishIfPending moves a pending instance to a terminal status
func (r *InstanceRepository) FinishIfPending(ctx context.Context, id int64, status entity.InstanceStatus, formData map[string]interface{}, at time.Time) (bool, error) {
	data, err := encodeOptionalFormData(formData)
	if err != nil {
		return false, err
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		UPDATE approval_instances
		SET status = ?, form_data = COALESCE(?, form_data), completed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'PENDING'
	`, status, data, at, at, id)
	if err != nil {
		r.logger.Error("Failed to finish instance",
			zap.Int64("instance_id", id),
			zap.String("status", string(status)),
			zap.Error(err))
		return false, fmt.Errorf("failed to finish instance: %w", err)
	}
	return affected(result)
}

func scanInstance(row rowScanner) (*entity.ApprovalInstance, error) {
	var instance entity.ApprovalInstance
	var formData string
	var completedAt sql.NullTime

	err := row.Scan(
		&instance.ID,
		&instance.EntityType,
		&instance.EntityID,
		&instance.TemplateID,
		&instance.InitiatorID,
		&instance.Status,
		&instance.Urgency,
		&instance.CurrentStep,
		&formData,
		&instance.CreatedAt,
		&instance.UpdatedAt,
		&completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if instance.FormData, err = decodeFormData(formData); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Time
	}
	return &instance, nil
}
