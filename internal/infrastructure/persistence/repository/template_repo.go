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

const templateColumns = `id, template_code, name, entity_type, version, is_active, created_at, updated_at`

// TemplateRepository implements port.TemplateRepository
type TemplateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sql.DB, logger *zap.Logger) port.TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a template and its steps
func (r *TemplateRepository) Create(ctx context.Context, tpl *entity.Template) error {
	exec := sqlite.ExecutorFrom(ctx, r.db)

	now := time.Now().UTC()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now

	result, err := exec.ExecContext(ctx, `
		INSERT INTO approval_templates (template_code, name, entity_type, version, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		tpl.TemplateCode,
		tpl.Name,
		tpl.EntityType,
		tpl.Version,
		tpl.IsActive,
		tpl.CreatedAt,
		tpl.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create template",
			zap.String("template_code", tpl.TemplateCode),
			zap.Error(err))
		return fmt.Errorf("failed to create template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	tpl.ID = id

	for i := range tpl.Steps {
		step := &tpl.Steps[i]
		step.TemplateID = id

		result, err := exec.ExecContext(ctx, `
			INSERT INTO approval_template_steps (
				template_id, step_order, node_name, approver_id, approver_role, condition_expression
			) VALUES (?, ?, ?, ?, ?, ?)
		`,
			id,
			step.StepOrder,
			step.NodeName,
			nullInt64(step.ApproverID),
			nullString(step.ApproverRole),
			nullString(step.ConditionExpression),
		)
		if err != nil {
			return fmt.Errorf("failed to create step %d: %w", step.StepOrder, err)
		}
		if step.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}

	return nil
}

// GetByID retrieves a template with its steps
func (r *TemplateRepository) GetByID(ctx context.Context, id int64) (*entity.Template, error) {
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM approval_templates WHERE id = ?`, id)
	return r.scanWithSteps(ctx, row)
}

// GetActiveByEntityType retrieves the active template for an entity type
func (r *TemplateRepository) GetActiveByEntityType(ctx context.Context, entityType entity.EntityType) (*entity.Template, error) {
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM approval_templates WHERE entity_type = ? AND is_active = 1`, entityType)
	return r.scanWithSteps(ctx, row)
}

// DeactivateByEntityType clears the active flag on every template of the type
func (r *TemplateRepository) DeactivateByEntityType(ctx context.Context, entityType entity.EntityType) error {
	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		UPDATE approval_templates SET is_active = 0, updated_at = ?
		WHERE entity_type = ? AND is_active = 1
	`, time.Now().UTC(), entityType)
	if err != nil {
		return fmt.Errorf("failed to deactivate templates: %w", err)
	}
	return nil
}

// MaxVersion returns the highest stored version of a template code
func (r *TemplateRepository) MaxVersion(ctx context.Context, templateCode string) (int, error) {
	var version int
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM approval_templates WHERE template_code = ?`, templateCode,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get max version: %w", err)
	}
	return version, nil
}

func (r *TemplateRepository) scanWithSteps(ctx context.Context, row rowScanner) (*entity.Template, error) {
	var tpl entity.Template
	err := row.Scan(
		&tpl.ID,
		&tpl.TemplateCode,
		&tpl.Name,
		&tpl.EntityType,
		&tpl.Version,
		&tpl.IsActive,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	steps, err := r.loadSteps(ctx, tpl.ID)
	if err != nil {
		return nil, err
	}
	tpl.Steps = steps
	return &tpl, nil
}

func (r *TemplateRepository) loadSteps(ctx context.Context, templateID int64) ([]entity.StepDefinition, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, `
		SELECT id, template_id, step_order, node_name, approver_id, approver_role, condition_expression
		FROM approval_template_steps
		WHERE template_id = ?
		ORDER BY step_order ASC
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	defer rows.Close()

	var steps []entity.StepDefinition
	for rows.Next() {
		var step entity.StepDefinition
		var approverID sql.NullInt64
		var approverRole, cond sql.NullString

		if err := rows.Scan(
			&step.ID,
			&step.TemplateID,
			&step.StepOrder,
			&step.NodeName,
			&approverID,
			&approverRole,
			&cond,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		step.ApproverID = approverID.Int64
		step.ApproverRole = approverRole.String
		step.ConditionExpression = cond.String
		steps = append(steps, step)
	}
	return steps, rows.Err()
}
