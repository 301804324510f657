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

// MilestoneRepository implements port.MilestoneRepository
type MilestoneRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMilestoneRepository creates a new milestone repository
func NewMilestoneRepository(db *sql.DB, logger *zap.Logger) port.MilestoneRepository {
	return &MilestoneRepository{db: db, logger: logger}
}

// GetByID retrieves a milestone by ID
func (r *MilestoneRepository) GetByID(ctx context.Context, id int64) (*entity.ProjectMilestone, error) {
	var m entity.ProjectMilestone
	var actual sql.NullTime

	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, project_id, milestone_code, milestone_name, status, actual_date, created_at, updated_at
		FROM project_milestones WHERE id = ?
	`, id).Scan(
		&m.ID,
		&m.ProjectID,
		&m.MilestoneCode,
		&m.MilestoneName,
		&m.Status,
		&actual,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get milestone: %w", err)
	}
	if actual.Valid {
		m.ActualDate = &actual.Time
	}
	return &m, nil
}

// MarkCompleted sets the milestone COMPLETED with its actual date
func (r *MilestoneRepository) MarkCompleted(ctx context.Context, id int64, at time.Time) error {
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		UPDATE project_milestones SET status = ?, actual_date = ?, updated_at = ? WHERE id = ?
	`, entity.MilestoneStatusCompleted, at, at, id)
	if err != nil {
		r.logger.Error("Failed to complete milestone", zap.Int64("milestone_id", id), zap.Error(err))
		return fmt.Errorf("failed to complete milestone: %w", err)
	}
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.ErrNotFound, "complete_milestone", "milestone %d not found", id)
	}
	return nil
}

// PaymentPlanRepository implements port.PaymentPlanRepository
type PaymentPlanRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPaymentPlanRepository creates a new payment plan repository
func NewPaymentPlanRepository(db *sql.DB, logger *zap.Logger) port.PaymentPlanRepository {
	return &PaymentPlanRepository{db: db, logger: logger}
}

// ListPendingByMilestone returns the PENDING plans of a milestone in id order
func (r *PaymentPlanRepository) ListPendingByMilestone(ctx context.Context, milestoneID int64) ([]*entity.PaymentPlan, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, `
		SELECT id, project_id, contract_id, milestone_id, payment_name, planned_amount_cents,
			status, invoice_id, created_at, updated_at
		FROM payment_plans
		WHERE milestone_id = ? AND status = ?
		ORDER BY id ASC
	`, milestoneID, entity.PaymentPlanStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment plans: %w", err)
	}
	defer rows.Close()

	var plans []*entity.PaymentPlan
	for rows.Next() {
		var p entity.PaymentPlan
		var contractID, invoiceID sql.NullInt64

		if err := rows.Scan(
			&p.ID,
			&p.ProjectID,
			&contractID,
			&p.MilestoneID,
			&p.PaymentName,
			&p.PlannedAmountCents,
			&p.Status,
			&invoiceID,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment plan: %w", err)
		}
		p.ContractID = contractID.Int64
		p.InvoiceID = invoiceID.Int64
		plans = append(plans, &p)
	}
	return plans, rows.Err()
}

// AttachInvoice links an invoice to the plan and marks it INVOICED
func (r *PaymentPlanRepository) AttachInvoice(ctx context.Context, planID, invoiceID int64) error {
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		UPDATE payment_plans SET invoice_id = ?, status = ?, updated_at = ? WHERE id = ?
	`, invoiceID, entity.PaymentPlanStatusInvoiced, time.Now().UTC(), planID)
	if err != nil {
		return fmt.Errorf("failed to attach invoice: %w", err)
	}
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.ErrNotFound, "attach_invoice", "payment plan %d not found", planID)
	}
	return nil
}
