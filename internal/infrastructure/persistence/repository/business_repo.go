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

// updateStatus writes a domain status and fails with ErrNotFound when no row matched
func updateStatus(ctx context.Context, db *sql.DB, table string, id int64, status string) error {
	result, err := sqlite.ExecutorFrom(ctx, db).ExecContext(ctx,
		`UPDATE `+table+` SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update %s status: %w", table, err)
	}
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.ErrNotFound, "update_status", "%s row %d not found", table, id)
	}
	return nil
}

// ECNRepository implements port.ECNRepository
type ECNRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewECNRepository creates a new ECN repository
func NewECNRepository(db *sql.DB, logger *zap.Logger) port.ECNRepository {
	return &ECNRepository{db: db, logger: logger}
}

// GetByID retrieves an ECN by ID
func (r *ECNRepository) GetByID(ctx context.Context, id int64) (*entity.ECN, error) {
	var ecn entity.ECN
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, ecn_no, title, project_id, change_type, cost_impact_cents,
			schedule_impact_days, status, applicant_id, created_at, updated_at
		FROM ecns WHERE id = ?
	`, id).Scan(
		&ecn.ID,
		&ecn.ECNNo,
		&ecn.Title,
		&ecn.ProjectID,
		&ecn.ChangeType,
		&ecn.CostImpactCents,
		&ecn.ScheduleImpactDays,
		&ecn.Status,
		&ecn.ApplicantID,
		&ecn.CreatedAt,
		&ecn.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ECN: %w", err)
	}
	return &ecn, nil
}

// UpdateStatus sets the ECN status
func (r *ECNRepository) UpdateStatus(ctx context.Context, id int64, status entity.ECNStatus) error {
	return updateStatus(ctx, r.db, "ecns", id, string(status))
}

// QuoteRepository implements port.QuoteRepository
type QuoteRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewQuoteRepository creates a new sales quote repository
func NewQuoteRepository(db *sql.DB, logger *zap.Logger) port.QuoteRepository {
	return &QuoteRepository{db: db, logger: logger}
}

// GetByID retrieves a sales quote by ID
func (r *QuoteRepository) GetByID(ctx context.Context, id int64) (*entity.SalesQuote, error) {
	var quote entity.SalesQuote
	var opportunityID sql.NullInt64

	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, quote_code, customer_id, opportunity_id, total_price_cents,
			total_cost_cents, status, owner_id, created_at, updated_at
		FROM sales_quotes WHERE id = ?
	`, id).Scan(
		&quote.ID,
		&quote.QuoteCode,
		&quote.CustomerID,
		&opportunityID,
		&quote.TotalPriceCents,
		&quote.TotalCostCents,
		&quote.Status,
		&quote.OwnerID,
		&quote.CreatedAt,
		&quote.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sales quote: %w", err)
	}
	quote.OpportunityID = opportunityID.Int64
	return &quote, nil
}

// UpdateStatus sets the quote status
func (r *QuoteRepository) UpdateStatus(ctx context.Context, id int64, status entity.QuoteStatus) error {
	return updateStatus(ctx, r.db, "sales_quotes", id, string(status))
}

// AcceptanceRepository implements port.AcceptanceRepository
type AcceptanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAcceptanceRepository creates a new acceptance order repository
func NewAcceptanceRepository(db *sql.DB, logger *zap.Logger) port.AcceptanceRepository {
	return &AcceptanceRepository{db: db, logger: logger}
}

// GetByID retrieves an acceptance order by ID
func (r *AcceptanceRepository) GetByID(ctx context.Context, id int64) (*entity.AcceptanceOrder, error) {
	var order entity.AcceptanceOrder
	var milestoneID sql.NullInt64

	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, order_no, project_id, milestone_id, acceptance_type, overall_result,
			pass_rate, status, created_at, updated_at
		FROM acceptance_orders WHERE id = ?
	`, id).Scan(
		&order.ID,
		&order.OrderNo,
		&order.ProjectID,
		&milestoneID,
		&order.AcceptanceType,
		&order.OverallResult,
		&order.PassRate,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get acceptance order: %w", err)
	}
	order.MilestoneID = milestoneID.Int64
	return &order, nil
}

// UpdateStatus sets the acceptance order status
func (r *AcceptanceRepository) UpdateStatus(ctx context.Context, id int64, status entity.AcceptanceStatus) error {
	return updateStatus(ctx, r.db, "acceptance_orders", id, string(status))
}
