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

// InvoiceRepository implements port.InvoiceRepository
type InvoiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sql.DB, logger *zap.Logger) port.InvoiceRepository {
	return &InvoiceRepository{db: db, logger: logger}
}

// Create inserts an invoice
func (r *InvoiceRepository) Create(ctx context.Context, inv *entity.Invoice) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		INSERT INTO invoices (
			invoice_code, project_id, contract_id, payment_plan_id, amount_cents, tax_rate,
			tax_amount_cents, total_amount_cents, status, issue_date, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.InvoiceCode,
		inv.ProjectID,
		nullInt64(inv.ContractID),
		inv.PaymentPlanID,
		inv.AmountCents,
		inv.TaxRate,
		inv.TaxAmountCents,
		inv.TotalAmountCents,
		inv.Status,
		inv.IssueDate,
		inv.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create invoice",
			zap.String("invoice_code", inv.InvoiceCode),
			zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	inv.ID = id
	return nil
}

// GetByID retrieves an invoice by ID
func (r *InvoiceRepository) GetByID(ctx context.Context, id int64) (*entity.Invoice, error) {
	var inv entity.Invoice
	var contractID sql.NullInt64

	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, invoice_code, project_id, contract_id, payment_plan_id, amount_cents, tax_rate,
			tax_amount_cents, total_amount_cents, status, issue_date, created_at
		FROM invoices WHERE id = ?
	`, id).Scan(
		&inv.ID,
		&inv.InvoiceCode,
		&inv.ProjectID,
		&contractID,
		&inv.PaymentPlanID,
		&inv.AmountCents,
		&inv.TaxRate,
		&inv.TaxAmountCents,
		&inv.TotalAmountCents,
		&inv.Status,
		&inv.IssueDate,
		&inv.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	inv.ContractID = contractID.Int64
	return &inv, nil
}

// ListCodesWithPrefix returns the invoice codes that start with prefix
func (r *InvoiceRepository) ListCodesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, `
		SELECT invoice_code FROM invoices
		WHERE substr(invoice_code, 1, length(?)) = ?
		ORDER BY invoice_code ASC
	`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan invoice code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
