package port

import (
	"context"
	"time"

	"github.com/garyjia/pm-approval/internal/domain/entity"
)

// Lookups return (nil, nil) when the row does not exist. Conditional updates
// report whether a row matched so callers can detect lost races.

// TemplateRepository defines persistence operations for Template and its steps
type TemplateRepository interface {
	// Create inserts the template and its steps, filling in generated ids
	Create(ctx context.Context, tpl *entity.Template) error

	GetByID(ctx context.Context, id int64) (*entity.Template, error)
	GetActiveByEntityType(ctx context.Context, entityType entity.EntityType) (*entity.Template, error)

	// DeactivateByEntityType clears is_active on every template of the type
	DeactivateByEntityType(ctx context.Context, entityType entity.EntityType) error

	// MaxVersion returns the highest version stored for a template code, 0 if none
	MaxVersion(ctx context.Context, templateCode string) (int, error)
}

// InstanceRepository defines persistence operations for ApprovalInstance
type InstanceRepository interface {
	// Create inserts a PENDING instance. A second pending instance for the
	// same entity fails with apperr.ErrDuplicatePending.
	Create(ctx context.Context, instance *entity.ApprovalInstance) error

	GetByID(ctx context.Context, id int64) (*entity.ApprovalInstance, error)
	GetPendingByEntity(ctx context.Context, entityType entity.EntityType, entityID int64) (*entity.ApprovalInstance, error)

	// GetLatestByEntity returns the most recently created instance for the entity
	GetLatestByEntity(ctx context.Context, entityType entity.EntityType, entityID int64) (*entity.ApprovalInstance, error)

	// AdvanceIfPending moves the cursor and stores the routing snapshot
	AdvanceIfPending(ctx context.Context, id int64, stepOrder int, formData map[string]interface{}, at time.Time) (bool, error)

	// FinishIfPending sets a terminal status and completed_at. A nil formData
	// keeps the stored snapshot.
	FinishIfPending(ctx context.Context, id int64, status entity.InstanceStatus, formData map[string]interface{}, at time.Time) (bool, error)
}

// TaskRepository defines persistence operations for ApprovalTask
type TaskRepository interface {
	Create(ctx context.Context, task *entity.ApprovalTask) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalTask, error)

	// CompleteIfPending is the serialization point for concurrent actions on
	// one task: only one caller can move it out of PENDING.
	CompleteIfPending(ctx context.Context, id int64, status entity.TaskStatus, action entity.Action, comment string, at time.Time) (bool, error)

	// CancelPending moves every open task of the instance to CANCELLED
	CancelPending(ctx context.Context, instanceID int64, at time.Time) (int64, error)

	ListByInstance(ctx context.Context, instanceID int64) ([]*entity.ApprovalTask, error)

	// FirstForStep returns the earliest task created for a step of an instance
	FirstForStep(ctx context.Context, instanceID int64, stepOrder int) (*entity.ApprovalTask, error)

	ListPendingByAssignee(ctx context.Context, assigneeID int64, offset, limit int) ([]*entity.PendingTaskView, int, error)
}

// HistoryRepository defines persistence operations for ApprovalHistory.
// Entries are append-only and returned in the order they were written.
type HistoryRepository interface {
	Append(ctx context.Context, h *entity.ApprovalHistory) error
	ListByInstance(ctx context.Context, instanceID int64) ([]*entity.ApprovalHistory, error)
	ListByInstanceStep(ctx context.Context, instanceID int64, stepOrder int) ([]*entity.ApprovalHistory, error)
	ListByApprover(ctx context.Context, approverID int64, offset, limit int) ([]*entity.ApprovalHistory, int, error)
}

// UserDirectory answers identity and role questions for the resolver
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	HasRole(ctx context.Context, userID int64, roleCode string) (bool, error)

	// FirstActiveWithRole returns the lowest-id active user holding the role
	FirstActiveWithRole(ctx context.Context, roleCode string) (*entity.User, error)
}

// ECNRepository defines persistence operations for ECN
type ECNRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.ECN, error)
	UpdateStatus(ctx context.Context, id int64, status entity.ECNStatus) error
}

// QuoteRepository defines persistence operations for SalesQuote
type QuoteRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.SalesQuote, error)
	UpdateStatus(ctx context.Context, id int64, status entity.QuoteStatus) error
}

// AcceptanceRepository defines persistence operations for AcceptanceOrder
type AcceptanceRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.AcceptanceOrder, error)
	UpdateStatus(ctx context.Context, id int64, status entity.AcceptanceStatus) error
}

// MilestoneRepository defines persistence operations for ProjectMilestone
type MilestoneRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.ProjectMilestone, error)
	MarkCompleted(ctx context.Context, id int64, at time.Time) error
}

// PaymentPlanRepository defines persistence operations for PaymentPlan
type PaymentPlanRepository interface {
	// ListPendingByMilestone returns PENDING plans of the milestone, ascending by id
	ListPendingByMilestone(ctx context.Context, milestoneID int64) ([]*entity.PaymentPlan, error)

	// AttachInvoice links the invoice and moves the plan to INVOICED
	AttachInvoice(ctx context.Context, planID, invoiceID int64) error
}

// InvoiceRepository defines persistence operations for Invoice
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *entity.Invoice) error
	GetByID(ctx context.Context, id int64) (*entity.Invoice, error)

	// ListCodesWithPrefix returns every invoice code starting with prefix
	ListCodesWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	// WithTransaction runs fn in a transaction, joining one already carried by ctx
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// AfterCommit queues fn until the outermost transaction in ctx commits.
	// fn receives a context without the transaction or its cancellation.
	// Without a transaction fn runs immediately; on rollback it is dropped.
	AfterCommit(ctx context.Context, fn func(ctx context.Context))
}
