package entity

import "time"

// MilestoneStatus is the status of a project milestone
type MilestoneStatus string

const (
	MilestoneStatusPending    MilestoneStatus = "PENDING"
	MilestoneStatusInProgress MilestoneStatus = "IN_PROGRESS"
	MilestoneStatusCompleted  MilestoneStatus = "COMPLETED"
)

// ProjectMilestone is a billing-relevant checkpoint of a project
type ProjectMilestone struct {
	ID            int64           `json:"id"`
	ProjectID     int64           `json:"project_id"`
	MilestoneCode string          `json:"milestone_code"`
	MilestoneName string          `json:"milestone_name"`
	Status        MilestoneStatus `json:"status"`
	ActualDate    *time.Time      `json:"actual_date,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PaymentPlanStatus is the status of a payment plan line
type PaymentPlanStatus string

const (
	PaymentPlanStatusPending  PaymentPlanStatus = "PENDING"
	PaymentPlanStatusInvoiced PaymentPlanStatus = "INVOICED"
	PaymentPlanStatusPaid     PaymentPlanStatus = "PAID"
)

// PaymentPlan is a scheduled customer payment linked to a milestone.
// InvoiceID is zero until an invoice has been generated.
type PaymentPlan struct {
	ID                 int64             `json:"id"`
	ProjectID          int64             `json:"project_id"`
	ContractID         int64             `json:"contract_id,omitempty"`
	MilestoneID        int64             `json:"milestone_id"`
	PaymentName        string            `json:"payment_name"`
	PlannedAmountCents int64             `json:"planned_amount_cents"`
	Status             PaymentPlanStatus `json:"status"`
	InvoiceID          int64             `json:"invoice_id,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// InvoiceStatus is the status of an outgoing invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft  InvoiceStatus = "DRAFT"
	InvoiceStatusIssued InvoiceStatus = "ISSUED"
)

// Invoice is an outgoing customer invoice
type Invoice struct {
	ID               int64         `json:"id"`
	InvoiceCode      string        `json:"invoice_code"`
	ProjectID        int64         `json:"project_id"`
	ContractID       int64         `json:"contract_id,omitempty"`
	PaymentPlanID    int64         `json:"payment_plan_id"`
	AmountCents      int64         `json:"amount_cents"`
	TaxRate          float64       `json:"tax_rate"`
	TaxAmountCents   int64         `json:"tax_amount_cents"`
	TotalAmountCents int64         `json:"total_amount_cents"`
	Status           InvoiceStatus `json:"status"`
	IssueDate        time.Time     `json:"issue_date"`
	CreatedAt        time.Time     `json:"created_at"`
}
