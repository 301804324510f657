package entity

import "time"

// ECNStatus is the domain status of an engineering change notice
type ECNStatus string

const (
	ECNStatusDraft      ECNStatus = "DRAFT"
	ECNStatusEvaluating ECNStatus = "EVALUATING"
	ECNStatusApproved   ECNStatus = "APPROVED"
	ECNStatusRejected   ECNStatus = "REJECTED"
)

// ECN is an engineering change notice raised against a project
type ECN struct {
	ID                 int64     `json:"id"`
	ECNNo              string    `json:"ecn_no"`
	Title              string    `json:"title"`
	ProjectID          int64     `json:"project_id"`
	ChangeType         string    `json:"change_type"`
	CostImpactCents    int64     `json:"cost_impact_cents"`
	ScheduleImpactDays int       `json:"schedule_impact_days"`
	Status             ECNStatus `json:"status"`
	ApplicantID        int64     `json:"applicant_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// QuoteStatus is the domain status of a sales quote
type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "DRAFT"
	QuoteStatusInReview QuoteStatus = "IN_REVIEW"
	QuoteStatusApproved QuoteStatus = "APPROVED"
	QuoteStatusRejected QuoteStatus = "REJECTED"
)

// SalesQuote is a priced offer to a customer
type SalesQuote struct {
	ID              int64       `json:"id"`
	QuoteCode       string      `json:"quote_code"`
	CustomerID      int64       `json:"customer_id"`
	OpportunityID   int64       `json:"opportunity_id,omitempty"`
	TotalPriceCents int64       `json:"total_price_cents"`
	TotalCostCents  int64       `json:"total_cost_cents"`
	Status          QuoteStatus `json:"status"`
	OwnerID         int64       `json:"owner_id"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// GrossMarginPercent returns (price - cost) / price * 100, or 0 when there is no price
func (q *SalesQuote) GrossMarginPercent() float64 {
	if q.TotalPriceCents == 0 {
		return 0
	}
	return float64(q.TotalPriceCents-q.TotalCostCents) / float64(q.TotalPriceCents) * 100
}

// AcceptanceStatus is the domain status of an acceptance order
type AcceptanceStatus string

const (
	AcceptanceStatusDraft      AcceptanceStatus = "DRAFT"
	AcceptanceStatusCompleted  AcceptanceStatus = "COMPLETED"
	AcceptanceStatusInApproval AcceptanceStatus = "IN_APPROVAL"
	AcceptanceStatusAccepted   AcceptanceStatus = "ACCEPTED"
	AcceptanceStatusRejected   AcceptanceStatus = "REJECTED"
)

// AcceptanceOrder records a FAT/SAT/FINAL acceptance run for a project.
// MilestoneID is zero when the order is not tied to a billing milestone.
type AcceptanceOrder struct {
	ID             int64            `json:"id"`
	OrderNo        string           `json:"order_no"`
	ProjectID      int64            `json:"project_id"`
	MilestoneID    int64            `json:"milestone_id,omitempty"`
	AcceptanceType string           `json:"acceptance_type"`
	OverallResult  string           `json:"overall_result"`
	PassRate       float64          `json:"pass_rate"`
	Status         AcceptanceStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}
