package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/pm-approval/internal/application/dispatcher"
	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/domain/entity"
	"github.com/garyjia/pm-approval/internal/domain/event"
)

const defaultInvoicePrefix = "INV"

// InvoiceConfig controls invoices generated for completed milestones
type InvoiceConfig struct {
	TaxRate    float64
	CodePrefix string
}

// MilestoneInvoiceHook drafts an invoice for every pending payment plan of a
// milestone once it is COMPLETED
type MilestoneInvoiceHook struct {
	plans    port.PaymentPlanRepository
	invoices port.InvoiceRepository
	cfg      InvoiceConfig
	logger   Logger
	clock    func() time.Time
}

// NewMilestoneInvoiceHook creates the hook. An empty prefix defaults to INV.
func NewMilestoneInvoiceHook(plans port.PaymentPlanRepository, invoices port.InvoiceRepository, cfg InvoiceConfig, logger Logger) *MilestoneInvoiceHook {
	if cfg.CodePrefix == "" {
		cfg.CodePrefix = defaultInvoicePrefix
	}
	return &MilestoneInvoiceHook{
		plans:    plans,
		invoices: invoices,
		cfg:      cfg,
		logger:   logger,
		clock:    time.Now,
	}
}

// WithClock overrides the issue date source
func (h *MilestoneInvoiceHook) WithClock(clock func() time.Time) *MilestoneInvoiceHook {
	h.clock = clock
	return h
}

// Register subscribes the hook to (PROJECT_MILESTONE, COMPLETED)
func (h *MilestoneInvoiceHook) Register(d dispatcher.Dispatcher) {
	d.RegisterNamed(string(entity.EntityTypeProjectMilestone), string(entity.MilestoneStatusCompleted),
		"milestone-invoice", h.Handle)
}

// Handle creates DRAFT invoices numbered {prefix}-{YYMMDD}-{seq:03d}, continuing
// from the highest sequence already issued that day
func (h *MilestoneInvoiceHook) Handle(ctx context.Context, evt *event.Event) error {
	milestoneID := evt.EntityID

	plans, err := h.plans.ListPendingByMilestone(ctx, milestoneID)
	if err != nil {
		return fmt.Errorf("list payment plans: %w", err)
	}

	issueDate := h.clock()
	prefix := fmt.Sprintf("%s-%s-", h.cfg.CodePrefix, issueDate.Format("060102"))

	codes, err := h.invoices.ListCodesWithPrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list invoice codes: %w", err)
	}
	seq := maxSequence(codes, prefix)

	created := 0
	for _, plan := range plans {
		if plan.InvoiceID != 0 {
			continue
		}

		seq++
		tax := int64(math.Round(float64(plan.PlannedAmountCents) * h.cfg.TaxRate))
		inv := &entity.Invoice{
			InvoiceCode:      fmt.Sprintf("%s%03d", prefix, seq),
			ProjectID:        plan.ProjectID,
			ContractID:       plan.ContractID,
			PaymentPlanID:    plan.ID,
			AmountCents:      plan.PlannedAmountCents,
			TaxRate:          h.cfg.TaxRate,
			TaxAmountCents:   tax,
			TotalAmountCents: plan.PlannedAmountCents + tax,
			Status:           entity.InvoiceStatusDraft,
			IssueDate:        issueDate,
		}
		if err := h.invoices.Create(ctx, inv); err != nil {
			return fmt.Errorf("create invoice for payment plan %d: %w", plan.ID, err)
		}
		if err := h.plans.AttachInvoice(ctx, plan.ID, inv.ID); err != nil {
			return fmt.Errorf("link invoice to payment plan %d: %w", plan.ID, err)
		}
		created++
	}

	h.logger.Info("Milestone invoices drafted", "milestone_id", milestoneID, "count", created)
	return nil
}

// maxSequence returns the largest numeric suffix among codes sharing prefix
func maxSequence(codes []string, prefix string) int {
	max := 0
	for _, code := range codes {
		n, err := strconv.Atoi(strings.TrimPrefix(code, prefix))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max
}
