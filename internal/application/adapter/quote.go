package adapter

import (
	"context"
	"math"

	"github.com/garyjia/pm-approval/internal/application/apperr"
	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/application/workflow"
	"github.com/garyjia/pm-approval/internal/domain/entity"
)

var quoteWriteback = map[entity.InstanceStatus]entity.QuoteStatus{
	entity.InstanceStatusApproved:  entity.QuoteStatusApproved,
	entity.InstanceStatusRejected:  entity.QuoteStatusRejected,
	entity.InstanceStatusWithdrawn: entity.QuoteStatusDraft,
}

// QuoteAdapter submits sales quotes for approval
type QuoteAdapter struct {
	quotes port.QuoteRepository
	engine workflow.Engine
	tx     port.TransactionManager
	logger Logger
}

// NewQuoteAdapter creates the sales quote adapter
func NewQuoteAdapter(quotes port.QuoteRepository, engine workflow.Engine, tx port.TransactionManager, logger Logger) *QuoteAdapter {
	return &QuoteAdapter{quotes: quotes, engine: engine, tx: tx, logger: logger}
}

func (a *QuoteAdapter) EntityType() entity.EntityType {
	return entity.EntityTypeSalesQuote
}

func (a *QuoteAdapter) BuildFormData(ctx context.Context, quoteID int64) (map[string]interface{}, error) {
	quote, err := a.load(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	return quoteFormData(quote), nil
}

// quoteFormData exposes the margin rounded to two decimals so templates can
// write conditions like "gross_margin < 15"
func quoteFormData(q *entity.SalesQuote) map[string]interface{} {
	return map[string]interface{}{
		"quote_code":     q.QuoteCode,
		"customer_id":    q.CustomerID,
		"opportunity_id": q.OpportunityID,
		"total_price":    centsToAmount(q.TotalPriceCents),
		"total_cost":     centsToAmount(q.TotalCostCents),
		"amount":         centsToAmount(q.TotalPriceCents),
		"gross_margin":   math.Round(q.GrossMarginPercent()*100) / 100,
		"owner_id":       q.OwnerID,
	}
}

// Submit opens an approval for a DRAFT or REJECTED quote and marks it IN_REVIEW
func (a *QuoteAdapter) Submit(ctx context.Context, quoteID, initiatorID int64, urgency entity.Urgency) (*entity.ApprovalInstance, error) {
	const op = "quote_submit"

	var inst *entity.ApprovalInstance
	err := a.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		quote, err := a.load(txCtx, quoteID)
		if err != nil {
			return err
		}

		inst, err = a.engine.Submit(txCtx, workflow.SubmitRequest{
			EntityType:  entity.EntityTypeSalesQuote,
			EntityID:    quoteID,
			InitiatorID: initiatorID,
			Urgency:     urgency,
			FormData:    quoteFormData(quote),
		})
		if err != nil {
			return err
		}

		if !statusIn(quote.Status, entity.QuoteStatusDraft, entity.QuoteStatusRejected) {
			return apperr.New(apperr.ErrInvalidState, op, "quote %s is %s and cannot be submitted", quote.QuoteCode, quote.Status)
		}
		return a.quotes.UpdateStatus(txCtx, quoteID, entity.QuoteStatusInReview)
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("Sales quote submitted for approval", "quote_id", quoteID, "instance_id", inst.ID)
	return inst, nil
}

func (a *QuoteAdapter) OnStatusChange(ctx context.Context, quoteID int64, status entity.InstanceStatus) error {
	target, ok := quoteWriteback[status]
	if !ok {
		return nil
	}
	if err := a.quotes.UpdateStatus(ctx, quoteID, target); err != nil {
		return err
	}
	a.logger.Info("Sales quote status updated", "quote_id", quoteID, "status", target)
	return nil
}

func (a *QuoteAdapter) load(ctx context.Context, quoteID int64) (*entity.SalesQuote, error) {
	quote, err := a.quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, apperr.New(apperr.ErrNotFound, "quote", "sales quote %d not found", quoteID)
	}
	return quote, nil
}
