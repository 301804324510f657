package adapter

import (
	"context"
	"fmt"

	"github.com/garyjia/pm-approval/internal/application/apperr"
	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/application/workflow"
	"github.com/garyjia/pm-approval/internal/domain/entity"
)

var acceptanceWriteback = map[entity.InstanceStatus]entity.AcceptanceStatus{
	entity.InstanceStatusApproved:  entity.AcceptanceStatusAccepted,
	entity.InstanceStatusRejected:  entity.AcceptanceStatusRejected,
	entity.InstanceStatusWithdrawn: entity.AcceptanceStatusCompleted,
}

// MilestoneCompleter completes the billing milestone an accepted order is tied to
type MilestoneCompleter interface {
	Complete(ctx context.Context, milestoneID int64) error
}

// AcceptanceAdapter submits acceptance orders for approval.
// Orders move COMPLETED -> IN_APPROVAL -> ACCEPTED | REJECTED.
type AcceptanceAdapter struct {
	orders     port.AcceptanceRepository
	milestones MilestoneCompleter
	engine     workflow.Engine
	tx         port.TransactionManager
	logger     Logger
}

// NewAcceptanceAdapter creates the acceptance order adapter. milestones may be
// nil, in which case acceptance never completes a milestone.
func NewAcceptanceAdapter(orders port.AcceptanceRepository, milestones MilestoneCompleter, engine workflow.Engine,
	tx port.TransactionManager, logger Logger) *AcceptanceAdapter {
	return &AcceptanceAdapter{
		orders:     orders,
		milestones: milestones,
		engine:     engine,
		tx:         tx,
		logger:     logger,
	}
}

func (a *AcceptanceAdapter) EntityType() entity.EntityType {
	return entity.EntityTypeAcceptanceOrder
}

func (a *AcceptanceAdapter) BuildFormData(ctx context.Context, orderID int64) (map[string]interface{}, error) {
	order, err := a.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return acceptanceFormData(order), nil
}

func acceptanceFormData(o *entity.AcceptanceOrder) map[string]interface{} {
	return map[string]interface{}{
		"order_no":        o.OrderNo,
		"project_id":      o.ProjectID,
		"milestone_id":    o.MilestoneID,
		"acceptance_type": o.AcceptanceType,
		"overall_result":  o.OverallResult,
		"pass_rate":       o.PassRate,
	}
}

// Submit opens an approval for a COMPLETED or REJECTED order and marks it IN_APPROVAL
func (a *AcceptanceAdapter) Submit(ctx context.Context, orderID, initiatorID int64, urgency entity.Urgency) (*entity.ApprovalInstance, error) {
	const op = "acceptance_submit"

	var inst *entity.ApprovalInstance
	err := a.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		order, err := a.load(txCtx, orderID)
		if err != nil {
			return err
		}

		inst, err = a.engine.Submit(txCtx, workflow.SubmitRequest{
			EntityType:  entity.EntityTypeAcceptanceOrder,
			EntityID:    orderID,
			InitiatorID: initiatorID,
			Urgency:     urgency,
			FormData:    acceptanceFormData(order),
		})
		if err != nil {
			return err
		}

		if !statusIn(order.Status, entity.AcceptanceStatusCompleted, entity.AcceptanceStatusRejected) {
			return apperr.New(apperr.ErrInvalidState, op, "acceptance order %s is %s and cannot be submitted", order.OrderNo, order.Status)
		}
		return a.orders.UpdateStatus(txCtx, orderID, entity.AcceptanceStatusInApproval)
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("Acceptance order submitted for approval", "order_id", orderID, "instance_id", inst.ID)
	return inst, nil
}

// OnStatusChange writes the outcome back and, once accepted, completes the
// linked milestone in the same transaction
func (a *AcceptanceAdapter) OnStatusChange(ctx context.Context, orderID int64, status entity.InstanceStatus) error {
	target, ok := acceptanceWriteback[status]
	if !ok {
		return nil
	}

	order, err := a.load(ctx, orderID)
	if err != nil {
		return err
	}
	if err := a.orders.UpdateStatus(ctx, orderID, target); err != nil {
		return err
	}

	if target == entity.AcceptanceStatusAccepted && order.MilestoneID != 0 && a.milestones != nil {
		if err := a.milestones.Complete(ctx, order.MilestoneID); err != nil {
			return fmt.Errorf("complete milestone %d: %w", order.MilestoneID, err)
		}
	}

	a.logger.Info("Acceptance order status updated", "order_id", orderID, "status", target)
	return nil
}

func (a *AcceptanceAdapter) load(ctx context.Context, orderID int64) (*entity.AcceptanceOrder, error) {
	order, err := a.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperr.New(apperr.ErrNotFound, "acceptance", "acceptance order %d not found", orderID)
	}
	return order, nil
}
