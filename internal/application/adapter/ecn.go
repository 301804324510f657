package adapter

import (
	"context"

	"github.com/garyjia/pm-approval/internal/application/apperr"
	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/application/workflow"
	"github.com/garyjia/pm-approval/internal/domain/entity"
)

var ecnWriteback = map[entity.InstanceStatus]entity.ECNStatus{
	entity.InstanceStatusApproved:  entity.ECNStatusApproved,
	entity.InstanceStatusRejected:  entity.ECNStatusRejected,
	entity.InstanceStatusWithdrawn: entity.ECNStatusDraft,
}

// ECNAdapter submits engineering change notices for approval
type ECNAdapter struct {
	ecns   port.ECNRepository
	engine workflow.Engine
	tx     port.TransactionManager
	logger Logger
}

// NewECNAdapter creates the ECN adapter
func NewECNAdapter(ecns port.ECNRepository, engine workflow.Engine, tx port.TransactionManager, logger Logger) *ECNAdapter {
	return &ECNAdapter{ecns: ecns, engine: engine, tx: tx, logger: logger}
}

func (a *ECNAdapter) EntityType() entity.EntityType {
	return entity.EntityTypeECN
}

func (a *ECNAdapter) BuildFormData(ctx context.Context, ecnID int64) (map[string]interface{}, error) {
	ecn, err := a.load(ctx, ecnID)
	if err != nil {
		return nil, err
	}
	return ecnFormData(ecn), nil
}

func ecnFormData(ecn *entity.ECN) map[string]interface{} {
	return map[string]interface{}{
		"ecn_no":               ecn.ECNNo,
		"title":                ecn.Title,
		"project_id":           ecn.ProjectID,
		"change_type":          ecn.ChangeType,
		"cost_impact":          centsToAmount(ecn.CostImpactCents),
		"amount":               centsToAmount(ecn.CostImpactCents),
		"schedule_impact_days": ecn.ScheduleImpactDays,
		"applicant_id":         ecn.ApplicantID,
	}
}

// Submit opens an approval for a DRAFT or REJECTED ECN and marks it EVALUATING.
// The engine runs first so an already pending approval reports DuplicatePending.
func (a *ECNAdapter) Submit(ctx context.Context, ecnID, initiatorID int64, urgency entity.Urgency) (*entity.ApprovalInstance, error) {
	const op = "ecn_submit"

	var inst *entity.ApprovalInstance
	err := a.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		ecn, err := a.load(txCtx, ecnID)
		if err != nil {
			return err
		}

		inst, err = a.engine.Submit(txCtx, workflow.SubmitRequest{
			EntityType:  entity.EntityTypeECN,
			EntityID:    ecnID,
			InitiatorID: initiatorID,
			Urgency:     urgency,
			FormData:    ecnFormData(ecn),
		})
		if err != nil {
			return err
		}

		if !statusIn(ecn.Status, entity.ECNStatusDraft, entity.ECNStatusRejected) {
			return apperr.New(apperr.ErrInvalidState, op, "ECN %s is %s and cannot be submitted", ecn.ECNNo, ecn.Status)
		}
		return a.ecns.UpdateStatus(txCtx, ecnID, entity.ECNStatusEvaluating)
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("ECN submitted for approval", "ecn_id", ecnID, "instance_id", inst.ID)
	return inst, nil
}

func (a *ECNAdapter) OnStatusChange(ctx context.Context, ecnID int64, status entity.InstanceStatus) error {
	target, ok := ecnWriteback[status]
	if !ok {
		return nil
	}
	if err := a.ecns.UpdateStatus(ctx, ecnID, target); err != nil {
		return err
	}
	a.logger.Info("ECN status updated", "ecn_id", ecnID, "status", target)
	return nil
}

func (a *ECNAdapter) load(ctx context.Context, ecnID int64) (*entity.ECN, error) {
	ecn, err := a.ecns.GetByID(ctx, ecnID)
	if err != nil {
		return nil, err
	}
	if ecn == nil {
		return nil, apperr.New(apperr.ErrNotFound, "ecn", "ECN %d not found", ecnID)
	}
	return ecn, nil
}
