package service

import (
	"context"
	"fmt"

	"github.com/garyjia/pm-approval/internal/application/adapter"
	"github.com/garyjia/pm-approval/internal/application/apperr"
	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/application/workflow"
	"github.com/garyjia/pm-approval/internal/domain/entity"
)

const maxPageSize = 100

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ApprovalService is the internal API callers use to drive approvals.
// Submissions go through the entity's adapter; task actions go to the engine.
type ApprovalService interface {
	SubmitForApproval(ctx context.Context, entityType entity.EntityType, entityID, initiatorID int64, urgency entity.Urgency) (*SubmitResult, error)
	ApproveTask(ctx context.Context, taskID, approverID int64, comment string) (*ActionResult, error)
	RejectTask(ctx context.Context, taskID, approverID int64, comment string) (*ActionResult, error)
	DelegateTask(ctx context.Context, taskID, approverID, delegateToID int64, comment string) (*ActionResult, error)
	WithdrawInstance(ctx context.Context, entityType entity.EntityType, entityID, userID int64) (*WithdrawResult, error)
	ListPendingTasks(ctx context.Context, userID int64, offset, limit int) (*PendingTaskPage, error)
	GetApprovalStatus(ctx context.Context, entityType entity.EntityType, entityID int64) (*ApprovalStatus, error)
	GetApprovalHistory(ctx context.Context, userID int64, offset, limit int) (*HistoryPage, error)
}

// SubmitResult is returned by SubmitForApproval
type SubmitResult struct {
	InstanceID int64 `json:"instance_id"`
}

// ActionResult is returned by task actions
type ActionResult struct {
	InstanceID     int64                 `json:"instance_id"`
	InstanceStatus entity.InstanceStatus `json:"instance_status"`
	CurrentStep    int                   `json:"current_step"`
}

// WithdrawResult is returned by WithdrawInstance
type WithdrawResult struct {
	InstanceID int64  `json:"instance_id"`
	Status     string `json:"status"`
}

// PendingTaskPage is one page of a user's open tasks
type PendingTaskPage struct {
	Items []*entity.PendingTaskView `json:"items"`
	Total int                       `json:"total"`
}

// ApprovalStatus is the latest instance of an entity with its tasks and audit trail
type ApprovalStatus struct {
	Instance *entity.ApprovalInstance  `json:"instance"`
	Tasks    []*entity.ApprovalTask    `json:"tasks"`
	History  []*entity.ApprovalHistory `json:"task_history"`
}

// HistoryPage is one page of the actions a user performed
type HistoryPage struct {
	Items []*entity.ApprovalHistory `json:"items"`
	Total int                       `json:"total"`
}

type approvalServiceImpl struct {
	adapters  *adapter.Set
	engine    workflow.Engine
	instances port.InstanceRepository
	tasks     port.TaskRepository
	history   port.HistoryRepository
	txManager port.TransactionManager
	logger    Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	adapters *adapter.Set,
	engine workflow.Engine,
	instances port.InstanceRepository,
	tasks port.TaskRepository,
	history port.HistoryRepository,
	txManager port.TransactionManager,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		adapters:  adapters,
		engine:    engine,
		instances: instances,
		tasks:     tasks,
		history:   history,
		txManager: txManager,
		logger:    logger,
	}
}

func (s *approvalServiceImpl) SubmitForApproval(ctx context.Context, entityType entity.EntityType, entityID, initiatorID int64, urgency entity.Urgency) (*SubmitResult, error) {
	a, err := s.adapters.Get(entityType)
	if err != nil {
		return nil, err
	}

	inst, err := a.Submit(ctx, entityID, initiatorID, urgency)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{InstanceID: inst.ID}, nil
}

func (s *approvalServiceImpl) ApproveTask(ctx context.Context, taskID, approverID int64, comment string) (*ActionResult, error) {
	return actionResult(s.engine.Approve(ctx, taskID, approverID, comment))
}

func (s *approvalServiceImpl) RejectTask(ctx context.Context, taskID, approverID int64, comment string) (*ActionResult, error) {
	return actionResult(s.engine.Reject(ctx, taskID, approverID, comment))
}

func (s *approvalServiceImpl) DelegateTask(ctx context.Context, taskID, approverID, delegateToID int64, comment string) (*ActionResult, error) {
	return actionResult(s.engine.Delegate(ctx, taskID, approverID, delegateToID, comment))
}

func actionResult(inst *entity.ApprovalInstance, err error) (*ActionResult, error) {
	if err != nil {
		return nil, err
	}
	return &ActionResult{
		InstanceID:     inst.ID,
		InstanceStatus: inst.Status,
		CurrentStep:    inst.CurrentStep,
	}, nil
}

// WithdrawInstance withdraws the pending approval of an entity
func (s *approvalServiceImpl) WithdrawInstance(ctx context.Context, entityType entity.EntityType, entityID, userID int64) (*WithdrawResult, error) {
	const op = "withdraw"

	var inst *entity.ApprovalInstance
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		pending, err := s.instances.GetPendingByEntity(txCtx, entityType, entityID)
		if err != nil {
			return fmt.Errorf("load pending instance: %w", err)
		}

		if pending == nil {
			latest, err := s.instances.GetLatestByEntity(txCtx, entityType, entityID)
			if err != nil {
				return fmt.Errorf("load latest instance: %w", err)
			}
			if latest == nil {
				return apperr.New(apperr.ErrNotFound, op, "%s %d has no approval", entityType, entityID)
			}
			return apperr.New(apperr.ErrInvalidState, op, "approval is already %s", latest.Status).
				WithInstance(latest.ID, latest.Status)
		}

		inst, err = s.engine.Withdraw(txCtx, pending.ID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &WithdrawResult{InstanceID: inst.ID, Status: "withdrawn"}, nil
}

func (s *approvalServiceImpl) ListPendingTasks(ctx context.Context, userID int64, offset, limit int) (*PendingTaskPage, error) {
	items, total, err := s.engine.GetPendingTasks(ctx, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	return &PendingTaskPage{Items: items, Total: total}, nil
}

// GetApprovalStatus returns the most recent approval of an entity
func (s *approvalServiceImpl) GetApprovalStatus(ctx context.Context, entityType entity.EntityType, entityID int64) (*ApprovalStatus, error) {
	inst, err := s.instances.GetLatestByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	if inst == nil {
		return nil, apperr.New(apperr.ErrNotFound, "get_approval_status", "%s %d has no approval", entityType, entityID)
	}

	tasks, err := s.tasks.ListByInstance(ctx, inst.ID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	history, err := s.history.ListByInstance(ctx, inst.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	if tasks == nil {
		tasks = []*entity.ApprovalTask{}
	}
	return &ApprovalStatus{Instance: inst, Tasks: tasks, History: history}, nil
}

// GetApprovalHistory pages through the actions a user performed, in the order performed
func (s *approvalServiceImpl) GetApprovalHistory(ctx context.Context, userID int64, offset, limit int) (*HistoryPage, error) {
	if offset < 0 || limit <= 0 || limit > maxPageSize {
		return nil, apperr.New(apperr.ErrValidation, "get_approval_history",
			"offset must be >= 0 and limit between 1 and %d", maxPageSize)
	}

	items, total, err := s.history.ListByApprover(ctx, userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return &HistoryPage{Items: items, Total: total}, nil
}
