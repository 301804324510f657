package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/pm-approval/internal/application/apperr"
	"github.com/garyjia/pm-approval/internal/domain/entity"
	"github.com/garyjia/pm-approval/internal/domain/event"
	domainwf "github.com/garyjia/pm-approval/internal/domain/workflow"
)

const (
	actionSubmit = "SUBMIT"
	maxPageSize  = 100
)

// actionContext is everything an action on one task has loaded and checked
type actionContext struct {
	task    *entity.ApprovalTask
	inst    *entity.ApprovalInstance
	tpl     *entity.Template
	step    *entity.StepDefinition
	machine domainwf.StateMachine
}

func (r *SubmitRequest) normalize() error {
	const op = "submit"

	if r.EntityType == "" {
		return apperr.New(apperr.ErrValidation, op, "entity_type is required")
	}
	if r.EntityID <= 0 {
		return apperr.New(apperr.ErrValidation, op, "entity_id must be positive")
	}
	if r.InitiatorID <= 0 {
		return apperr.New(apperr.ErrValidation, op, "initiator_id must be positive")
	}
	urgency, ok := entity.ParseUrgency(string(r.Urgency))
	if !ok {
		return apperr.New(apperr.ErrValidation, op, "unknown urgency %q", r.Urgency)
	}
	r.Urgency = urgency
	if r.FormData == nil {
		r.FormData = map[string]interface{}{}
	}
	return nil
}

func (e *engineImpl) Submit(ctx context.Context, req SubmitRequest) (*entity.ApprovalInstance, error) {
	const op = "submit"

	if err := req.normalize(); err != nil {
		return nil, err
	}

	var inst *entity.ApprovalInstance
	err := e.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := e.instances.GetPendingByEntity(txCtx, req.EntityType, req.EntityID)
		if err != nil {
			return fmt.Errorf("check pending instance: %w", err)
		}
		if existing != nil {
			return apperr.New(apperr.ErrDuplicatePending, op, "%s %d already has a pending approval", req.EntityType, req.EntityID).
				WithInstance(existing.ID, existing.Status)
		}

		tpl, err := e.registry.GetActiveTemplate(txCtx, req.EntityType)
		if err != nil {
			return err
		}

		step, err := nextEligibleStep(tpl, 0, req.FormData)
		if err != nil {
			return err
		}
		if step == nil {
			return apperr.New(apperr.ErrConfiguration, op, "template %s has no reachable step for %s %d",
				tpl.TemplateCode, req.EntityType, req.EntityID)
		}

		assignee, err := e.assigneeFor(txCtx, step)
		if err != nil {
			return err
		}

		now := e.clock()
		inst = &entity.ApprovalInstance{
			EntityType:  req.EntityType,
			EntityID:    req.EntityID,
			TemplateID:  tpl.ID,
			InitiatorID: req.InitiatorID,
			Status:      entity.InstanceStatusPending,
			Urgency:     req.Urgency,
			CurrentStep: step.StepOrder,
			FormData:    req.FormData,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.instances.Create(txCtx, inst); err != nil {
			return err
		}

		task, err := e.openTask(txCtx, inst, step, assignee, 0, now)
		if err != nil {
			return err
		}

		evt := e.newEvent(event.TypeSubmitted, inst).
			WithActor(req.InitiatorID).
			WithTask(task.ID, task.AssigneeID, task.StepOrder).
			WithPayload("node_name", step.NodeName)
		e.afterCommit(txCtx, actionSubmit, evt)
		return nil
	})
	if err != nil {
		e.logger.Error("Failed to submit approval",
			"entity_type", req.EntityType,
			"entity_id", req.EntityID,
			"initiator_id", req.InitiatorID,
			"error", err,
		)
		return nil, err
	}

	e.logger.Info("Approval submitted",
		"instance_id", inst.ID,
		"entity_type", inst.EntityType,
		"entity_id", inst.EntityID,
		"step", inst.CurrentStep,
		"initiator_id", inst.InitiatorID,
	)
	return inst, nil
}

func (e *engineImpl) Approve(ctx context.Context, taskID, approverID int64, comment string) (*entity.ApprovalInstance, error) {
	const op = "approve"

	var result *entity.ApprovalInstance
	err := e.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		ac, err := e.prepareAction(txCtx, op, taskID, approverID)
		if err != nil {
			return err
		}

		now := e.clock()
		if err := e.claimTask(txCtx, op, ac, entity.TaskStatusApproved, entity.ActionApprove, approverID, 0, comment, now); err != nil {
			return err
		}

		formData, refreshed, err := e.routingData(txCtx, ac.inst)
		if err != nil {
			return err
		}

		next, err := nextEligibleStep(ac.tpl, ac.task.StepOrder, formData)
		if err != nil {
			return err
		}

		if next == nil {
			var snapshot map[string]interface{}
			if refreshed {
				snapshot = formData
			}
			if err := e.finish(txCtx, op, ac.inst, ac.machine, domainwf.TriggerComplete, entity.InstanceStatusApproved,
				snapshot, approverID, now, event.TypeApproved, entity.ActionApprove); err != nil {
				return err
			}
		} else if err := e.advance(txCtx, op, ac, next, formData, approverID, now); err != nil {
			return err
		}

		result, err = e.reload(txCtx, ac.inst.ID)
		return err
	})

	return e.done(op, result, taskID, approverID, err)
}

func (e *engineImpl) Reject(ctx context.Context, taskID, approverID int64, comment string) (*entity.ApprovalInstance, error) {
	const op = "reject"

	var result *entity.ApprovalInstance
	err := e.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		ac, err := e.prepareAction(txCtx, op, taskID, approverID)
		if err != nil {
			return err
		}

		now := e.clock()
		if err := e.claimTask(txCtx, op, ac, entity.TaskStatusRejected, entity.ActionReject, approverID, 0, comment, now); err != nil {
			return err
		}

		if err := e.finish(txCtx, op, ac.inst, ac.machine, domainwf.TriggerReject, entity.InstanceStatusRejected,
			nil, approverID, now, event.TypeRejected, entity.ActionReject); err != nil {
			return err
		}

		result, err = e.reload(txCtx, ac.inst.ID)
		return err
	})

	return e.done(op, result, taskID, approverID, err)
}

func (e *engineImpl) Delegate(ctx context.Context, taskID, approverID, delegateToID int64, comment string) (*entity.ApprovalInstance, error) {
	const op = "delegate"

	if delegateToID <= 0 {
		return nil, apperr.New(apperr.ErrValidation, op, "delegate_to_id must be positive")
	}
	if delegateToID == approverID {
		return nil, apperr.New(apperr.ErrValidation, op, "cannot delegate to yourself")
	}

	var result *entity.ApprovalInstance
	err := e.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		ac, err := e.prepareAction(txCtx, op, taskID, approverID)
		if err != nil {
			return err
		}

		if ac.task.AssigneeID != approverID {
			super, err := e.resolver.IsSuperuser(txCtx, approverID)
			if err != nil {
				return err
			}
			if !super {
				return apperr.New(apperr.ErrPermission, op, "only the current assignee may delegate, user %d is not", approverID).
					WithTask(ac.task.ID, ac.task.Status).
					WithInstance(ac.inst.ID, nil)
			}
		}
		if delegateToID == ac.task.AssigneeID {
			return apperr.New(apperr.ErrValidation, op, "task is already assigned to user %d", delegateToID).
				WithTask(ac.task.ID, ac.task.Status)
		}

		target, err := e.users.GetByID(txCtx, delegateToID)
		if err != nil {
			return fmt.Errorf("load delegate %d: %w", delegateToID, err)
		}
		if target == nil {
			return apperr.New(apperr.ErrNotFound, op, "delegate user %d not found", delegateToID)
		}
		if !target.IsActive {
			return apperr.New(apperr.ErrValidation, op, "delegate user %d is inactive", delegateToID)
		}

		if err := e.fire(txCtx, op, ac.inst, ac.machine, domainwf.TriggerDelegate); err != nil {
			return err
		}

		now := e.clock()
		if err := e.claimTask(txCtx, op, ac, entity.TaskStatusDelegated, entity.ActionDelegate, approverID, delegateToID, comment, now); err != nil {
			return err
		}

		task, err := e.openTask(txCtx, ac.inst, ac.step, delegateToID, approverID, now)
		if err != nil {
			return err
		}

		evt := e.newEvent(event.TypeDelegated, ac.inst).
			WithActor(approverID).
			WithTask(task.ID, task.AssigneeID, task.StepOrder).
			WithPayload("node_name", ac.step.NodeName).
			WithPayload("delegated_from", approverID)
		e.afterCommit(txCtx, string(entity.ActionDelegate), evt)

		result, err = e.reload(txCtx, ac.inst.ID)
		return err
	})

	return e.done(op, result, taskID, approverID, err)
}

func (e *engineImpl) Withdraw(ctx context.Context, instanceID, userID int64) (*entity.ApprovalInstance, error) {
	const op = "withdraw"

	var result *entity.ApprovalInstance
	err := e.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		inst, err := e.instances.GetByID(txCtx, instanceID)
		if err != nil {
			return fmt.Errorf("load instance %d: %w", instanceID, err)
		}
		if inst == nil {
			return apperr.New(apperr.ErrNotFound, op, "instance %d not found", instanceID)
		}
		if inst.IsTerminal() {
			return apperr.New(apperr.ErrInvalidState, op, "instance is already %s", inst.Status).
				WithInstance(inst.ID, inst.Status)
		}
		if inst.InitiatorID != userID {
			return apperr.New(apperr.ErrPermission, op, "only the initiator may withdraw, user %d is not", userID).
				WithInstance(inst.ID, inst.Status)
		}

		now := e.clock()
		machine := domainwf.NewApprovalMachine(domainwf.FromStatus(inst.Status))

		if _, err := e.tasks.CancelPending(txCtx, inst.ID, now); err != nil {
			return fmt.Errorf("cancel open tasks: %w", err)
		}

		if err := e.history.Append(txCtx, &entity.ApprovalHistory{
			InstanceID: inst.ID,
			StepOrder:  inst.CurrentStep,
			Action:     entity.ActionWithdraw,
			ApproverID: userID,
			Timestamp:  now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		if err := e.finish(txCtx, op, inst, machine, domainwf.TriggerWithdraw, entity.InstanceStatusWithdrawn,
			nil, userID, now, event.TypeWithdrawn, entity.ActionWithdraw); err != nil {
			return err
		}

		result, err = e.reload(txCtx, inst.ID)
		return err
	})
	if err != nil {
		e.logger.Error("Failed to withdraw approval", "instance_id", instanceID, "user_id", userID, "error", err)
		return nil, err
	}

	e.logger.Info("Approval withdrawn", "instance_id", instanceID, "user_id", userID)
	return result, nil
}

func (e *engineImpl) GetPendingTasks(ctx context.Context, userID int64, offset, limit int) ([]*entity.PendingTaskView, int, error) {
	if offset < 0 || limit <= 0 || limit > maxPageSize {
		return nil, 0, apperr.New(apperr.ErrValidation, "get_pending_tasks",
			"offset must be >= 0 and limit between 1 and %d", maxPageSize)
	}
	return e.tasks.ListPendingByAssignee(ctx, userID, offset, limit)
}

// prepareAction loads the task, its instance and step, and checks state
// before permission so a finished instance always reports InvalidState
func (e *engineImpl) prepareAction(ctx context.Context, op string, taskID, actorID int64) (*actionContext, error) {
	task, err := e.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task %d: %w", taskID, err)
	}
	if task == nil {
		return nil, apperr.New(apperr.ErrNotFound, op, "task %d not found", taskID)
	}

	inst, err := e.instances.GetByID(ctx, task.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("load instance %d: %w", task.InstanceID, err)
	}
	if inst == nil {
		return nil, apperr.New(apperr.ErrNotFound, op, "instance %d not found", task.InstanceID)
	}

	if inst.IsTerminal() {
		return nil, apperr.New(apperr.ErrInvalidState, op, "instance is already %s", inst.Status).
			WithInstance(inst.ID, inst.Status).
			WithTask(task.ID, nil)
	}
	if !task.IsPending() {
		return nil, apperr.New(apperr.ErrInvalidState, op, "task is %s, not PENDING", task.Status).
			WithTask(task.ID, task.Status).
			WithInstance(inst.ID, nil)
	}

	tpl, err := e.registry.GetTemplate(ctx, inst.TemplateID)
	if err != nil {
		return nil, err
	}
	step, ok := tpl.Step(task.StepOrder)
	if !ok {
		return nil, apperr.New(apperr.ErrConfiguration, op, "template %s has no step %d", tpl.TemplateCode, task.StepOrder).
			WithInstance(inst.ID, nil)
	}

	allowed, err := e.resolver.CanApprove(ctx, inst.ID, step, actorID)
	if err != nil {
		return nil, fmt.Errorf("authorize user %d: %w", actorID, err)
	}
	if !allowed {
		return nil, apperr.New(apperr.ErrPermission, op, "user %d may not act on step %d (%s)", actorID, step.StepOrder, step.NodeName).
			WithTask(task.ID, task.Status).
			WithInstance(inst.ID, nil)
	}

	return &actionContext{
		task:    task,
		inst:    inst,
		tpl:     tpl,
		step:    step,
		machine: domainwf.NewApprovalMachine(domainwf.FromStatus(inst.Status)),
	}, nil
}

// claimTask moves the task out of PENDING and writes the audit entry
func (e *engineImpl) claimTask(ctx context.Context, op string, ac *actionContext, status entity.TaskStatus, action entity.Action,
	actorID, delegateToID int64, comment string, now time.Time) error {
	ok, err := e.tasks.CompleteIfPending(ctx, ac.task.ID, status, action, comment, now)
	if err != nil {
		return fmt.Errorf("complete task %d: %w", ac.task.ID, err)
	}
	if !ok {
		return apperr.New(apperr.ErrInvalidState, op, "task was completed by a concurrent action").
			WithTask(ac.task.ID, ac.task.Status).
			WithInstance(ac.inst.ID, nil)
	}
	ac.task.Status = status

	if err := e.history.Append(ctx, &entity.ApprovalHistory{
		InstanceID:   ac.inst.ID,
		StepOrder:    ac.task.StepOrder,
		Action:       action,
		ApproverID:   actorID,
		DelegateToID: delegateToID,
		Comment:      comment,
		Timestamp:    now,
	}); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (e *engineImpl) advance(ctx context.Context, op string, ac *actionContext, next *entity.StepDefinition,
	formData map[string]interface{}, actorID int64, now time.Time) error {
	if err := e.fire(ctx, op, ac.inst, ac.machine, domainwf.TriggerAdvance); err != nil {
		return err
	}

	assignee, err := e.assigneeFor(ctx, next)
	if err != nil {
		return err
	}

	ok, err := e.instances.AdvanceIfPending(ctx, ac.inst.ID, next.StepOrder, formData, now)
	if err != nil {
		return fmt.Errorf("advance instance %d: %w", ac.inst.ID, err)
	}
	if !ok {
		return apperr.New(apperr.ErrInvalidState, op, "instance left PENDING concurrently").WithInstance(ac.inst.ID, nil)
	}
	ac.inst.CurrentStep = next.StepOrder

	task, err := e.openTask(ctx, ac.inst, next, assignee, 0, now)
	if err != nil {
		return err
	}

	evt := e.newEvent(event.TypeAdvanced, ac.inst).
		WithActor(actorID).
		WithTask(task.ID, task.AssigneeID, task.StepOrder).
		WithPayload("node_name", next.NodeName).
		WithPayload("from_step", ac.task.StepOrder)
	e.afterCommit(ctx, string(entity.ActionApprove), evt)
	return nil
}

// finish moves the instance to a terminal status and runs the status hooks
// inside the current transaction
func (e *engineImpl) finish(ctx context.Context, op string, inst *entity.ApprovalInstance, machine domainwf.StateMachine,
	trigger domainwf.Trigger, status entity.InstanceStatus, formData map[string]interface{},
	actorID int64, now time.Time, evtType event.Type, action entity.Action) error {
	if err := e.fire(ctx, op, inst, machine, trigger); err != nil {
		return err
	}

	ok, err := e.instances.FinishIfPending(ctx, inst.ID, status, formData, now)
	if err != nil {
		return fmt.Errorf("finish instance %d: %w", inst.ID, err)
	}
	if !ok {
		return apperr.New(apperr.ErrInvalidState, op, "instance left PENDING concurrently").WithInstance(inst.ID, nil)
	}
	inst.Status = status
	inst.CompletedAt = &now

	evt := e.newEvent(evtType, inst).WithActor(actorID)
	if err := e.hooks.Dispatch(ctx, evt); err != nil {
		e.metrics.RecordHookFailure(string(inst.EntityType), string(status))
		return err
	}

	e.afterCommit(ctx, string(action), evt)
	return nil
}

func (e *engineImpl) fire(ctx context.Context, op string, inst *entity.ApprovalInstance, machine domainwf.StateMachine, trigger domainwf.Trigger) error {
	if err := machine.Fire(ctx, trigger); err != nil {
		return apperr.Wrap(apperr.ErrInvalidState, op, err).WithInstance(inst.ID, inst.Status)
	}
	return nil
}

func (e *engineImpl) openTask(ctx context.Context, inst *entity.ApprovalInstance, step *entity.StepDefinition,
	assigneeID, delegatedFromID int64, now time.Time) (*entity.ApprovalTask, error) {
	task := &entity.ApprovalTask{
		InstanceID:      inst.ID,
		StepOrder:       step.StepOrder,
		NodeName:        step.NodeName,
		AssigneeID:      assigneeID,
		DelegatedFromID: delegatedFromID,
		Status:          entity.TaskStatusPending,
		CreatedAt:       now,
	}
	if err := e.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task for step %d: %w", step.StepOrder, err)
	}
	return task, nil
}

func (e *engineImpl) reload(ctx context.Context, instanceID int64) (*entity.ApprovalInstance, error) {
	inst, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("reload instance %d: %w", instanceID, err)
	}
	if inst == nil {
		return nil, apperr.New(apperr.ErrNotFound, "reload", "instance %d not found", instanceID)
	}
	return inst, nil
}

func (e *engineImpl) newEvent(typ event.Type, inst *entity.ApprovalInstance) *event.Event {
	return event.NewEvent(typ, string(inst.EntityType), inst.EntityID, inst.ID, string(inst.Status)).
		WithPayload("template_id", inst.TemplateID).
		WithPayload("initiator_id", inst.InitiatorID).
		WithPayload("urgency", string(inst.Urgency))
}

// afterCommit counts the action and hands the event to publishers once the
// outermost transaction commits. Publisher errors are only logged.
func (e *engineImpl) afterCommit(ctx context.Context, action string, evt *event.Event) {
	e.tx.AfterCommit(ctx, func(ctx context.Context) {
		e.metrics.RecordAction(evt.EntityType, action)

		for _, p := range e.publishers {
			if err := p.Publish(ctx, evt); err != nil {
				e.logger.Error("Failed to publish approval event",
					"publisher", p.Name(),
					"event_type", evt.Type,
					"event_id", evt.ID,
					"instance_id", evt.InstanceID,
					"error", err,
				)
			}
		}
	})
}

func (e *engineImpl) done(op string, inst *entity.ApprovalInstance, taskID, actorID int64, err error) (*entity.ApprovalInstance, error) {
	if err != nil {
		e.logger.Error("Approval action failed", "op", op, "task_id", taskID, "actor_id", actorID, "error", err)
		return nil, err
	}

	e.logger.Info("Approval action applied",
		"op", op,
		"task_id", taskID,
		"actor_id", actorID,
		"instance_id", inst.ID,
		"status", inst.Status,
		"step", inst.CurrentStep,
	)
	return inst, nil
}
