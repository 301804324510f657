package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/pm-approval/internal/application/apperr"
	"github.com/garyjia/pm-approval/internal/domain/condition"
	"github.com/garyjia/pm-approval/internal/domain/entity"
)

// nextEligibleStep returns the first step after `after` whose condition holds
// for formData, or nil when every remaining step is excluded
func nextEligibleStep(tpl *entity.Template, after int, formData map[string]interface{}) (*entity.StepDefinition, error) {
	for _, s := range tpl.StepsAfter(after) {
		step := s
		if !step.IsConditional() {
			return &step, nil
		}

		ok, err := condition.Evaluate(step.ConditionExpression, formData)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrExpression, "route",
				fmt.Errorf("template %s step %d: %w", tpl.TemplateCode, step.StepOrder, err))
		}
		if ok {
			return &step, nil
		}
	}
	return nil, nil
}

// assigneeFor picks the user who receives the task for step. Role steps go to
// the lowest-id active holder of the role.
func (e *engineImpl) assigneeFor(ctx context.Context, step *entity.StepDefinition) (int64, error) {
	if step.HasFixedApprover() {
		return step.ApproverID, nil
	}

	user, err := e.users.FirstActiveWithRole(ctx, step.ApproverRole)
	if err != nil {
		return 0, fmt.Errorf("resolve role %s: %w", step.ApproverRole, err)
	}
	if user == nil {
		return 0, apperr.New(apperr.ErrConfiguration, "assign",
			"no active user holds role %s required by step %d (%s)", step.ApproverRole, step.StepOrder, step.NodeName)
	}
	return user.ID, nil
}

// routingData returns the snapshot conditions are evaluated against
func (e *engineImpl) routingData(ctx context.Context, inst *entity.ApprovalInstance) (map[string]interface{}, bool, error) {
	if e.formSource == nil {
		return inst.FormData, false, nil
	}

	fresh, err := e.formSource.FormData(ctx, inst.EntityType, inst.EntityID)
	if err != nil {
		return nil, false, fmt.Errorf("refresh form data for %s %d: %w", inst.EntityType, inst.EntityID, err)
	}
	return fresh, true, nil
}
