// Package authz decides whether a user may act on an approval step.
package authz

import (
	"context"
	"fmt"

	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/domain/entity"
)

// Resolver answers can-approve questions for one step of one instance
type Resolver interface {
	// CanApprove checks, in order: superuser, the step's fixed approver, the
	// step's role, then delegations recorded for this step of this instance.
	// A fixed approver or role holder who delegated the step no longer qualifies.
	CanApprove(ctx context.Context, instanceID int64, step *entity.StepDefinition, candidateID int64) (bool, error)

	// IsSuperuser reports whether the user carries the global override
	IsSuperuser(ctx context.Context, userID int64) (bool, error)
}

// TaskLookup is the part of port.TaskRepository the resolver reads
type TaskLookup interface {
	FirstForStep(ctx context.Context, instanceID int64, stepOrder int) (*entity.ApprovalTask, error)
}

// DelegationLog is the part of port.HistoryRepository the resolver reads
type DelegationLog interface {
	ListByInstanceStep(ctx context.Context, instanceID int64, stepOrder int) ([]*entity.ApprovalHistory, error)
}

type resolver struct {
	users   port.UserDirectory
	tasks   TaskLookup
	history DelegationLog
}

// NewResolver creates a resolver backed by the user directory and the audit trail
func NewResolver(users port.UserDirectory, tasks TaskLookup, history DelegationLog) Resolver {
	return &resolver{users: users, tasks: tasks, history: history}
}

func (r *resolver) IsSuperuser(ctx context.Context, userID int64) (bool, error) {
	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load user %d: %w", userID, err)
	}
	return user != nil && user.IsActive && user.IsSuperuser, nil
}

func (r *resolver) CanApprove(ctx context.Context, instanceID int64, step *entity.StepDefinition, candidateID int64) (bool, error) {
	if step == nil || candidateID <= 0 {
		return false, nil
	}

	super, err := r.IsSuperuser(ctx, candidateID)
	if err != nil {
		return false, err
	}
	if super {
		return true, nil
	}

	if step.HasFixedApprover() && step.ApproverID == candidateID {
		return r.retainsAuthority(ctx, instanceID, step, candidateID)
	}

	if step.ApproverRole != "" {
		ok, err := r.users.HasRole(ctx, candidateID, step.ApproverRole)
		if err != nil {
			return false, fmt.Errorf("check role %s for user %d: %w", step.ApproverRole, candidateID, err)
		}
		if ok {
			return r.retainsAuthority(ctx, instanceID, step, candidateID)
		}
	}

	return r.delegated(ctx, instanceID, step, candidateID)
}

// retainsAuthority reports false once the candidate has delegated this step
// away. Delegation transfers authority; a later delegation back restores it.
func (r *resolver) retainsAuthority(ctx context.Context, instanceID int64, step *entity.StepDefinition, candidateID int64) (bool, error) {
	entries, err := r.history.ListByInstanceStep(ctx, instanceID, step.StepOrder)
	if err != nil {
		return false, fmt.Errorf("load delegation history: %w", err)
	}

	handedOff := false
	for _, h := range entries {
		if h.Action != entity.ActionDelegate || h.StepOrder != step.StepOrder || h.DelegateToID == 0 {
			continue
		}
		switch candidateID {
		case h.ApproverID:
			handedOff = true
		case h.DelegateToID:
			handedOff = false
		}
	}
	return !handedOff, nil
}

// delegated walks DELEGATE entries for the step in the order they were
// written. Authority starts with the original assignee and passes along each
// entry whose delegator already holds it (or is a superuser). The delegator
// gives it up, so chains A->B->C grant C only, and a delegation recorded for
// another step or instance grants nothing.
func (r *resolver) delegated(ctx context.Context, instanceID int64, step *entity.StepDefinition, candidateID int64) (bool, error) {
	entries, err := r.history.ListByInstanceStep(ctx, instanceID, step.StepOrder)
	if err != nil {
		return false, fmt.Errorf("load delegation history: %w", err)
	}
	if len(entries) == 0 {
		return false, nil
	}

	root := step.ApproverID
	first, err := r.tasks.FirstForStep(ctx, instanceID, step.StepOrder)
	if err != nil {
		return false, fmt.Errorf("load original assignee: %w", err)
	}
	if first != nil {
		root = first.AssigneeID
	}
	if root == 0 {
		return false, nil
	}

	granted := map[int64]bool{root: true}
	for _, h := range entries {
		if h.Action != entity.ActionDelegate || h.StepOrder != step.StepOrder {
			continue
		}
		if h.DelegateToID == 0 {
			continue
		}
		if !granted[h.ApproverID] {
			super, err := r.IsSuperuser(ctx, h.ApproverID)
			if err != nil {
				return false, err
			}
			if !super {
				continue
			}
		}
		granted[h.DelegateToID] = true
		if h.ApproverID != h.DelegateToID {
			granted[h.ApproverID] = false
		}
	}

	return candidateID != root && granted[candidateID], nil
}
