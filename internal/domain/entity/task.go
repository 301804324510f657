package entity

import "time"

// ApprovalTask is one step assignment within an instance.
// Delegation marks the original task DELEGATED and creates a new PENDING task
// for the delegate at the same step.
type ApprovalTask struct {
	ID              int64      `json:"id"`
	InstanceID      int64      `json:"instance_id"`
	StepOrder       int        `json:"step_order"`
	NodeName        string     `json:"node_name"`
	AssigneeID      int64      `json:"assignee_id"`
	DelegatedFromID int64      `json:"delegated_from_id,omitempty"`
	Status          TaskStatus `json:"status"`
	Action          Action     `json:"action,omitempty"`
	Comment         string     `json:"comment,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// IsPending reports whether the task still awaits an action
func (t *ApprovalTask) IsPending() bool {
	return t.Status == TaskStatusPending
}

// PendingTaskView joins a pending task with the instance it belongs to
type PendingTaskView struct {
	Task       *ApprovalTask `json:"task"`
	EntityType EntityType    `json:"entity_type"`
	EntityID   int64         `json:"entity_id"`
	Urgency    Urgency       `json:"urgency"`
}
