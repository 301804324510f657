package entity

import "time"

// ApprovalHistory is an immutable audit record of one action on an instance.
// Entries are never updated or deleted.
type ApprovalHistory struct {
	ID           int64     `json:"id"`
	InstanceID   int64     `json:"instance_id"`
	StepOrder    int       `json:"step_order"`
	Action       Action    `json:"action"`
	ApproverID   int64     `json:"approver_id"`
	DelegateToID int64     `json:"delegate_to_id,omitempty"`
	Comment      string    `json:"comment,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
