package entity

import "time"

// ApprovalInstance is a running approval bound to one business entity
type ApprovalInstance struct {
	ID          int64                  `json:"id"`
	EntityType  EntityType             `json:"entity_type"`
	EntityID    int64                  `json:"entity_id"`
	TemplateID  int64                  `json:"template_id"`
	InitiatorID int64                  `json:"initiator_id"`
	Status      InstanceStatus         `json:"status"`
	Urgency     Urgency                `json:"urgency"`
	CurrentStep int                    `json:"current_step"`
	FormData    map[string]interface{} `json:"form_data"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the instance has reached a final status
func (i *ApprovalInstance) IsTerminal() bool {
	return i.Status.IsTerminal()
}
