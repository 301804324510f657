package entity

// EntityType identifies the kind of business record an approval is bound to
type EntityType string

const (
	EntityTypeECN              EntityType = "ECN"
	EntityTypeSalesQuote       EntityType = "SALES_QUOTE"
	EntityTypeAcceptanceOrder  EntityType = "ACCEPTANCE_ORDER"
	EntityTypeProjectMilestone EntityType = "PROJECT_MILESTONE"
)

// String returns the string representation of the entity type
func (t EntityType) String() string {
	return string(t)
}

// InstanceStatus is the lifecycle status of an ApprovalInstance
type InstanceStatus string

const (
	InstanceStatusPending   InstanceStatus = "PENDING"
	InstanceStatusApproved  InstanceStatus = "APPROVED"
	InstanceStatusRejected  InstanceStatus = "REJECTED"
	InstanceStatusWithdrawn InstanceStatus = "WITHDRAWN"
)

// IsTerminal reports whether no further action may be taken on the instance
func (s InstanceStatus) IsTerminal() bool {
	switch s {
	case InstanceStatusApproved, InstanceStatusRejected, InstanceStatusWithdrawn:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is one of the defined instance statuses
func (s InstanceStatus) IsValid() bool {
	return s == InstanceStatusPending || s.IsTerminal()
}

func (s InstanceStatus) String() string {
	return string(s)
}

// TaskStatus is the status of a single step assignment
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusApproved  TaskStatus = "APPROVED"
	TaskStatusRejected  TaskStatus = "REJECTED"
	TaskStatusDelegated TaskStatus = "DELEGATED"
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

// IsValid reports whether s is one of the defined task statuses
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusApproved, TaskStatusRejected, TaskStatusDelegated, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

func (s TaskStatus) String() string {
	return string(s)
}

// Action is an audited operation performed on an instance
type Action string

const (
	ActionApprove  Action = "APPROVE"
	ActionReject   Action = "REJECT"
	ActionDelegate Action = "DELEGATE"
	ActionWithdraw Action = "WITHDRAW"
)

// IsValid reports whether a is one of the defined actions
func (a Action) IsValid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionDelegate, ActionWithdraw:
		return true
	default:
		return false
	}
}

func (a Action) String() string {
	return string(a)
}

// Urgency is the priority the initiator attached to a submission
type Urgency string

const (
	UrgencyNormal   Urgency = "NORMAL"
	UrgencyUrgent   Urgency = "URGENT"
	UrgencyCritical Urgency = "CRITICAL"
)

// ParseUrgency converts free text into an Urgency; an empty string means NORMAL
func ParseUrgency(s string) (Urgency, bool) {
	switch Urgency(s) {
	case "":
		return UrgencyNormal, true
	case UrgencyNormal, UrgencyUrgent, UrgencyCritical:
		return Urgency(s), true
	default:
		return "", false
	}
}
