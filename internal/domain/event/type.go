package event

// Type identifies what happened to an approval instance
type Type string

const (
	TypeSubmitted Type = "approval.submitted"
	TypeAdvanced  Type = "approval.advanced"
	TypeDelegated Type = "approval.delegated"
	TypeApproved  Type = "approval.approved"
	TypeRejected  Type = "approval.rejected"
	TypeWithdrawn Type = "approval.withdrawn"

	// TypeStatusChanged covers business entities moving outside an approval,
	// such as a milestone being completed.
	TypeStatusChanged Type = "entity.status_changed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeSubmitted,
		TypeAdvanced,
		TypeDelegated,
		TypeApproved,
		TypeRejected,
		TypeWithdrawn,
		TypeStatusChanged:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the event closes the instance
func (t Type) IsTerminal() bool {
	return t == TypeApproved || t == TypeRejected || t == TypeWithdrawn
}
