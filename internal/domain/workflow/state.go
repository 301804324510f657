package workflow

import "github.com/garyjia/pm-approval/internal/domain/entity"

// State is an approval instance lifecycle state
type State string

const (
	StatePending   State = "PENDING"
	StateApproved  State = "APPROVED"
	StateRejected  State = "REJECTED"
	StateWithdrawn State = "WITHDRAWN"
)

var validStates = map[State]bool{
	StatePending:   true,
	StateApproved:  true,
	StateRejected:  true,
	StateWithdrawn: true,
}

var terminalStates = map[State]bool{
	StateApproved:  true,
	StateRejected:  true,
	StateWithdrawn: true,
}

// FromStatus converts a persisted instance status into a State
func FromStatus(s entity.InstanceStatus) State {
	return State(s)
}

// Status converts the state back to the persisted instance status
func (s State) Status() entity.InstanceStatus {
	return entity.InstanceStatus(s)
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}
