package workflow

var approvalBuilder = newApprovalBuilder()

func newApprovalBuilder() *Builder {
	b := NewBuilder()

	b.Configure(StatePending).
		Permit(TriggerAdvance, StatePending).
		Permit(TriggerDelegate, StatePending).
		Permit(TriggerComplete, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerWithdraw, StateWithdrawn)

	// Terminal states are configured with no outgoing transitions.
	b.Configure(StateApproved)
	b.Configure(StateRejected)
	b.Configure(StateWithdrawn)

	return b
}

// NewApprovalMachine returns the approval lifecycle machine positioned at state
func NewApprovalMachine(state State) StateMachine {
	return approvalBuilder.Build(state)
}
