package workflow

// Trigger represents an action that can cause a state transition
type Trigger string

const (
	// TriggerAdvance moves the step cursor forward; the instance stays PENDING
	TriggerAdvance  Trigger = "ADVANCE"
	TriggerDelegate Trigger = "DELEGATE"
	// TriggerComplete is fired when the last eligible step is approved
	TriggerComplete Trigger = "COMPLETE"
	TriggerReject   Trigger = "REJECT"
	TriggerWithdraw Trigger = "WITHDRAW"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
