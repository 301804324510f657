package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/pm-approval/internal/domain/entity"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StatePending, false},
		{StateApproved, true},
		{StateRejected, true},
		{StateWithdrawn, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"pending", StatePending, true},
		{"withdrawn", StateWithdrawn, true},
		{"invalid state", State("INVALID"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_StatusRoundTrip(t *testing.T) {
	if got := FromStatus(entity.InstanceStatusRejected); got != StateRejected {
		t.Errorf("FromStatus() = %v, want %v", got, StateRejected)
	}
	if got := StateApproved.Status(); got != entity.InstanceStatusApproved {
		t.Errorf("Status() = %v, want %v", got, entity.InstanceStatusApproved)
	}
}

func TestBuilder_ConfigurePanicsOnInvalidState(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on invalid state")
		}
	}()

	NewBuilder().Configure(State("INVALID"))
}

func TestBuilder_BuildPanicsOnInvalidInitialState(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Build() should panic on invalid initial state")
		}
	}()

	NewBuilder().Build(State("INVALID"))
}

func TestStateConfiguration_PermitPanicsOnInvalidTarget(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Permit() should panic on invalid target state")
		}
	}()

	NewBuilder().Configure(StatePending).Permit(TriggerReject, State("INVALID"))
}

func TestStateConfiguration_PermitReplacesTarget(t *testing.T) {
	b := NewBuilder()
	b.Configure(StatePending).
		Permit(TriggerComplete, StateRejected).
		Permit(TriggerComplete, StateApproved)

	machine := b.Build(StatePending)
	if err := machine.Fire(context.Background(), TriggerComplete); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if machine.State() != StateApproved {
		t.Errorf("State after Fire() = %v, want %v", machine.State(), StateApproved)
	}
}

func TestBuilder_UnconfiguredStateRejectsTriggers(t *testing.T) {
	machine := NewBuilder().Build(StatePending)

	err := machine.Fire(context.Background(), TriggerComplete)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Fire() error = %v, want %v", err, ErrInvalidTransition)
	}
	if machine.State() != StatePending {
		t.Errorf("State should remain %v after failed Fire(), got %v", StatePending, machine.State())
	}
}

func TestApprovalMachine_PendingTransitions(t *testing.T) {
	tests := []struct {
		trigger Trigger
		want    State
	}{
		{TriggerAdvance, StatePending},
		{TriggerDelegate, StatePending},
		{TriggerComplete, StateApproved},
		{TriggerReject, StateRejected},
		{TriggerWithdraw, StateWithdrawn},
	}

	for _, tt := range tests {
		t.Run(tt.trigger.String(), func(t *testing.T) {
			machine := NewApprovalMachine(StatePending)
			if err := machine.Fire(context.Background(), tt.trigger); err != nil {
				t.Fatalf("Fire(%v) failed: %v", tt.trigger, err)
			}
			if machine.State() != tt.want {
				t.Errorf("State after Fire(%v) = %v, want %v", tt.trigger, machine.State(), tt.want)
			}
		})
	}
}

func TestApprovalMachine_TerminalStatesRejectEveryTrigger(t *testing.T) {
	triggers := []Trigger{TriggerAdvance, TriggerDelegate, TriggerComplete, TriggerReject, TriggerWithdraw}

	for _, terminal := range []State{StateApproved, StateRejected, StateWithdrawn} {
		machine := NewApprovalMachine(terminal)

		for _, trig := range triggers {
			err := machine.Fire(context.Background(), trig)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%v: Fire(%v) error = %v, want %v", terminal, trig, err, ErrInvalidTransition)
			}
			if machine.State() != terminal {
				t.Errorf("%v: state changed to %v", terminal, machine.State())
			}
		}
	}
}

func TestApprovalMachine_Independence(t *testing.T) {
	m1 := NewApprovalMachine(StatePending)
	m2 := NewApprovalMachine(StatePending)

	if err := m1.Fire(context.Background(), TriggerReject); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}

	if m2.State() != StatePending {
		t.Errorf("m2 state = %v, want %v (machines should be independent)", m2.State(), StatePending)
	}
}
