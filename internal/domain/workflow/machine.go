package workflow

import (
	"context"
	"fmt"
)

// StateMachine represents a state machine that tracks current state and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// Fire attempts to execute the trigger, transitioning to the new state if allowed
	Fire(ctx context.Context, trigger Trigger) error
}

// table maps a source state to its target state per trigger
type table map[State]map[Trigger]State

// Builder collects transitions and produces independent machines
type Builder struct {
	transitions table
}

// StateConfiguration configures transitions out of one state
type StateConfiguration struct {
	from    State
	builder *Builder
}

// NewBuilder creates a new state machine builder
func NewBuilder() *Builder {
	return &Builder{transitions: make(table)}
}

// Configure returns a state configuration for the given state
func (b *Builder) Configure(state State) *StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if _, ok := b.transitions[state]; !ok {
		b.transitions[state] = make(map[Trigger]State)
	}
	return &StateConfiguration{from: state, builder: b}
}

// Permit allows a trigger to transition to the target state
func (c *StateConfiguration) Permit(trigger Trigger, toState State) *StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	c.builder.transitions[c.from][trigger] = toState
	return c
}

// Build creates a machine in the given initial state. Machines never share
// transition maps with the builder or with each other.
func (b *Builder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	copied := make(table, len(b.transitions))
	for from, byTrigger := range b.transitions {
		inner := make(map[Trigger]State, len(byTrigger))
		for trig, to := range byTrigger {
			inner[trig] = to
		}
		copied[from] = inner
	}

	return &stateMachine{current: initialState, transitions: copied}
}

type stateMachine struct {
	current     State
	transitions table
}

func (m *stateMachine) State() State {
	return m.current
}

func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	to, ok := m.transitions[m.current][trigger]
	if !ok {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	}

	m.current = to
	return nil
}
