package workflow

import (
	"context"
	"fmt"
)

// StateMachine tracks the current state and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// Fire executes the trigger, transitioning to the new state if allowed
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns all triggers valid in the current state
	PermittedTriggers() []Trigger
}

// GuardFunc decides whether a candidate transition should be taken
type GuardFunc func(ctx context.Context) bool

// Builder assembles a state machine configuration
type Builder struct {
	transitions map[State]map[Trigger][]transition
}

type transition struct {
	to    State
	guard GuardFunc
}

// StateConfig configures outgoing transitions for one state
type StateConfig struct {
	builder *Builder
	from    State
}

// NewBuilder creates an empty state machine builder
func NewBuilder() *Builder {
	return &Builder{transitions: make(map[State]map[Trigger][]transition)}
}

// Configure returns the transition configuration for the given state
func (b *Builder) Configure(state State) *StateConfig {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if _, ok := b.transitions[state]; !ok {
		b.transitions[state] = make(map[Trigger][]transition)
	}
	return &StateConfig{builder: b, from: state}
}

// Permit allows trigger to move from this state to the target state
func (c *StateConfig) Permit(trigger Trigger, to State) *StateConfig {
	return c.PermitIf(trigger, to, nil)
}

// PermitIf allows the transition only when the guard passes
func (c *StateConfig) PermitIf(trigger Trigger, to State, guard GuardFunc) *StateConfig {
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", to))
	}
	m := c.builder.transitions[c.from]
	m[trigger] = append(m[trigger], transition{to: to, guard: guard})
	return c
}

// Build creates a machine instance positioned at the given initial state.
// The configuration is copied so later builder mutations cannot affect
// built machines.
func (b *Builder) Build(initial State) StateMachine {
	if !initial.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initial))
	}

	copied := make(map[State]map[Trigger][]transition, len(b.transitions))
	for state, byTrigger := range b.transitions {
		inner := make(map[Trigger][]transition, len(byTrigger))
		for trigger, ts := range byTrigger {
			inner[trigger] = append([]transition(nil), ts...)
		}
		copied[state] = inner
	}

	return &machine{current: initial, transitions: copied}
}

type machine struct {
	current     State
	transitions map[State]map[Trigger][]transition
}

func (m *machine) State() State {
	return m.current
}

func (m *machine) CanFire(trigger Trigger) bool {
	byTrigger, ok := m.transitions[m.current]
	if !ok {
		return false
	}
	return len(byTrigger[trigger]) > 0
}

func (m *machine) Fire(ctx context.Context, trigger Trigger) error {
	byTrigger, ok := m.transitions[m.current]
	if !ok {
		return fmt.Errorf("%w: trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	}

	candidates := byTrigger[trigger]
	if len(candidates) == 0 {
		return fmt.Errorf("%w: trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	}

	for _, t := range candidates {
		if t.guard == nil || t.guard(ctx) {
			m.current = t.to
			return nil
		}
	}

	return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.current)
}

func (m *machine) PermittedTriggers() []Trigger {
	byTrigger, ok := m.transitions[m.current]
	if !ok {
		return nil
	}
	triggers := make([]Trigger, 0, len(byTrigger))
	for trigger := range byTrigger {
		triggers = append(triggers, trigger)
	}
	return triggers
}
