package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateReceived, false},
		{StateVerified, false},
		{StatePendingReview, false},
		{StateManuallyApproved, false},
		{StateRejected, true},
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
		{"valid state", StateReceived, true},
		{"valid state", StateRejected, true},
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

func TestBuilder_ConfigurePanicsOnInvalidState(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on invalid state")
		}
	}()

	builder.Configure(State("INVALID"))
}

func TestBuilder_BuildCopiesConfiguration(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateReceived).
		Permit(TriggerVerify, StateVerified)

	machine := builder.Build(StateReceived)

	// Mutating the builder after Build must not affect the machine.
	builder.Configure(StateReceived).
		Permit(TriggerReject, StateRejected)

	if machine.CanFire(TriggerReject) {
		t.Error("machine should not see transitions added after Build()")
	}
}

func TestMachine_PermitIf(t *testing.T) {
	builder := NewBuilder()
	allow := false
	builder.Configure(StatePendingReview).
		PermitIf(TriggerApprove, StateManuallyApproved, func(ctx context.Context) bool {
			return allow
		})

	machine := builder.Build(StatePendingReview)

	if err := machine.Fire(context.Background(), TriggerApprove); !errors.Is(err, ErrGuardFailed) {
		t.Errorf("Fire() with failing guard: got %v, want ErrGuardFailed", err)
	}
	if machine.State() != StatePendingReview {
		t.Errorf("state changed despite failing guard: %v", machine.State())
	}

	allow = true
	if err := machine.Fire(context.Background(), TriggerApprove); err != nil {
		t.Errorf("Fire() with passing guard: unexpected error %v", err)
	}
	if machine.State() != StateManuallyApproved {
		t.Errorf("state = %v, want %v", machine.State(), StateManuallyApproved)
	}
}

func TestBuildEmailWorkflow_Transitions(t *testing.T) {
	tests := []struct {
		name      string
		from      State
		trigger   Trigger
		wantState State
		wantErr   error
	}{
		{"received verifies", StateReceived, TriggerVerify, StateVerified, nil},
		{"received flags", StateReceived, TriggerFlag, StatePendingReview, nil},
		{"pending approves", StatePendingReview, TriggerApprove, StateManuallyApproved, nil},
		{"pending rejects", StatePendingReview, TriggerReject, StateRejected, nil},
		{"approved can reject", StateManuallyApproved, TriggerReject, StateRejected, nil},
		{"verified is settled", StateVerified, TriggerApprove, StateVerified, ErrInvalidTransition},
		{"rejected is terminal", StateRejected, TriggerApprove, StateRejected, ErrInvalidTransition},
		{"rejected stays rejected", StateRejected, TriggerVerify, StateRejected, ErrInvalidTransition},
		{"no double approve", StateManuallyApproved, TriggerApprove, StateManuallyApproved, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine := BuildEmailWorkflow(tt.from)
			err := machine.Fire(context.Background(), tt.trigger)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Fire() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Errorf("Fire() unexpected error: %v", err)
			}
			if machine.State() != tt.wantState {
				t.Errorf("state = %v, want %v", machine.State(), tt.wantState)
			}
		})
	}
}

func TestStatusToState(t *testing.T) {
	tests := []struct {
		status string
		want   State
		ok     bool
	}{
		{"verified", StateVerified, true},
		{"unverified", StatePendingReview, true},
		{"pending_review", StatePendingReview, true},
		{"manually_approved", StateManuallyApproved, true},
		{"rejected", StateRejected, true},
		{"", StateReceived, true},
		{"garbage", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			got, ok := StatusToState(tt.status)
			if ok != tt.ok || got != tt.want {
				t.Errorf("StatusToState(%q) = (%v, %v), want (%v, %v)",
					tt.status, got, ok, tt.want, tt.ok)
			}
		})
	}
}
