package workflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateDraft, false},
		{StateInReview, false},
		{StateApproved, false},
		{StateReleased, false},
		{StateArchived, true},
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

func TestState_IsEditable(t *testing.T) {
	for state := range validStates {
		want := state == StateDraft
		if got := state.IsEditable(); got != want {
			t.Errorf("%s.IsEditable() = %v, want %v", state, got, want)
		}
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"draft", StateDraft, true},
		{"rejected", StateRejected, true},
		{"unknown state", State("PUBLISHED"), false},
		{"lowercase", State("draft"), false},
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

func TestBuilder_Configure(t *testing.T) {
	builder := NewBuilder()

	config := builder.Configure(StateDraft)
	if config == nil {
		t.Fatal("Configure() returned nil")
	}

	if config2 := builder.Configure(StateDraft); config != config2 {
		t.Error("Configure() should return same config for same state")
	}
}

func TestBuilder_Panics(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{"configure invalid state", func() { NewBuilder().Configure(State("INVALID")) }},
		{"build invalid initial state", func() { NewBuilder().Build(State("INVALID")) }},
		{"permit invalid target", func() {
			NewBuilder().Configure(StateDraft).Permit(TriggerSubmit, State("INVALID"))
		}},
		{"transition out of terminal state", func() {
			NewBuilder().Configure(StateRejected).Permit(TriggerSubmit, StateInReview)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn()
		})
	}
}

func TestStateConfiguration_Permit(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).
		Permit(TriggerSubmit, StateInReview)

	machine := builder.Build(StateDraft)

	if !machine.CanFire(TriggerSubmit) {
		t.Error("CanFire() should return true for permitted trigger")
	}

	if err := machine.Fire(context.Background(), TriggerSubmit); err != nil {
		t.Errorf("Fire() failed: %v", err)
	}

	if machine.State() != StateInReview {
		t.Errorf("State after Fire() = %v, want %v", machine.State(), StateInReview)
	}
}

func TestStateConfiguration_PermitIf_GuardPasses(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).
		PermitIf(TriggerSubmit, StateInReview, func(ctx context.Context) error {
			return nil
		})

	machine := builder.Build(StateDraft)

	if err := machine.Fire(context.Background(), TriggerSubmit); err != nil {
		t.Errorf("Fire() failed: %v", err)
	}

	if machine.State() != StateInReview {
		t.Errorf("State after Fire() = %v, want %v", machine.State(), StateInReview)
	}
}

func TestStateConfiguration_PermitIf_GuardErrorIsReturned(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).
		PermitIf(TriggerSubmit, StateInReview, func(ctx context.Context) error {
			return ErrEmptyContent
		})

	machine := builder.Build(StateDraft)

	err := machine.Fire(context.Background(), TriggerSubmit)
	if err == nil {
		t.Fatal("Fire() should fail when guard fails")
	}
	if !errors.Is(err, ErrGuardFailed) {
		t.Errorf("Fire() error = %v, want %v", err, ErrGuardFailed)
	}
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("Fire() error = %v, want wrapped %v", err, ErrEmptyContent)
	}
	if machine.State() != StateDraft {
		t.Errorf("State should remain %v after failed Fire(), got %v", StateDraft, machine.State())
	}
}

func TestStateConfiguration_PermitIf_FallsThroughToNextGuard(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateInReview).
		PermitIf(TriggerApprove, StateApproved, func(ctx context.Context) error {
			return errors.New("first guard vetoes")
		}).
		PermitIf(TriggerApprove, StateApproved, func(ctx context.Context) error {
			return nil
		})

	machine := builder.Build(StateInReview)
	if err := machine.Fire(context.Background(), TriggerApprove); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if machine.State() != StateApproved {
		t.Errorf("State after Fire() = %v, want %v", machine.State(), StateApproved)
	}
}

func TestStateMachine_CanFire(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateInReview).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected)

	machine := builder.Build(StateInReview)

	tests := []struct {
		trigger  Trigger
		expected bool
	}{
		{TriggerApprove, true},
		{TriggerReject, true},
		{TriggerSubmit, false},
		{TriggerRelease, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.trigger), func(t *testing.T) {
			if got := machine.CanFire(tt.trigger); got != tt.expected {
				t.Errorf("CanFire() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStateMachine_Fire_InvalidTransition(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).
		Permit(TriggerSubmit, StateInReview)
	builder.Configure(StateInReview).
		Permit(TriggerApprove, StateApproved)

	machine := builder.Build(StateDraft)
	if err := machine.Fire(context.Background(), TriggerSubmit); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	// A second submit from IN_REVIEW is not legal
	err := machine.Fire(context.Background(), TriggerSubmit)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire() error = %v, want %v", err, ErrInvalidTransition)
	}
	if machine.State() != StateInReview {
		t.Errorf("State = %v, want %v", machine.State(), StateInReview)
	}
}

func TestStateMachine_Fire_NoConfiguration(t *testing.T) {
	machine := NewBuilder().Build(StateArchived)

	err := machine.Fire(context.Background(), TriggerRelease)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire() error = %v, want %v", err, ErrInvalidTransition)
	}
	if len(machine.PermittedTriggers()) != 0 {
		t.Errorf("PermittedTriggers() = %v, want none", machine.PermittedTriggers())
	}
}

func TestStateMachine_PermittedTriggers(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateInReview).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected)

	triggers := builder.Build(StateInReview).PermittedTriggers()
	if len(triggers) != 2 {
		t.Fatalf("PermittedTriggers() returned %d triggers, want 2", len(triggers))
	}

	seen := map[Trigger]bool{}
	for _, trigger := range triggers {
		seen[trigger] = true
	}
	if !seen[TriggerApprove] || !seen[TriggerReject] {
		t.Errorf("PermittedTriggers() = %v, want approve and reject", triggers)
	}
}

func TestStateMachine_Immutability(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).
		Permit(TriggerSubmit, StateInReview)

	machine1 := builder.Build(StateDraft)
	machine2 := builder.Build(StateDraft)

	// Configuring after Build must not change already built machines
	builder.Configure(StateInReview).Permit(TriggerApprove, StateApproved)

	if err := machine1.Fire(context.Background(), TriggerSubmit); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if machine2.State() != StateDraft {
		t.Errorf("machine2 state = %v, want %v", machine2.State(), StateDraft)
	}
	if machine1.CanFire(TriggerApprove) {
		t.Error("machine1 should not see transitions configured after Build")
	}
}

func TestLockHeldError(t *testing.T) {
	err := &LockHeldError{Holder: "alice", ExpiresAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

	if !errors.Is(err, ErrAlreadyLocked) {
		t.Error("LockHeldError should match ErrAlreadyLocked")
	}

	var held *LockHeldError
	if !errors.As(error(err), &held) || held.Holder != "alice" {
		t.Errorf("errors.As() holder = %v, want alice", held)
	}

	want := "version already locked by alice until 2026-01-02T03:04:05Z"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
