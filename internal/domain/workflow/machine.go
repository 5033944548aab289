package workflow

import "context"

// StateMachine tracks the state of one document version and validates lifecycle transitions.
// A machine is a working copy; the persisted state is only changed by the version store.
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is configured for the current state
	CanFire(trigger Trigger) bool

	// Fire runs the trigger's guards and moves to the target state when one passes
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns all triggers configured for the current state
	PermittedTriggers() []Trigger
}
