package workflow

import (
	domainwf "github.com/garyjia/controlled-docs/internal/domain/workflow"
)

// Guards supplies the per-command guard for each trigger. A missing entry means unguarded.
type Guards map[domainwf.Trigger]domainwf.GuardFunc

// BuildVersionStateMachine creates a state machine for the document version lifecycle
func BuildVersionStateMachine(initialState domainwf.State, guards Guards) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	builder.Configure(domainwf.StateDraft).
		PermitIf(domainwf.TriggerSubmit, domainwf.StateInReview, guards[domainwf.TriggerSubmit])

	builder.Configure(domainwf.StateInReview).
		PermitIf(domainwf.TriggerApprove, domainwf.StateApproved, guards[domainwf.TriggerApprove]).
		PermitIf(domainwf.TriggerReject, domainwf.StateRejected, guards[domainwf.TriggerReject])

	builder.Configure(domainwf.StateApproved).
		PermitIf(domainwf.TriggerRelease, domainwf.StateReleased, guards[domainwf.TriggerRelease])

	builder.Configure(domainwf.StateReleased).
		PermitIf(domainwf.TriggerArchive, domainwf.StateArchived, guards[domainwf.TriggerArchive])

	// ARCHIVED and REJECTED are terminal. A rejected version is followed by CreateVersion.

	return builder.Build(initialState)
}

// AvailableActions lists the lifecycle triggers the state allows, without
// evaluating guards. Terminal states have none.
func AvailableActions(state domainwf.State) []domainwf.Trigger {
	if !state.IsValid() {
		return nil
	}
	return BuildVersionStateMachine(state, nil).PermittedTriggers()
}
