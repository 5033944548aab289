package entity

import (
	"time"

	"github.com/garyjia/controlled-docs/internal/domain/workflow"
)

// Audit actions recorded alongside transitions
const (
	ActionVersionCreate = "VERSION_CREATE"
	ActionSubmit        = "SUBMIT"
	ActionEndorse       = "ENDORSE"
	ActionApprove       = "APPROVE"
	ActionReject        = "REJECT"
	ActionRelease       = "RELEASE"
	ActionArchive       = "ARCHIVE"
	ActionSupersede     = "SUPERSEDE"
)

// TransitionRecord is one committed lifecycle step of a version
type TransitionRecord struct {
	ID        string         `json:"id"`
	VersionID string         `json:"version_id"`
	Action    string         `json:"action"`
	FromState workflow.State `json:"from_state,omitempty"`
	ToState   workflow.State `json:"to_state"`
	ActorID   string         `json:"actor_id"`
	Comment   string         `json:"comment,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
