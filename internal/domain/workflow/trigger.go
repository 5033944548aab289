package workflow

// Trigger represents a lifecycle command that can move a version to another state
type Trigger string

const (
	TriggerSubmit  Trigger = "SUBMIT"
	TriggerApprove Trigger = "APPROVE"
	TriggerReject  Trigger = "REJECT"
	TriggerRelease Trigger = "RELEASE"
	TriggerArchive Trigger = "ARCHIVE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
