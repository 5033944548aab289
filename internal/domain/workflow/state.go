package workflow

// State represents the lifecycle state of a document version
type State string

const (
	StateDraft    State = "DRAFT"
	StateInReview State = "IN_REVIEW"
	StateApproved State = "APPROVED"
	StateReleased State = "RELEASED"
	StateArchived State = "ARCHIVED"
	StateRejected State = "REJECTED"
)

var validStates = map[State]bool{
	StateDraft:    true,
	StateInReview: true,
	StateApproved: true,
	StateReleased: true,
	StateArchived: true,
	StateRejected: true,
}

// A rejected version is never reopened; a new version is created from it instead.
var terminalStates = map[State]bool{
	StateArchived: true,
	StateRejected: true,
}

// IsTerminal returns true if no transition leaves the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsEditable reports whether content and template may change in this state
func (s State) IsEditable() bool {
	return s == StateDraft
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}
