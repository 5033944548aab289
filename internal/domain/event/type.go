package event

// Type identifies the type of domain event
type Type string

const (
	TypeDocumentCreated     Type = "document.created"
	TypeVersionCreated      Type = "version.created"
	TypeVersionEdited       Type = "version.edited"
	TypeVersionLockChanged  Type = "version.lock_changed"
	TypeVersionTransitioned Type = "version.transitioned"
	TypeVersionEscalated    Type = "version.escalated"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeDocumentCreated,
		TypeVersionCreated,
		TypeVersionEdited,
		TypeVersionLockChanged,
		TypeVersionTransitioned,
		TypeVersionEscalated:
		return true
	default:
		return false
	}
}
