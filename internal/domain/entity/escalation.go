package entity

import (
	"sort"
	"time"
)

// EscalationLevel fires once when an IN_REVIEW version is older than DaysAfter days
type EscalationLevel struct {
	DaysAfter   int      `json:"days_after"`
	NotifyRole  RoleCode `json:"notify_role,omitempty"`
	NotifyUsers []string `json:"notify_users,omitempty"`
}

// EscalationChain is the ordered set of escalation levels of a project
type EscalationChain struct {
	Enabled bool              `json:"enabled"`
	Levels  []EscalationLevel `json:"levels,omitempty"`
}

// Sorted returns the levels ordered by DaysAfter. The sort is stable so equal
// thresholds keep their configured order.
func (c EscalationChain) Sorted() []EscalationLevel {
	levels := append([]EscalationLevel(nil), c.Levels...)
	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].DaysAfter < levels[j].DaysAfter
	})
	return levels
}

// Escalation delivery statuses. SENT and SKIPPED are final.
const (
	EscalationPending = "PENDING"
	EscalationSent    = "SENT"
	EscalationFailed  = "FAILED"
	EscalationSkipped = "SKIPPED"
)

// NoEscalationMark is the mark of a version that has not been escalated yet.
// Marks hold the highest notified DaysAfter, and 0 is a valid threshold.
const NoEscalationMark = -1

// EscalationRecord is the persisted notification for one crossed level of one version.
// Level is 1-based in sorted chain order at the time the record was created.
type EscalationRecord struct {
	ID          string     `json:"id"`
	VersionID   string     `json:"version_id"`
	DocumentID  string     `json:"document_id"`
	ProjectID   string     `json:"project_id"`
	Level       int        `json:"level"`
	DaysAfter   int        `json:"days_after"`
	NotifyRole  RoleCode   `json:"notify_role,omitempty"`
	NotifyUsers []string   `json:"notify_users,omitempty"`
	TriggeredAt time.Time  `json:"triggered_at"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

// VersionRef is a version joined with its document's project, used by background scans.
// At is the submission time for review scans and the release time for retention scans.
type VersionRef struct {
	VersionID     string
	DocumentID    string
	ProjectID     string
	DocType       string
	Title         string
	VersionString string
	At            time.Time
}
