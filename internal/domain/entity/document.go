package entity

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/garyjia/controlled-docs/internal/domain/workflow"
)

// Document is a controlled document inside a project
type Document struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	DocType          string    `json:"doc_type"`
	Title            string    `json:"title"`
	CurrentVersionID *string   `json:"current_version_id,omitempty"`
	CreatedBy        string    `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DocumentVersion is one numbered revision of a document.
// Content and TemplateID change only while State is DRAFT.
type DocumentVersion struct {
	ID            string          `json:"id"`
	DocumentID    string          `json:"document_id"`
	Number        int             `json:"number"`
	VersionString string          `json:"version_string"`
	State         workflow.State  `json:"state"`
	TemplateID    *string         `json:"template_id,omitempty"`
	Content       json.RawMessage `json:"content,omitempty"`
	FileObjectKey *string         `json:"file_object_key,omitempty"`
	FileHash      *string         `json:"file_hash,omitempty"`

	ReviewerID  *string    `json:"reviewer_id,omitempty"`
	ApproverID  *string    `json:"approver_id,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ReviewedBy  *string    `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	ApprovedBy  *string    `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	RejectedBy  *string    `json:"rejected_by,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	RejectNote  string     `json:"reject_note,omitempty"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`

	LockedBy      *string    `json:"locked_by,omitempty"`
	LockedAt      *time.Time `json:"locked_at,omitempty"`
	LockExpiresAt *time.Time `json:"lock_expires_at,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Revision increases on every stored change and backs optimistic concurrency
	Revision int64 `json:"revision"`
}

// LockHolder returns the actor holding an unexpired checkout lease, or "" when the version is free
func (v *DocumentVersion) LockHolder(now time.Time) string {
	if v.LockedBy == nil || *v.LockedBy == "" {
		return ""
	}
	if v.LockExpiresAt != nil && !now.Before(*v.LockExpiresAt) {
		return ""
	}
	return *v.LockedBy
}

// HasContent reports whether the opaque content payload carries anything
func (v *DocumentVersion) HasContent() bool {
	return !IsEmptyContent(v.Content)
}

// IsEmptyContent treats missing, null, empty-string and empty-object payloads as empty
func IsEmptyContent(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "{}", "[]", `""`:
		return true
	}
	return false
}

// ClearLock drops the checkout lease fields
func (v *DocumentVersion) ClearLock() {
	v.LockedBy = nil
	v.LockedAt = nil
	v.LockExpiresAt = nil
}
