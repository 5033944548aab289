package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/policy"
)

// CreateDocumentCommand creates a document together with its first draft
type CreateDocumentCommand struct {
	ProjectID  string
	DocType    string
	Title      string
	TemplateID string
	Content    json.RawMessage
}

// CreateVersionCommand opens the next draft of a document
type CreateVersionCommand struct {
	// SourceVersionID defaults to the highest numbered version
	SourceVersionID string
	// Blank starts the draft without copying content and template
	Blank bool
}

// Rendition is a stored rendition whose bytes matched the recorded hash
type Rendition struct {
	VersionID string
	FileName  string
	Hash      string
	Data      []byte
}

// Engine is the document version lifecycle and approval governance engine.
// Every command returns the stored version after the change or a typed error.
type Engine interface {
	CreateDocument(ctx context.Context, actor entity.Actor, cmd CreateDocumentCommand) (*entity.Document, *entity.DocumentVersion, error)
	CreateVersion(ctx context.Context, actor entity.Actor, documentID string, cmd CreateVersionCommand) (*entity.DocumentVersion, error)

	UpdateDraftContent(ctx context.Context, actor entity.Actor, versionID string, content json.RawMessage) (*entity.DocumentVersion, error)
	AssignTemplate(ctx context.Context, actor entity.Actor, versionID, templateID string) (*entity.DocumentVersion, error)
	AssignRouting(ctx context.Context, actor entity.Actor, versionID string, routing policy.Routing) (*entity.DocumentVersion, error)
	AttachRendition(ctx context.Context, actor entity.Actor, versionID, fileName string, data []byte) (*entity.DocumentVersion, error)
	// ReadRendition fails with ErrRenditionCorrupt when the stored file is gone or its hash changed
	ReadRendition(ctx context.Context, versionID string) (*Rendition, error)

	Checkout(ctx context.Context, actor entity.Actor, versionID string) (*entity.DocumentVersion, error)
	RenewLock(ctx context.Context, actor entity.Actor, versionID string) (*entity.DocumentVersion, error)
	ReleaseLock(ctx context.Context, actor entity.Actor, versionID string) (*entity.DocumentVersion, error)
	ForceUnlock(ctx context.Context, actor entity.Actor, versionID string) (*entity.DocumentVersion, error)

	Submit(ctx context.Context, actor entity.Actor, versionID string) (*entity.DocumentVersion, error)
	Endorse(ctx context.Context, actor entity.Actor, versionID, comment string) (*entity.DocumentVersion, error)
	Approve(ctx context.Context, actor entity.Actor, versionID, comment string) (*entity.DocumentVersion, error)
	Reject(ctx context.Context, actor entity.Actor, versionID, comment string) (*entity.DocumentVersion, error)
	Release(ctx context.Context, actor entity.Actor, versionID string) (*entity.DocumentVersion, error)
	Archive(ctx context.Context, actor entity.Actor, versionID, reason string) (*entity.DocumentVersion, error)

	// ArchiveExpired archives released versions past their project's retention period
	ArchiveExpired(ctx context.Context, now time.Time) (int, error)

	AddComment(ctx context.Context, actor entity.Actor, versionID, body string) (*entity.ReviewComment, error)
	ListComments(ctx context.Context, versionID string) ([]*entity.ReviewComment, error)

	GetDocument(ctx context.Context, documentID string) (*entity.Document, error)
	ListDocuments(ctx context.Context, projectID string) ([]*entity.Document, error)
	GetVersion(ctx context.Context, versionID string) (*entity.DocumentVersion, error)
	ListVersions(ctx context.Context, documentID string) ([]*entity.DocumentVersion, error)
	History(ctx context.Context, versionID string) ([]*entity.TransitionRecord, error)

	// MissingRequiredDocuments lists required document types of a project that have no released version
	MissingRequiredDocuments(ctx context.Context, projectID string) ([]string, error)
}
