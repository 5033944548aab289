package port

import (
	"context"
	"time"

	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/workflow"
)

// Getters return (nil, nil) when the record does not exist.

// DocumentRepository persists documents
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id string) (*entity.Document, error)
	ListByProject(ctx context.Context, projectID string) ([]*entity.Document, error)
	SetCurrentVersion(ctx context.Context, documentID, versionID string, at time.Time) error
	// ReleasedDocTypes lists document types of the project that have at least one RELEASED version
	ReleasedDocTypes(ctx context.Context, projectID string) ([]string, error)
}

// VersionRepository persists document versions. It is the only writer of version state.
type VersionRepository interface {
	// Create inserts a new version. A second open DRAFT for the same document fails with workflow.ErrDraftExists.
	Create(ctx context.Context, v *entity.DocumentVersion) error
	GetByID(ctx context.Context, id string) (*entity.DocumentVersion, error)
	ListByDocument(ctx context.Context, documentID string) ([]*entity.DocumentVersion, error)
	ListByState(ctx context.Context, documentID string, state workflow.State) ([]*entity.DocumentVersion, error)
	NextNumber(ctx context.Context, documentID string) (int, error)

	// CompareAndSwap stores every mutable field of v if the stored row still has the
	// expected state and revision. Otherwise it returns workflow.ErrStaleState.
	// On success v.Revision is advanced.
	CompareAndSwap(ctx context.Context, v *entity.DocumentVersion, expected workflow.State, expectedRevision int64) error

	// ClaimLock sets the checkout lease when the version is a DRAFT and its lease is
	// free, expired or already held by actorID. It reports whether the claim succeeded.
	ClaimLock(ctx context.Context, id, actorID string, now, expiresAt time.Time) (bool, error)

	ListInReview(ctx context.Context) ([]entity.VersionRef, error)
	ListReleased(ctx context.Context) ([]entity.VersionRef, error)
}

// TransitionRepository persists the lifecycle history of versions
type TransitionRepository interface {
	Create(ctx context.Context, rec *entity.TransitionRecord) error
	ListByVersion(ctx context.Context, versionID string) ([]*entity.TransitionRecord, error)
}

// CommentRepository persists review comments
type CommentRepository interface {
	Create(ctx context.Context, c *entity.ReviewComment) error
	ListByVersion(ctx context.Context, versionID string) ([]*entity.ReviewComment, error)
}

// PolicyRepository is the policy store. The lifecycle engine only reads it.
type PolicyRepository interface {
	Get(ctx context.Context, projectID string) (*entity.ProjectPolicy, error)
	Save(ctx context.Context, p *entity.ProjectPolicy) error
}

// EscalationRepository persists the per-version escalation mark and the notification outbox
type EscalationRepository interface {
	// LastNotified returns the highest notified DaysAfter of the version,
	// entity.NoEscalationMark when none
	LastNotified(ctx context.Context, versionID string) (int, error)

	// AdvanceMark moves the mark from expected to next, or returns workflow.ErrStaleState
	AdvanceMark(ctx context.Context, versionID string, expected, next int, at time.Time) error

	// Create inserts an escalation record. A duplicate (version, days, level) returns workflow.ErrStaleState.
	Create(ctx context.Context, rec *entity.EscalationRecord) error

	// ListPending returns records that are neither SENT nor SKIPPED and below maxAttempts
	ListPending(ctx context.Context, maxAttempts, limit int) ([]*entity.EscalationRecord, error)
	ListByVersion(ctx context.Context, versionID string) ([]*entity.EscalationRecord, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	// MarkSkipped closes an undelivered record for good
	MarkSkipped(ctx context.Context, id string, reason string) error
}

// TransactionManager defines transaction boundary operations
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
