package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/workflow"
	"github.com/garyjia/controlled-docs/internal/infrastructure/persistence/sqlite"
)

// VersionRepository implements port.VersionRepository.
// Every write after Create goes through a conditional UPDATE on state and revision.
type VersionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVersionRepository creates a new version repository
func NewVersionRepository(db *sql.DB, logger *zap.Logger) port.VersionRepository {
	return &VersionRepository{
		db:     db,
		logger: logger,
	}
}

const versionColumns = `
	id, document_id, number, version_string, state, template_id, content,
	file_object_key, file_hash, reviewer_id, approver_id, submitted_at,
	reviewed_by, reviewed_at, approved_by, approved_at, rejected_by, rejected_at,
	reject_note, released_at, archived_at, locked_by, locked_at, lock_expires_at,
	created_by, created_at, updated_at, revision`

// Create inserts a version with revision 1
func (r *VersionRepository) Create(ctx context.Context, v *entity.DocumentVersion) error {
	query := `INSERT INTO document_versions (` + versionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	v.Revision = 1
	args := append([]interface{}{v.ID, v.DocumentID, v.Number, v.VersionString}, r.mutableArgs(v)...)
	args = append(args, v.CreatedBy, v.CreatedAt.UTC(), v.UpdatedAt.UTC(), v.Revision)

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			if v.State == workflow.StateDraft && !strings.Contains(err.Error(), "number") {
				return fmt.Errorf("document %s: %w", v.DocumentID, workflow.ErrDraftExists)
			}
			return fmt.Errorf("version %d of document %s: %w", v.Number, v.DocumentID, workflow.ErrStaleState)
		}
		r.logger.Error("Failed to create version", zap.String("version_id", v.ID), zap.Error(err))
		return fmt.Errorf("failed to create version: %w", err)
	}
	return nil
}

// mutableArgs lists the columns between version_string and created_by in column order
func (r *VersionRepository) mutableArgs(v *entity.DocumentVersion) []interface{} {
	var content interface{}
	if len(v.Content) > 0 {
		content = string(v.Content)
	}
	return []interface{}{
		string(v.State),
		nullString(v.TemplateID),
		content,
		nullString(v.FileObjectKey),
		nullString(v.FileHash),
		nullString(v.ReviewerID),
		nullString(v.ApproverID),
		nullTime(v.SubmittedAt),
		nullString(v.ReviewedBy),
		nullTime(v.ReviewedAt),
		nullString(v.ApprovedBy),
		nullTime(v.ApprovedAt),
		nullString(v.RejectedBy),
		nullTime(v.RejectedAt),
		v.RejectNote,
		nullTime(v.ReleasedAt),
		nullTime(v.ArchivedAt),
		nullString(v.LockedBy),
		nullTime(v.LockedAt),
		nullTime(v.LockExpiresAt),
	}
}

func scanVersion(row rowScanner) (*entity.DocumentVersion, error) {
	var v entity.DocumentVersion
	var (
		state                                           string
		templateID, content, objectKey, fileHash        sql.NullString
		reviewerID, approverID, reviewedBy, approvedBy  sql.NullString
		rejectedBy, lockedBy                            sql.NullString
		submittedAt, reviewedAt, approvedAt, rejectedAt sql.NullTime
		releasedAt, archivedAt, lockedAt, lockExpiresAt sql.NullTime
	)

	err := row.Scan(
		&v.ID,
		&v.DocumentID,
		&v.Number,
		&v.VersionString,
		&state,
		&templateID,
		&content,
		&objectKey,
		&fileHash,
		&reviewerID,
		&approverID,
		&submittedAt,
		&reviewedBy,
		&reviewedAt,
		&approvedBy,
		&approvedAt,
		&rejectedBy,
		&rejectedAt,
		&v.RejectNote,
		&releasedAt,
		&archivedAt,
		&lockedBy,
		&lockedAt,
		&lockExpiresAt,
		&v.CreatedBy,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.Revision,
	)
	if err != nil {
		return nil, err
	}

	v.State = workflow.State(state)
	v.TemplateID = stringPtr(templateID)
	if content.Valid {
		v.Content = []byte(content.String)
	}
	v.FileObjectKey = stringPtr(objectKey)
	v.FileHash = stringPtr(fileHash)
	v.ReviewerID = stringPtr(reviewerID)
	v.ApproverID = stringPtr(approverID)
	v.SubmittedAt = timePtr(submittedAt)
	v.ReviewedBy = stringPtr(reviewedBy)
	v.ReviewedAt = timePtr(reviewedAt)
	v.ApprovedBy = stringPtr(approvedBy)
	v.ApprovedAt = timePtr(approvedAt)
	v.RejectedBy = stringPtr(rejectedBy)
	v.RejectedAt = timePtr(rejectedAt)
	v.ReleasedAt = timePtr(releasedAt)
	v.ArchivedAt = timePtr(archivedAt)
	v.LockedBy = stringPtr(lockedBy)
	v.LockedAt = timePtr(lockedAt)
	v.LockExpiresAt = timePtr(lockExpiresAt)
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	return &v, nil
}

// GetByID retrieves a version by ID
func (r *VersionRepository) GetByID(ctx context.Context, id string) (*entity.DocumentVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM document_versions WHERE id = ?`

	v, err := scanVersion(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get version", zap.String("version_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return v, nil
}

func (r *VersionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.DocumentVersion, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list versions", zap.Error(err))
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*entity.DocumentVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// ListByDocument retrieves every version of a document in number order
func (r *VersionRepository) ListByDocument(ctx context.Context, documentID string) ([]*entity.DocumentVersion, error) {
	return r.list(ctx, `SELECT `+versionColumns+` FROM document_versions WHERE document_id = ? ORDER BY number`, documentID)
}

// ListByState retrieves the versions of a document in one state
func (r *VersionRepository) ListByState(ctx context.Context, documentID string, state workflow.State) ([]*entity.DocumentVersion, error) {
	return r.list(ctx, `SELECT `+versionColumns+` FROM document_versions WHERE document_id = ? AND state = ? ORDER BY number`,
		documentID, string(state))
}

// NextNumber returns one past the highest version number of the document
func (r *VersionRepository) NextNumber(ctx context.Context, documentID string) (int, error) {
	var next int
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(number), 0) + 1 FROM document_versions WHERE document_id = ?`, documentID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to get next version number: %w", err)
	}
	return next, nil
}

// CompareAndSwap implements the optimistic state update
func (r *VersionRepository) CompareAndSwap(ctx context.Context, v *entity.DocumentVersion, expected workflow.State, expectedRevision int64) error {
	query := `
		UPDATE document_versions SET
			state = ?, template_id = ?, content = ?, file_object_key = ?, file_hash = ?,
			reviewer_id = ?, approver_id = ?, submitted_at = ?, reviewed_by = ?, reviewed_at = ?,
			approved_by = ?, approved_at = ?, rejected_by = ?, rejected_at = ?, reject_note = ?,
			released_at = ?, archived_at = ?, locked_by = ?, locked_at = ?, lock_expires_at = ?,
			updated_at = ?, revision = revision + 1
		WHERE id = ? AND state = ? AND revision = ?
	`

	args := append(r.mutableArgs(v), v.UpdatedAt.UTC(), v.ID, string(expected), expectedRevision)
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update version",
			zap.String("version_id", v.ID),
			zap.String("expected_state", string(expected)),
			zap.Error(err))
		return fmt.Errorf("failed to update version: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("version %s expected %s rev %d: %w", v.ID, expected, expectedRevision, workflow.ErrStaleState)
	}

	v.Revision = expectedRevision + 1
	return nil
}

// ClaimLock takes the checkout lease in one conditional update. Timestamps are
// stored in UTC so the text comparison on lock_expires_at orders correctly.
func (r *VersionRepository) ClaimLock(ctx context.Context, id, actorID string, now, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE document_versions SET
			locked_by = ?, locked_at = ?, lock_expires_at = ?,
			updated_at = ?, revision = revision + 1
		WHERE id = ? AND state = ?
		  AND (
			locked_by IS NULL OR locked_by = '' OR locked_by = ?
			OR (lock_expires_at IS NOT NULL AND lock_expires_at <= ?)
		  )
	`

	now = now.UTC()
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		actorID, now, expiresAt.UTC(), now,
		id, string(workflow.StateDraft),
		actorID, now,
	)
	if err != nil {
		r.logger.Error("Failed to claim lock", zap.String("version_id", id), zap.String("actor_id", actorID), zap.Error(err))
		return false, fmt.Errorf("failed to claim lock: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *VersionRepository) refs(ctx context.Context, state workflow.State, atColumn string) ([]entity.VersionRef, error) {
	query := `
		SELECT v.id, v.document_id, d.project_id, d.doc_type, d.title, v.version_string, v.` + atColumn + `
		FROM document_versions v
		JOIN documents d ON d.id = v.document_id
		WHERE v.state = ?
		ORDER BY d.project_id, v.id
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, string(state))
	if err != nil {
		r.logger.Error("Failed to list version refs", zap.String("state", string(state)), zap.Error(err))
		return nil, fmt.Errorf("failed to list %s versions: %w", state, err)
	}
	defer rows.Close()

	var refs []entity.VersionRef
	for rows.Next() {
		var ref entity.VersionRef
		var at sql.NullTime
		if err := rows.Scan(&ref.VersionID, &ref.DocumentID, &ref.ProjectID, &ref.DocType, &ref.Title, &ref.VersionString, &at); err != nil {
			return nil, fmt.Errorf("failed to scan version ref: %w", err)
		}
		if at.Valid {
			ref.At = at.Time.UTC()
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ListInReview lists versions awaiting approval with their submission time
func (r *VersionRepository) ListInReview(ctx context.Context) ([]entity.VersionRef, error) {
	return r.refs(ctx, workflow.StateInReview, "submitted_at")
}

// ListReleased lists released versions with their release time
func (r *VersionRepository) ListReleased(ctx context.Context) ([]entity.VersionRef, error) {
	return r.refs(ctx, workflow.StateReleased, "released_at")
}

// Verify interface compliance
var _ port.VersionRepository = (*VersionRepository)(nil)
