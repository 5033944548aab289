package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/workflow"
	"github.com/garyjia/controlled-docs/internal/infrastructure/persistence/sqlite"
)

// DocumentRepository implements port.DocumentRepository
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) port.DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *entity.Document) error {
	query := `
		INSERT INTO documents (
			id, project_id, doc_type, title, current_version_id,
			created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		doc.ID,
		doc.ProjectID,
		doc.DocType,
		doc.Title,
		nullString(doc.CurrentVersionID),
		doc.CreatedBy,
		doc.CreatedAt.UTC(),
		doc.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create document", zap.String("document_id", doc.ID), zap.Error(err))
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

const documentColumns = `id, project_id, doc_type, title, current_version_id, created_by, created_at, updated_at`

func scanDocument(row rowScanner) (*entity.Document, error) {
	var doc entity.Document
	var current sql.NullString
	err := row.Scan(
		&doc.ID,
		&doc.ProjectID,
		&doc.DocType,
		&doc.Title,
		&current,
		&doc.CreatedBy,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.CurrentVersionID = stringPtr(current)
	return &doc, nil
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`

	doc, err := scanDocument(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get document", zap.String("document_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListByProject retrieves every document of a project ordered by type and title
func (r *DocumentRepository) ListByProject(ctx context.Context, projectID string) ([]*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE project_id = ? ORDER BY doc_type, title, id`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to list documents", zap.String("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SetCurrentVersion points the document at a released version
func (r *DocumentRepository) SetCurrentVersion(ctx context.Context, documentID, versionID string, at time.Time) error {
	query := `
		UPDATE documents
		SET current_version_id = ?, updated_at = ?
		WHERE id = ?
		  AND EXISTS (SELECT 1 FROM document_versions WHERE id = ? AND document_id = ?)
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, versionID, at.UTC(), documentID, versionID, documentID)
	if err != nil {
		r.logger.Error("Failed to set current version",
			zap.String("document_id", documentID),
			zap.String("version_id", versionID),
			zap.Error(err))
		return fmt.Errorf("failed to set current version: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("version %s of document %s: %w", versionID, documentID, workflow.ErrNotFound)
	}
	return nil
}

// ReleasedDocTypes lists the document types of a project with at least one RELEASED version
func (r *DocumentRepository) ReleasedDocTypes(ctx context.Context, projectID string) ([]string, error) {
	query := `
		SELECT DISTINCT d.doc_type
		FROM documents d
		JOIN document_versions v ON v.document_id = d.id
		WHERE d.project_id = ? AND v.state = ?
		ORDER BY d.doc_type
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, projectID, string(workflow.StateReleased))
	if err != nil {
		return nil, fmt.Errorf("failed to list released doc types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var docType string
		if err := rows.Scan(&docType); err != nil {
			return nil, fmt.Errorf("failed to scan doc type: %w", err)
		}
		types = append(types, docType)
	}
	return types, rows.Err()
}

// Verify interface compliance
var _ port.DocumentRepository = (*DocumentRepository)(nil)
