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
	"github.com/garyjia/controlled-docs/internal/infrastructure/persistence/sqlite"
)

// TemplateRepository is the local template binder. It only records what the
// template service reports; file contents live in object storage.
type TemplateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sql.DB, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

// ResolveTemplate implements port.TemplateBinder
func (r *TemplateRepository) ResolveTemplate(ctx context.Context, templateID string) (*entity.TemplateBinding, error) {
	var b entity.TemplateBinding
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, object_key, doc_type, status FROM templates WHERE id = ?`, templateID,
	).Scan(&b.TemplateID, &b.ObjectKey, &b.DocType, &b.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve template: %w", err)
	}
	return &b, nil
}

// Upsert registers or updates a template binding
func (r *TemplateRepository) Upsert(ctx context.Context, b *entity.TemplateBinding) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO templates (id, object_key, doc_type, status, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			object_key = excluded.object_key,
			doc_type = excluded.doc_type,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, b.TemplateID, b.ObjectKey, b.DocType, b.Status, time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to save template", zap.String("template_id", b.TemplateID), zap.Error(err))
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

var _ port.TemplateBinder = (*TemplateRepository)(nil)
