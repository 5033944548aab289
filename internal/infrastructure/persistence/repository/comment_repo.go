package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/infrastructure/persistence/sqlite"
)

// CommentRepository implements port.CommentRepository
type CommentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCommentRepository creates a new review comment repository
func NewCommentRepository(db *sql.DB, logger *zap.Logger) port.CommentRepository {
	return &CommentRepository{
		db:     db,
		logger: logger,
	}
}

func (r *CommentRepository) Create(ctx context.Context, c *entity.ReviewComment) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO review_comments (id, version_id, author_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.VersionID, c.AuthorID, c.Body, c.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create comment", zap.String("version_id", c.VersionID), zap.Error(err))
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

func (r *CommentRepository) ListByVersion(ctx context.Context, versionID string) ([]*entity.ReviewComment, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, `
		SELECT id, version_id, author_id, body, created_at
		FROM review_comments
		WHERE version_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []*entity.ReviewComment
	for rows.Next() {
		var c entity.ReviewComment
		if err := rows.Scan(&c.ID, &c.VersionID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

var _ port.CommentRepository = (*CommentRepository)(nil)
