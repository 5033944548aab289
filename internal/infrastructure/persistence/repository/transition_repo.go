package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/workflow"
	"github.com/garyjia/controlled-docs/internal/infrastructure/persistence/sqlite"
)

// TransitionRepository implements port.TransitionRepository
type TransitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTransitionRepository creates a new transition history repository
func NewTransitionRepository(db *sql.DB, logger *zap.Logger) port.TransitionRepository {
	return &TransitionRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *TransitionRepository) Create(ctx context.Context, rec *entity.TransitionRecord) error {
	query := `
		INSERT INTO version_transitions (
			id, version_id, action, from_state, to_state,
			actor_id, comment, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		rec.ID,
		rec.VersionID,
		rec.Action,
		string(rec.FromState),
		string(rec.ToState),
		rec.ActorID,
		rec.Comment,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.String("version_id", rec.VersionID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}
	return nil
}

// ListByVersion retrieves all history records for a version in commit order
func (r *TransitionRepository) ListByVersion(ctx context.Context, versionID string) ([]*entity.TransitionRecord, error) {
	query := `
		SELECT id, version_id, action, from_state, to_state, actor_id, comment, created_at
		FROM version_transitions
		WHERE version_id = ?
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, versionID)
	if err != nil {
		r.logger.Error("Failed to get history by version ID", zap.String("version_id", versionID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.TransitionRecord
	for rows.Next() {
		var rec entity.TransitionRecord
		var from, to string
		err := rows.Scan(
			&rec.ID,
			&rec.VersionID,
			&rec.Action,
			&from,
			&to,
			&rec.ActorID,
			&rec.Comment,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		rec.FromState = workflow.State(from)
		rec.ToState = workflow.State(to)
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// Verify interface compliance
var _ port.TransitionRepository = (*TransitionRepository)(nil)
