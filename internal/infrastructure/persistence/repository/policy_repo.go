package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/policy"
	"github.com/garyjia/controlled-docs/internal/infrastructure/persistence/sqlite"
)

// PolicyRepository stores each project policy as one JSON document.
// Documents are validated with policy.Decode on every load.
type PolicyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPolicyRepository creates a new policy store
func NewPolicyRepository(db *sql.DB, logger *zap.Logger) port.PolicyRepository {
	return &PolicyRepository{
		db:     db,
		logger: logger,
	}
}

// Get loads the policy of a project, or (nil, nil) when the project has none
func (r *PolicyRepository) Get(ctx context.Context, projectID string) (*entity.ProjectPolicy, error) {
	var raw string
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT policy FROM project_policies WHERE project_id = ?`, projectID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get policy", zap.String("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}

	p, err := policy.Decode([]byte(raw))
	if err != nil {
		r.logger.Error("Stored policy is invalid", zap.String("project_id", projectID), zap.Error(err))
		return nil, err
	}
	return p, nil
}

// Save replaces the policy of a project
func (r *PolicyRepository) Save(ctx context.Context, p *entity.ProjectPolicy) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}

	_, err = sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO project_policies (project_id, policy, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET policy = excluded.policy, updated_at = excluded.updated_at
	`, p.ProjectID, string(raw), p.UpdatedAt.UTC())
	if err != nil {
		r.logger.Error("Failed to save policy", zap.String("project_id", p.ProjectID), zap.Error(err))
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

var _ port.PolicyRepository = (*PolicyRepository)(nil)
