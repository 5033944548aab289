package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/policy"
	domainwf "github.com/garyjia/controlled-docs/internal/domain/workflow"
)

// PolicyService administers project policies held by the policy store
type PolicyService interface {
	GetPolicy(ctx context.Context, projectID string) (*entity.ProjectPolicy, error)
	// SavePolicy validates a JSON policy document and replaces the stored one
	SavePolicy(ctx context.Context, projectID string, raw []byte) (*entity.ProjectPolicy, error)
	// ImportRaci replaces the RACI matrix of a project from a spreadsheet
	ImportRaci(ctx context.Context, projectID string, r io.Reader) (*entity.ProjectPolicy, error)
	// Roles lists the role vocabulary of a project
	Roles(ctx context.Context, projectID string) ([]entity.RoleCode, error)
}

type policyServiceImpl struct {
	policies port.PolicyRepository
	raci     port.RaciParser
	logger   Logger
	now      func() time.Time
}

// NewPolicyService creates a new PolicyService
func NewPolicyService(policies port.PolicyRepository, raci port.RaciParser, logger Logger) PolicyService {
	return &policyServiceImpl{
		policies: policies,
		raci:     raci,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *policyServiceImpl) GetPolicy(ctx context.Context, projectID string) (*entity.ProjectPolicy, error) {
	pp, err := s.policies.Get(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	if pp == nil {
		return nil, fmt.Errorf("policy for project %s: %w", projectID, domainwf.ErrNotFound)
	}
	return pp, nil
}

func (s *policyServiceImpl) SavePolicy(ctx context.Context, projectID string, raw []byte) (*entity.ProjectPolicy, error) {
	pp, err := policy.Decode(raw)
	if err != nil {
		return nil, err
	}
	if pp.ProjectID != projectID {
		return nil, fmt.Errorf("%w: project_id %q does not match %q", policy.ErrInvalidPolicy, pp.ProjectID, projectID)
	}
	pp.UpdatedAt = s.now()

	if err := s.policies.Save(ctx, pp); err != nil {
		return nil, fmt.Errorf("save policy: %w", err)
	}

	s.logger.Info("Project policy saved",
		"project_id", projectID,
		"four_eyes", pp.FourEyes,
		"approval_policies", len(pp.ApprovalPolicies),
		"escalation_levels", len(pp.Escalation.Levels),
	)
	return pp, nil
}

func (s *policyServiceImpl) ImportRaci(ctx context.Context, projectID string, r io.Reader) (*entity.ProjectPolicy, error) {
	if s.raci == nil {
		return nil, fmt.Errorf("%w: RACI import is not configured", policy.ErrInvalidPolicy)
	}

	matrix, err := s.raci.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", policy.ErrInvalidPolicy, err)
	}

	pp, err := s.policies.Get(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	if pp == nil {
		pp = &entity.ProjectPolicy{ProjectID: projectID}
	}
	pp.Raci = matrix

	// Decode applies the same validation as SavePolicy
	raw, err := json.Marshal(pp)
	if err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}
	validated, err := policy.Decode(raw)
	if err != nil {
		return nil, err
	}
	validated.UpdatedAt = s.now()

	if err := s.policies.Save(ctx, validated); err != nil {
		return nil, fmt.Errorf("save policy: %w", err)
	}

	s.logger.Info("RACI matrix imported",
		"project_id", projectID,
		"stages", len(matrix.Stages),
		"roles", len(matrix.Roles()),
	)
	return validated, nil
}

func (s *policyServiceImpl) Roles(ctx context.Context, projectID string) ([]entity.RoleCode, error) {
	pp, err := s.GetPolicy(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return pp.RoleVocabulary(), nil
}
