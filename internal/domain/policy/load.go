package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garyjia/controlled-docs/internal/domain/entity"
)

// Decode parses a stored project policy document and validates it.
// Malformed role codes fail here instead of being filtered later.
func Decode(raw []byte) (*entity.ProjectPolicy, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var p entity.ProjectPolicy
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	if err := ValidateProject(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ValidateProject checks the structural rules of a project policy
func ValidateProject(p *entity.ProjectPolicy) error {
	if strings.TrimSpace(p.ProjectID) == "" {
		return fmt.Errorf("%w: project_id is required", ErrInvalidPolicy)
	}

	for docType, ap := range p.ApprovalPolicies {
		if strings.TrimSpace(docType) == "" {
			return fmt.Errorf("%w: approval policy with empty document type", ErrInvalidPolicy)
		}
		if strings.TrimSpace(ap.ApproverUserID) == "" {
			return fmt.Errorf("%w: approval policy for %s has no approver", ErrInvalidPolicy, docType)
		}
		if p.FourEyes && ap.ReviewerUserID != nil && *ap.ReviewerUserID == ap.ApproverUserID {
			return fmt.Errorf("%w: approval policy for %s: %w", ErrInvalidPolicy, docType,
				&Violation{Reason: ReasonReviewerApproverMustDiffer, Detail: ap.ApproverUserID})
		}
	}

	for docType := range p.DocumentTypes {
		if strings.TrimSpace(docType) == "" {
			return fmt.Errorf("%w: document type rule with empty code", ErrInvalidPolicy)
		}
	}

	for i, lvl := range p.Escalation.Levels {
		if lvl.DaysAfter < 0 {
			return fmt.Errorf("%w: escalation level %d has negative days_after", ErrInvalidPolicy, i)
		}
		if lvl.NotifyRole == "" && len(lvl.NotifyUsers) == 0 {
			return fmt.Errorf("%w: escalation level %d notifies nobody", ErrInvalidPolicy, i)
		}
		if lvl.NotifyRole != "" && !lvl.NotifyRole.IsValid() {
			return fmt.Errorf("%w: escalation level %d: %w", ErrInvalidPolicy, i, entity.ErrInvalidRoleCode)
		}
	}

	seen := make(map[string]bool, len(p.Members))
	for _, m := range p.Members {
		if strings.TrimSpace(m.UserID) == "" {
			return fmt.Errorf("%w: member with empty user_id", ErrInvalidPolicy)
		}
		if seen[m.UserID] {
			return fmt.Errorf("%w: duplicate member %s", ErrInvalidPolicy, m.UserID)
		}
		seen[m.UserID] = true
		if err := validRoles(m.Roles); err != nil {
			return fmt.Errorf("%w: member %s: %w", ErrInvalidPolicy, m.UserID, err)
		}
	}

	if err := validRoles(p.ReleaseRoles); err != nil {
		return fmt.Errorf("%w: release_roles: %w", ErrInvalidPolicy, err)
	}
	if err := validRoles(p.ArchiveRoles); err != nil {
		return fmt.Errorf("%w: archive_roles: %w", ErrInvalidPolicy, err)
	}

	for _, stage := range p.Raci.Stages {
		for _, task := range stage.Tasks {
			for role := range task.Assignments {
				if !role.IsValid() {
					return fmt.Errorf("%w: raci %s/%s: %w", ErrInvalidPolicy, stage.Name, task.Name, entity.ErrInvalidRoleCode)
				}
			}
		}
	}

	if p.Retention.ReleasedDays < 0 {
		return fmt.Errorf("%w: retention.released_days must not be negative", ErrInvalidPolicy)
	}

	return nil
}

func validRoles(roles []entity.RoleCode) error {
	for _, r := range roles {
		if !r.IsValid() {
			return fmt.Errorf("%w: %q", entity.ErrInvalidRoleCode, r)
		}
	}
	return nil
}
