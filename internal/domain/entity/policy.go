package entity

import "time"

// ApprovalPolicy is the routing rule for one document type in a project
type ApprovalPolicy struct {
	ReviewerUserID         *string `json:"reviewer_user_id,omitempty"`
	ApproverUserID         string  `json:"approver_user_id"`
	AllowCreatorAsReviewer bool    `json:"allow_creator_as_reviewer"`
	AllowCreatorAsApprover bool    `json:"allow_creator_as_approver"`
}

// DocumentTypeRule carries per-type authoring requirements
type DocumentTypeRule struct {
	RequiresTemplate bool `json:"requires_template"`
}

// Member is a user participating in a project
type Member struct {
	UserID    string     `json:"user_id"`
	Roles     []RoleCode `json:"roles"`
	Temporary bool       `json:"temporary"`
}

// RetentionPolicy controls automatic archival of released versions
type RetentionPolicy struct {
	// ReleasedDays is the age after release at which a version is archived. Zero disables it.
	ReleasedDays int `json:"released_days"`
}

// Expired reports whether a version released at releasedAt is due for archival
func (p RetentionPolicy) Expired(releasedAt, now time.Time) bool {
	if p.ReleasedDays <= 0 {
		return false
	}
	return !now.Before(releasedAt.Add(time.Duration(p.ReleasedDays) * 24 * time.Hour))
}

// ProjectPolicy is the per-project governance configuration held by the policy store
type ProjectPolicy struct {
	ProjectID        string                      `json:"project_id"`
	FourEyes         bool                        `json:"four_eyes"`
	RequireReview    bool                        `json:"require_review"`
	RequiredDocTypes []string                    `json:"required_doc_types,omitempty"`
	DocumentTypes    map[string]DocumentTypeRule `json:"document_types,omitempty"`
	ApprovalPolicies map[string]ApprovalPolicy   `json:"approval_policies,omitempty"`
	Escalation       EscalationChain             `json:"escalation"`
	Raci             RaciMatrix                  `json:"raci"`
	Members          []Member                    `json:"members,omitempty"`
	ReleaseRoles     []RoleCode                  `json:"release_roles,omitempty"`
	ArchiveRoles     []RoleCode                  `json:"archive_roles,omitempty"`
	Retention        RetentionPolicy             `json:"retention"`
	UpdatedAt        time.Time                   `json:"updated_at"`
}

// ApprovalPolicyFor returns the routing rule for a document type, or nil when none is configured
func (p *ProjectPolicy) ApprovalPolicyFor(docType string) *ApprovalPolicy {
	if p == nil {
		return nil
	}
	ap, ok := p.ApprovalPolicies[docType]
	if !ok {
		return nil
	}
	return &ap
}

// RequiresTemplate reports whether versions of the document type must be bound to a template
func (p *ProjectPolicy) RequiresTemplate(docType string) bool {
	if p == nil {
		return false
	}
	return p.DocumentTypes[docType].RequiresTemplate
}

// EffectiveReleaseRoles falls back to the release manager role
func (p *ProjectPolicy) EffectiveReleaseRoles() []RoleCode {
	if p == nil || len(p.ReleaseRoles) == 0 {
		return []RoleCode{RoleReleaseManager}
	}
	return p.ReleaseRoles
}

// EffectiveArchiveRoles falls back to the organisation admin role
func (p *ProjectPolicy) EffectiveArchiveRoles() []RoleCode {
	if p == nil || len(p.ArchiveRoles) == 0 {
		return []RoleCode{RoleOrgAdmin}
	}
	return p.ArchiveRoles
}

// RoleVocabulary returns every role referenced by the policy in sorted order
func (p *ProjectPolicy) RoleVocabulary() []RoleCode {
	set := NewRoleSet(p.Raci.Roles()...)
	for _, m := range p.Members {
		for _, r := range m.Roles {
			set[r] = struct{}{}
		}
	}
	for _, lvl := range p.Escalation.Levels {
		if lvl.NotifyRole != "" {
			set[lvl.NotifyRole] = struct{}{}
		}
	}
	for _, r := range p.EffectiveReleaseRoles() {
		set[r] = struct{}{}
	}
	for _, r := range p.EffectiveArchiveRoles() {
		set[r] = struct{}{}
	}
	return set.Sorted()
}
