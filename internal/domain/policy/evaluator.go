// Package policy evaluates approval routing and separation-of-duties rules.
// Everything here is pure: no I/O, no clocks, no shared state.
package policy

import (
	"github.com/garyjia/controlled-docs/internal/domain/entity"
)

// Routing is a reviewer/approver assignment. An empty ReviewerID means no review stage.
type Routing struct {
	ReviewerID string
	ApproverID string
}

// Request is the input to Evaluate
type Request struct {
	DocType   string
	Policy    *entity.ApprovalPolicy
	Proposed  Routing
	CreatorID string
	FourEyes  bool
	// Members restricts assignment to project members when non-empty
	Members []entity.Member
}

// Evaluate resolves the effective routing for a version and validates it.
//
// When a policy exists for the document type its users are the routing and a
// conflicting proposal is rejected. Without a policy the proposal is used as is.
func Evaluate(req Request) (Routing, error) {
	routing, err := resolve(req)
	if err != nil {
		return Routing{}, err
	}
	if err := Validate(req, routing); err != nil {
		return Routing{}, err
	}
	return routing, nil
}

func resolve(req Request) (Routing, error) {
	if req.Policy == nil {
		return req.Proposed, nil
	}

	routing := Routing{ApproverID: req.Policy.ApproverUserID}
	if req.Policy.ReviewerUserID != nil {
		routing.ReviewerID = *req.Policy.ReviewerUserID
	}

	if req.Proposed.ApproverID != "" && req.Proposed.ApproverID != routing.ApproverID {
		return Routing{}, violation(ReasonRoutingMismatch,
			"approver %s differs from %s policy approver", req.Proposed.ApproverID, req.DocType)
	}
	if req.Proposed.ReviewerID != "" && req.Proposed.ReviewerID != routing.ReviewerID {
		return Routing{}, violation(ReasonRoutingMismatch,
			"reviewer %s differs from %s policy reviewer", req.Proposed.ReviewerID, req.DocType)
	}

	return routing, nil
}

// Validate checks a concrete routing against the 4-eyes, creator and membership rules
func Validate(req Request, r Routing) error {
	if r.ApproverID == "" {
		return ErrApproverRequired
	}

	if req.FourEyes {
		// Checked before creator exclusion so the outcome does not depend on who created the version
		if r.ReviewerID != "" && r.ReviewerID == r.ApproverID {
			return violation(ReasonReviewerApproverMustDiffer, "%s cannot both review and approve", r.ApproverID)
		}
		if r.ReviewerID != "" && r.ReviewerID == req.CreatorID {
			return violation(ReasonCreatorNotEligible, "creator %s cannot review", req.CreatorID)
		}
		if r.ApproverID == req.CreatorID {
			return violation(ReasonCreatorNotEligible, "creator %s cannot approve", req.CreatorID)
		}
	} else if req.Policy != nil {
		if r.ReviewerID != "" && r.ReviewerID == req.CreatorID && !req.Policy.AllowCreatorAsReviewer {
			return violation(ReasonCreatorRoleNotAllowed, "creator %s may not review %s", req.CreatorID, req.DocType)
		}
		if r.ApproverID == req.CreatorID && !req.Policy.AllowCreatorAsApprover {
			return violation(ReasonCreatorRoleNotAllowed, "creator %s may not approve %s", req.CreatorID, req.DocType)
		}
	}

	return checkMembership(req.Members, r)
}

func checkMembership(members []entity.Member, r Routing) error {
	if len(members) == 0 {
		return nil
	}

	byID := make(map[string]entity.Member, len(members))
	for _, m := range members {
		byID[m.UserID] = m
	}

	approver, ok := byID[r.ApproverID]
	if !ok {
		return violation(ReasonNotProjectMember, "approver %s is not a project member", r.ApproverID)
	}
	if approver.Temporary {
		return violation(ReasonTemporaryMemberApprover, "approver %s is a temporary member", r.ApproverID)
	}
	if r.ReviewerID != "" {
		if _, ok := byID[r.ReviewerID]; !ok {
			return violation(ReasonNotProjectMember, "reviewer %s is not a project member", r.ReviewerID)
		}
	}
	return nil
}

// RequireApprover checks that the actor is the assigned approver
func RequireApprover(actorID string, r Routing) error {
	if actorID == "" || actorID != r.ApproverID {
		return violation(ReasonNotAssignedApprover, "%s is not the assigned approver", actorID)
	}
	return nil
}

// RequireReviewer checks that the actor is the assigned reviewer
func RequireReviewer(actorID string, r Routing) error {
	if r.ReviewerID == "" || actorID != r.ReviewerID {
		return violation(ReasonNotAssignedReviewer, "%s is not the assigned reviewer", actorID)
	}
	return nil
}

// RequireReviewerOrApprover checks that the actor is one of the assigned parties
func RequireReviewerOrApprover(actorID string, r Routing) error {
	if actorID != "" && (actorID == r.ApproverID || actorID == r.ReviewerID) {
		return nil
	}
	return violation(ReasonNotAssignedReviewer, "%s is neither reviewer nor approver", actorID)
}

// RequireRole checks that the actor holds at least one of the roles
func RequireRole(actor entity.Actor, roles []entity.RoleCode, reason Reason) error {
	if actor.Roles.HasAny(roles) {
		return nil
	}
	return violation(reason, "%s lacks one of %v", actor.ID, roles)
}
