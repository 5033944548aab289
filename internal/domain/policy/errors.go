package policy

import (
	"errors"
	"fmt"
)

var (
	// ErrPolicyViolation is matched by every *Violation
	ErrPolicyViolation = errors.New("policy violation")

	// ErrApproverRequired is returned when no approver can be resolved for a version
	ErrApproverRequired = errors.New("approver required")

	// ErrInvalidPolicy is returned when stored policy data fails validation
	ErrInvalidPolicy = errors.New("invalid project policy")
)

// Reason is the sub-code of a policy violation
type Reason string

const (
	ReasonCreatorNotEligible         Reason = "CreatorNotEligible"
	ReasonReviewerApproverMustDiffer Reason = "ReviewerApproverMustDiffer"
	ReasonCreatorRoleNotAllowed      Reason = "CreatorRoleNotAllowed"
	ReasonRoutingMismatch            Reason = "RoutingMismatch"
	ReasonNotProjectMember           Reason = "NotProjectMember"
	ReasonTemporaryMemberApprover    Reason = "TemporaryMemberCannotApprove"
	ReasonNotAssignedApprover        Reason = "NotAssignedApprover"
	ReasonNotAssignedReviewer        Reason = "NotAssignedReviewer"
	ReasonReviewPending              Reason = "ReviewPending"
	ReasonMissingReleaseRole         Reason = "MissingReleaseRole"
	ReasonMissingArchiveRole         Reason = "MissingArchiveRole"
)

// Violation reports which governance rule rejected a command
type Violation struct {
	Reason Reason
	Detail string
}

func (v *Violation) Error() string {
	if v.Detail == "" {
		return fmt.Sprintf("policy violation: %s", v.Reason)
	}
	return fmt.Sprintf("policy violation: %s: %s", v.Reason, v.Detail)
}

// Is makes errors.Is(err, ErrPolicyViolation) match
func (v *Violation) Is(target error) bool {
	return target == ErrPolicyViolation
}

func violation(reason Reason, format string, args ...interface{}) error {
	return &Violation{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the violation sub-code from an error chain
func ReasonOf(err error) (Reason, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v.Reason, true
	}
	return "", false
}
