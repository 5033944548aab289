package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/event"
	"github.com/garyjia/controlled-docs/internal/domain/policy"
	domainwf "github.com/garyjia/controlled-docs/internal/domain/workflow"
)

// transitionSpec describes one state change of a version
type transitionSpec struct {
	trigger domainwf.Trigger
	action  string
	guard   domainwf.GuardFunc
	comment string
	// mutate applies side-effect fields after the machine accepted the trigger
	mutate func(v *entity.DocumentVersion, now time.Time)
	// within runs extra writes inside the same transaction
	within func(txCtx context.Context, now time.Time) error
}

// fire validates the trigger against the state machine and commits the new state
// with a compare-and-set on the loaded state and revision.
func (e *engineImpl) fire(ctx context.Context, actor entity.Actor, v *entity.DocumentVersion, tr transitionSpec) error {
	machine := BuildVersionStateMachine(v.State, Guards{tr.trigger: tr.guard})

	fromState := v.State
	expectedRevision := v.Revision

	if err := machine.Fire(ctx, tr.trigger); err != nil {
		return err
	}

	now := e.now()
	v.State = machine.State()
	v.UpdatedAt = now
	if tr.mutate != nil {
		tr.mutate(v, now)
	}

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.versions.CompareAndSwap(txCtx, v, fromState, expectedRevision); err != nil {
			return err
		}
		if err := e.recordHistory(txCtx, v.ID, tr.action, fromState, v.State, actor.ID, tr.comment, now); err != nil {
			return err
		}
		if tr.within != nil {
			return tr.within(txCtx, now)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.emit(ctx, event.NewTransition(v.DocumentID, v.ID, actor.ID, tr.action, fromState.String(), v.State.String(), now))
	return nil
}

// Submit moves a DRAFT into review after resolving and validating its routing
func (e *engineImpl) Submit(ctx context.Context, actor entity.Actor, versionID string) (*entity.DocumentVersion, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	v, doc, pp, err := e.loadContext(ctx, versionID)
	if err != nil {
		return nil, err
	}

	var routing policy.Routing
	guard := func(ctx context.Context) error {
		if !v.HasContent() {
			return domainwf.ErrEmptyContent
		}
		if pp.RequiresTemplate(doc.DocType) && v.TemplateID == nil {
			return fmt.Errorf("%w: document type %s", domainwf.ErrMissingTemplateBinding, doc.DocType)
		}
		if err := lockConflict(v, actor.ID, e.now()); err != nil {
			return err
		}
		resolved, err := policy.Evaluate(e.routingRequest(doc, pp, routingOf(v)))
		if err != nil {
			return err
		}
		routing = resolved
		return nil
	}

	err = e.fire(ctx, actor, v, transitionSpec{
		trigger: domainwf.TriggerSubmit,
		action:  entity.ActionSubmit,
		guard:   guard,
		mutate: func(v *entity.DocumentVersion, now time.Time) {
			v.SubmittedAt = timePtr(now)
			v.ApproverID = strPtr(routing.ApproverID)
			v.ReviewerID = nil
			if routing.ReviewerID != "" {
				v.ReviewerID = strPtr(routing.ReviewerID)
			}
			v.ClearLock()
		},
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Endorse records the reviewer's sign-off without changing state
func (e *engineImpl) Endorse(ctx context.Context, actor entity.Actor, versionID, comment string) (*entity.DocumentVersion, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	v, err := e.loadVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.State != domainwf.StateInReview {
		return nil, fmt.Errorf("%w: cannot endorse a version in state %s", domainwf.ErrInvalidTransition, v.State)
	}
	if err := policy.RequireReviewer(actor.ID, routingOf(v)); err != nil {
		return nil, err
	}
	if v.ReviewedAt != nil {
		return v, nil
	}

	now := e.now()
	expectedRevision := v.Revision
	v.ReviewedBy = strPtr(actor.ID)
	v.ReviewedAt = timePtr(now)
	v.UpdatedAt = now

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.versions.CompareAndSwap(txCtx, v, domainwf.StateInReview, expectedRevision); err != nil {
			return err
		}
		return e.recordHistory(txCtx, v.ID, entity.ActionEndorse, v.State, v.State, actor.ID, comment, now)
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, event.NewEvent(event.TypeVersionEdited, v.DocumentID, v.ID, actor.ID, map[string]interface{}{
		event.KeyAction:  entity.ActionEndorse,
		event.KeyComment: comment,
	}))
	return v, nil
}

// Approve moves a version under review to APPROVED when the actor is its approver
func (e *engineImpl) Approve(ctx context.Context, actor entity.Actor, versionID, comment string) (*entity.DocumentVersion, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	v, doc, pp, err := e.loadContext(ctx, versionID)
	if err != nil {
		return nil, err
	}

	guard := func(ctx context.Context) error {
		routing := routingOf(v)
		if err := policy.RequireApprover(actor.ID, routing); err != nil {
			return err
		}
		if err := policy.Validate(e.routingRequest(doc, pp, routing), routing); err != nil {
			return err
		}
		if pp != nil && pp.RequireReview && v.ReviewerID != nil && v.ReviewedAt == nil {
			return &policy.Violation{Reason: policy.ReasonReviewPending, Detail: "reviewer " + *v.ReviewerID + " has not endorsed"}
		}
		return nil
	}

	err = e.fire(ctx, actor, v, transitionSpec{
		trigger: domainwf.TriggerApprove,
		action:  entity.ActionApprove,
		guard:   guard,
		comment: comment,
		mutate: func(v *entity.DocumentVersion, now time.Time) {
			v.ApprovedBy = strPtr(actor.ID)
			v.ApprovedAt = timePtr(now)
		},
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Reject ends the review of a version. The version becomes REJECTED and a new
// version has to be created to continue authoring.
func (e *engineImpl) Reject(ctx context.Context, actor entity.Actor, versionID, comment string) (*entity.DocumentVersion, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	v, err := e.loadVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	err = e.fire(ctx, actor, v, transitionSpec{
		trigger: domainwf.TriggerReject,
		action:  entity.ActionReject,
		comment: comment,
		guard: func(ctx context.Context) error {
			return policy.RequireReviewerOrApprover(actor.ID, routingOf(v))
		},
		mutate: func(v *entity.DocumentVersion, now time.Time) {
			v.RejectedBy = strPtr(actor.ID)
			v.RejectedAt = timePtr(now)
			v.RejectNote = comment
		},
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Release publishes an approved version, archives the previously released sibling
// and points the document at the new version, all in one transaction.
func (e *engineImpl) Release(ctx context.Context, actor entity.Actor, versionID string) (*entity.DocumentVersion, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	v, _, pp, err := e.loadContext(ctx, versionID)
	if err != nil {
		return nil, err
	}

	var superseded []*entity.DocumentVersion

	err = e.fire(ctx, actor, v, transitionSpec{
		trigger: domainwf.TriggerRelease,
		action:  entity.ActionRelease,
		guard: func(ctx context.Context) error {
			return policy.RequireRole(actor, pp.EffectiveReleaseRoles(), policy.ReasonMissingReleaseRole)
		},
		mutate: func(v *entity.DocumentVersion, now time.Time) {
			v.ReleasedAt = timePtr(now)
		},
		within: func(txCtx context.Context, now time.Time) error {
			superseded = superseded[:0]
			released, err := e.versions.ListByState(txCtx, v.DocumentID, domainwf.StateReleased)
			if err != nil {
				return fmt.Errorf("list released versions: %w", err)
			}
			for _, prior := range released {
				if prior.ID == v.ID {
					continue
				}
				expectedRevision := prior.Revision
				prior.State = domainwf.StateArchived
				prior.ArchivedAt = timePtr(now)
				prior.UpdatedAt = now
				if err := e.versions.CompareAndSwap(txCtx, prior, domainwf.StateReleased, expectedRevision); err != nil {
					return fmt.Errorf("archive superseded version %s: %w", prior.VersionString, err)
				}
				comment := "superseded by " + v.VersionString
				if err := e.recordHistory(txCtx, prior.ID, entity.ActionSupersede, domainwf.StateReleased, domainwf.StateArchived, actor.ID, comment, now); err != nil {
					return err
				}
				superseded = append(superseded, prior)
			}
			if err := e.documents.SetCurrentVersion(txCtx, v.DocumentID, v.ID, now); err != nil {
				return fmt.Errorf("set current version: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	for _, prior := range superseded {
		e.emit(ctx, event.NewTransition(prior.DocumentID, prior.ID, actor.ID, entity.ActionSupersede,
			domainwf.StateReleased.String(), domainwf.StateArchived.String(), *prior.ArchivedAt))
	}
	return v, nil
}

// Archive retires a released version on an explicit admin request
func (e *engineImpl) Archive(ctx context.Context, actor entity.Actor, versionID, reason string) (*entity.DocumentVersion, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	v, _, pp, err := e.loadContext(ctx, versionID)
	if err != nil {
		return nil, err
	}

	err = e.archive(ctx, actor, v, reason, func(ctx context.Context) error {
		return policy.RequireRole(actor, pp.EffectiveArchiveRoles(), policy.ReasonMissingArchiveRole)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (e *engineImpl) archive(ctx context.Context, actor entity.Actor, v *entity.DocumentVersion, reason string, guard domainwf.GuardFunc) error {
	return e.fire(ctx, actor, v, transitionSpec{
		trigger: domainwf.TriggerArchive,
		action:  entity.ActionArchive,
		guard:   guard,
		comment: reason,
		mutate: func(v *entity.DocumentVersion, now time.Time) {
			v.ArchivedAt = timePtr(now)
		},
	})
}

// ArchiveExpired archives released versions whose project retention period has elapsed.
// Conflicts with concurrent commands are skipped and picked up by the next run.
func (e *engineImpl) ArchiveExpired(ctx context.Context, now time.Time) (int, error) {
	refs, err := e.versions.ListReleased(ctx)
	if err != nil {
		return 0, fmt.Errorf("list released versions: %w", err)
	}

	policies := make(map[string]*entity.ProjectPolicy)
	archived := 0
	system := entity.SystemActor()

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return archived, err
		}

		pp, ok := policies[ref.ProjectID]
		if !ok {
			pp, err = e.policies.Get(ctx, ref.ProjectID)
			if err != nil {
				return archived, fmt.Errorf("load policy for project %s: %w", ref.ProjectID, err)
			}
			policies[ref.ProjectID] = pp
		}
		if pp == nil || !pp.Retention.Expired(ref.At, now) {
			continue
		}

		v, err := e.loadVersion(ctx, ref.VersionID)
		if err != nil {
			return archived, err
		}

		reason := fmt.Sprintf("retention period of %d days elapsed", pp.Retention.ReleasedDays)
		if err := e.archive(ctx, system, v, reason, nil); err != nil {
			if errors.Is(err, domainwf.ErrStaleState) || errors.Is(err, domainwf.ErrInvalidTransition) {
				e.warn("Skipping retention archival after concurrent change", "version_id", ref.VersionID, "error", err)
				continue
			}
			return archived, fmt.Errorf("archive version %s: %w", ref.VersionID, err)
		}
		archived++
	}

	return archived, nil
}

func (e *engineImpl) routingRequest(doc *entity.Document, pp *entity.ProjectPolicy, proposed policy.Routing) policy.Request {
	req := policy.Request{
		DocType:   doc.DocType,
		Policy:    pp.ApprovalPolicyFor(doc.DocType),
		Proposed:  proposed,
		CreatorID: doc.CreatedBy,
	}
	if pp != nil {
		req.FourEyes = pp.FourEyes
		req.Members = pp.Members
	}
	return req
}

func routingOf(v *entity.DocumentVersion) policy.Routing {
	return policy.Routing{ReviewerID: deref(v.ReviewerID), ApproverID: deref(v.ApproverID)}
}

func (e *engineImpl) warn(msg string, keysAndValues ...interface{}) {
	if e.logger != nil {
		e.logger.Warn(msg, keysAndValues...)
	}
}
