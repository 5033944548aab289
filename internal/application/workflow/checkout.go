package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/event"
	domainwf "github.com/garyjia/controlled-docs/internal/domain/workflow"
)

// Checkout claims the edit lease on a draft. Checking out a version the actor
// already holds extends the lease.
func (e *engineImpl) Checkout(ctx context.Context, actor entity.Actor, versionID string) (*entity.DocumentVersion, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	v, err := e.loadVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if !v.State.IsEditable() {
		return nil, fmt.Errorf("%w: cannot check out a version in state %s", domainwf.ErrInvalidTransition, v.State)
	}

	now := e.now()
	if err := lockConflict(v, actor.ID, now); err != nil {
		return nil, err
	}

	ok, err := e.versions.ClaimLock(ctx, v.ID, actor.ID, now, now.Add(e.lockTTL))
	if err != nil {
		return nil, fmt.Errorf("claim lock: %w", err)
	}
	if !ok {
		// Lost the race against another checkout or a state change
		return nil, e.explainLostClaim(ctx, v.ID, actor.ID)
	}

	v, err = e.loadVersion(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	e.emitLockChange(ctx, v, actor.ID, "checkout")
	return v, nil
}

// RenewLock extends the lease held by the actor
func (e *engineImpl) RenewLock(ctx context.Context, actor entity.Actor, versionID string) (*entity.DocumentVersion, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	v, err := e.loadVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.State != domainwf.StateDraft {
		return nil, fmt.Errorf("%w: cannot renew a lock on a version in state %s", domainwf.ErrInvalidTransition, v.State)
	}
	if deref(v.LockedBy) != actor.ID {
		return nil, fmt.Errorf("%w: %s does not hold the lock on version %s", domainwf.ErrLockNotHeld, actor.ID, v.VersionString)
	}

	now := e.now()
	expectedRevision := v.Revision
	v.LockedAt = timePtr(now)
	v.LockExpiresAt = timePtr(now.Add(e.lockTTL))
	v.UpdatedAt = now

	if err := e.versions.CompareAndSwap(ctx, v, domainwf.StateDraft, expectedRevision); err != nil {
		return nil, err
	}
	e.emitLockChange(ctx, v, actor.ID, "renew")
	return v, nil
}

// ReleaseLock gives up the lease held by the actor
func (e *engineImpl) ReleaseLock(ctx context.Context, actor entity.Actor, versionID string) (*entity.DocumentVersion, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	v, err := e.loadVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if deref(v.LockedBy) != actor.ID {
		return nil, fmt.Errorf("%w: %s does not hold the lock on version %s", domainwf.ErrLockNotHeld, actor.ID, v.VersionString)
	}
	if err := e.clearLock(ctx, v); err != nil {
		return nil, err
	}
	e.emitLockChange(ctx, v, actor.ID, "release")
	return v, nil
}

// ForceUnlock clears somebody else's lease. Allowed once the lease has expired,
// or at any time for holders of the project's archive roles.
func (e *engineImpl) ForceUnlock(ctx context.Context, actor entity.Actor, versionID string) (*entity.DocumentVersion, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	v, _, pp, err := e.loadContext(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.LockedBy == nil {
		return v, nil
	}

	holder := v.LockHolder(e.now())
	if holder != "" && !actor.Roles.HasAny(pp.EffectiveArchiveRoles()) {
		return nil, fmt.Errorf("%w: held by %s until %s", domainwf.ErrLockNotExpired, holder, v.LockExpiresAt.UTC().Format(time.RFC3339))
	}

	previous := deref(v.LockedBy)
	if err := e.clearLock(ctx, v); err != nil {
		return nil, err
	}
	e.warn("Checkout lock force-released", "version_id", v.ID, "holder", previous, "actor", actor.ID)
	e.emitLockChange(ctx, v, actor.ID, "force_unlock")
	return v, nil
}

func (e *engineImpl) clearLock(ctx context.Context, v *entity.DocumentVersion) error {
	expectedRevision := v.Revision
	v.ClearLock()
	v.UpdatedAt = e.now()
	return e.versions.CompareAndSwap(ctx, v, v.State, expectedRevision)
}

func (e *engineImpl) explainLostClaim(ctx context.Context, versionID, actorID string) error {
	current, err := e.loadVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if !current.State.IsEditable() {
		return fmt.Errorf("%w: version moved to %s", domainwf.ErrStaleState, current.State)
	}
	if err := lockConflict(current, actorID, e.now()); err != nil {
		return err
	}
	return domainwf.ErrStaleState
}

func (e *engineImpl) emitLockChange(ctx context.Context, v *entity.DocumentVersion, actorID, action string) {
	e.emit(ctx, event.NewEvent(event.TypeVersionLockChanged, v.DocumentID, v.ID, actorID, map[string]interface{}{
		event.KeyAction:     action,
		event.KeyLockHolder: deref(v.LockedBy),
	}))
}

// lockConflict reports a live lease held by someone other than actorID
func lockConflict(v *entity.DocumentVersion, actorID string, now time.Time) error {
	holder := v.LockHolder(now)
	if holder == "" || holder == actorID {
		return nil
	}
	held := &domainwf.LockHeldError{Holder: holder}
	if v.LockExpiresAt != nil {
		held.ExpiresAt = *v.LockExpiresAt
	}
	return held
}
