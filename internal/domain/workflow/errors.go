package workflow

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidTransition is returned when a trigger is not legal from the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrGuardFailed is returned when every guard of a legal trigger vetoed it
	ErrGuardFailed = errors.New("guard condition failed")

	// ErrStaleState is returned when the stored version no longer matches the
	// expected state. Callers should reload and retry.
	ErrStaleState = errors.New("stale state conflict")

	// ErrAlreadyLocked is returned when another actor holds the checkout lease
	ErrAlreadyLocked = errors.New("version already locked")

	// ErrLockNotHeld is returned when the actor does not hold the lease it tries to renew or release
	ErrLockNotHeld = errors.New("lock not held by actor")

	// ErrLockNotExpired is returned by force-unlock while the lease is still valid
	ErrLockNotExpired = errors.New("lock lease has not expired")

	// ErrMissingTemplateBinding is returned when the document type requires a template and none is bound
	ErrMissingTemplateBinding = errors.New("missing template binding")

	// ErrTemplateMismatch is returned when a template cannot be bound to the version's document type
	ErrTemplateMismatch = errors.New("template not usable for document type")

	// ErrEmptyContent is returned when submitting a version without content
	ErrEmptyContent = errors.New("version content is empty")

	// ErrDraftExists is returned when a document already has an open draft
	ErrDraftExists = errors.New("document already has an open draft version")

	// ErrNotFound is returned when a document or version does not exist
	ErrNotFound = errors.New("not found")
)

// LockHeldError names the current holder of a checkout lease
type LockHeldError struct {
	Holder    string
	ExpiresAt time.Time
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("version already locked by %s until %s", e.Holder, e.ExpiresAt.UTC().Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrAlreadyLocked) match
func (e *LockHeldError) Is(target error) bool {
	return target == ErrAlreadyLocked
}
