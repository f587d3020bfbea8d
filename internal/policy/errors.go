package policy

import (
	"errors"
	"fmt"
)

// Rejection sentinels. Every denial returned by this package wraps exactly
// one of these, so callers can classify with errors.Is while the message
// stays specific.
var (
	// ErrUnknownRole means the actor carries an unrecognized role value;
	// callers should treat it as a misconfiguration, not a user error.
	ErrUnknownRole = errors.New("unknown role")
	// ErrInsufficientRole means the actor's role lacks the required capability.
	ErrInsufficientRole = errors.New("insufficient role")
	// ErrNotOwner means the actor neither owns the resource nor holds an
	// override capability.
	ErrNotOwner = errors.New("not the owner of this resource")
	// ErrInvalidTransition means the action is illegal from the resource's
	// current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrSelfReference means an actor attempted to delete their own account.
	ErrSelfReference = errors.New("cannot delete your own account")
	// ErrReferenced matches any ReferencedByError via errors.Is.
	ErrReferenced = errors.New("resource is still referenced")
)

// ReferencedByError blocks deletion of a resource that other rows still
// point at. The message carries the exact count with correct pluralization.
type ReferencedByError struct {
	Resource string // "department" or "user"
	Count    int
}

func (e *ReferencedByError) Error() string {
	plural := "s are"
	if e.Count == 1 {
		plural = " is"
	}
	switch e.Resource {
	case "user":
		if e.Count == 1 {
			return "cannot delete - user owns 1 SOP"
		}
		return fmt.Sprintf("cannot delete - user owns %d SOPs", e.Count)
	default:
		return fmt.Sprintf("cannot delete department: %d SOP%s assigned", e.Count, plural)
	}
}

func (e *ReferencedByError) Is(target error) bool {
	return target == ErrReferenced
}
