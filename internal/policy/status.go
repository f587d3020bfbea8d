package policy

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an SOP. Knowledge entries carry no
// status and are always mutable.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
)

// Action is a lifecycle verb applied to a governed resource.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionDelete  Action = "delete"
)

// SOP is the governance snapshot of a Standard Operating Procedure. Body
// fields (purpose, steps, ...) are opaque to this package and live with the
// storage layer; only the fields that gate decisions appear here.
type SOP struct {
	ID           string
	WorkspaceID  string
	DepartmentID string
	Title        string
	OwnerID      string
	Status       Status
	ApprovedBy   string
	ApprovedAt   *time.Time
	UpdatedAt    time.Time
}

// checkTransition validates that the action is structurally legal from the
// SOP's current status. Role and ownership are checked elsewhere; this is
// the (state, action) table only. editAny actors bypass the status gate on
// updates but never on submit, approve, or delete.
func checkTransition(action Action, status Status, editAny bool) error {
	switch action {
	case ActionCreate:
		return nil
	case ActionUpdate:
		if status == StatusApproved && !editAny {
			return fmt.Errorf("only admins can edit approved SOPs: %w", ErrInvalidTransition)
		}
		return nil
	case ActionSubmit:
		if status != StatusDraft {
			return fmt.Errorf("only draft SOPs can be submitted: %w", ErrInvalidTransition)
		}
		return nil
	case ActionApprove:
		if status != StatusPending {
			return fmt.Errorf("only pending SOPs can be approved: %w", ErrInvalidTransition)
		}
		return nil
	case ActionDelete:
		// Deletion is draft-only for every role; there is no admin override.
		if status != StatusDraft {
			return fmt.Errorf("only draft SOPs can be deleted: %w", ErrInvalidTransition)
		}
		return nil
	default:
		return fmt.Errorf("unknown action %q: %w", action, ErrInvalidTransition)
	}
}
