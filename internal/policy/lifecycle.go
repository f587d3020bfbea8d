package policy

import (
	"fmt"
	"time"
)

// EventKind is the stable action-kind string recorded in the activity log.
type EventKind string

const (
	EventSOPCreated        EventKind = "sop_created"
	EventSOPUpdated        EventKind = "sop_updated"
	EventSOPSubmitted      EventKind = "sop_submitted"
	EventSOPApproved       EventKind = "sop_approved"
	EventSOPDeleted        EventKind = "sop_deleted"
	EventDepartmentCreated EventKind = "department_created"
	EventDepartmentDeleted EventKind = "department_deleted"
	EventUserCreated       EventKind = "user_created"
	EventUserUpdated       EventKind = "user_updated"
	EventUserDeleted       EventKind = "user_deleted"
	EventEntryCreated      EventKind = "entry_created"
	EventEntryUpdated      EventKind = "entry_updated"
	EventEntryDeleted      EventKind = "entry_deleted"
	EventTopicAdded        EventKind = "topic_added"
	EventSubtopicAdded     EventKind = "subtopic_added"
	EventDocumentUploaded  EventKind = "document_uploaded"
)

// Event is the audit record produced by Apply. It is a value; persisting it
// is the caller's responsibility.
type Event struct {
	Kind        EventKind
	EntityType  string
	EntityID    string
	Details     string
	UserName    string
	WorkspaceID string
	At          time.Time
}

// Apply authorizes the action against the snapshot and, on success, returns
// the resulting snapshot plus the audit event describing what happened.
// Apply never mutates its input and never performs I/O: the caller commits
// the new snapshot (or, for deletes, removes the row) and appends the event.
// On rejection the snapshot is returned unchanged and no event is emitted.
func Apply(actor Actor, action Action, sop SOP, now time.Time) (SOP, Event, error) {
	var snapshot *SOP
	if action != ActionCreate {
		snapshot = &sop
	}
	if err := Authorize(actor, action, snapshot); err != nil {
		return sop, Event{}, err
	}

	next := sop
	var kind EventKind
	var details string

	switch action {
	case ActionCreate:
		next.Status = StatusDraft
		next.OwnerID = actor.ID
		next.ApprovedBy = ""
		next.ApprovedAt = nil
		next.UpdatedAt = now
		kind = EventSOPCreated
		details = "Created SOP: " + next.Title
	case ActionUpdate:
		next.UpdatedAt = now
		kind = EventSOPUpdated
		details = "Updated SOP: " + next.Title
	case ActionSubmit:
		next.Status = StatusPending
		next.UpdatedAt = now
		kind = EventSOPSubmitted
		details = "Submitted SOP for approval: " + next.Title
	case ActionApprove:
		next.Status = StatusApproved
		next.ApprovedBy = actor.ID
		t := now
		next.ApprovedAt = &t
		next.UpdatedAt = now
		kind = EventSOPApproved
		details = "Approved SOP: " + next.Title
	case ActionDelete:
		kind = EventSOPDeleted
		details = "Deleted SOP: " + next.Title
	default:
		return sop, Event{}, fmt.Errorf("unknown action %q: %w", action, ErrInvalidTransition)
	}

	event := Event{
		Kind:        kind,
		EntityType:  "sop",
		EntityID:    next.ID,
		Details:     details,
		UserName:    actor.Name,
		WorkspaceID: next.WorkspaceID,
		At:          now,
	}
	return next, event, nil
}
