// Package activity is the append-only activity log: every lifecycle action
// in either workspace lands here as an immutable entry.
package activity

import (
	"time"

	"github.com/landmarktitle/tessa/internal/policy"
)

// Entry is a single activity log record.
type Entry struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id,omitempty"`
	Details     string    `json:"details"`
	UserName    string    `json:"user_name"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// FromEvent converts a lifecycle event into a log entry.
func FromEvent(ev policy.Event) Entry {
	return Entry{
		Action:      string(ev.Kind),
		EntityType:  ev.EntityType,
		EntityID:    ev.EntityID,
		Details:     ev.Details,
		UserName:    ev.UserName,
		WorkspaceID: ev.WorkspaceID,
		CreatedAt:   ev.At,
	}
}
