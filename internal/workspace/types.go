// Package workspace manages the two top-level workspaces and the
// departments that SOPs are filed under.
package workspace

import "time"

// Workspace is a top-level area of the product, e.g. Underwriting
// Knowledge or Operations Manual.
type Workspace struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Slug        string       `json:"slug"`
	CreatedAt   time.Time    `json:"created_at"`
	Departments []Department `json:"departments"`
}

// Department groups SOPs within a workspace. Names are unique per
// workspace, case-insensitively.
type Department struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}
