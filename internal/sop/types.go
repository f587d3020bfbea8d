// Package sop implements the Operations Manual workspace: SOP storage,
// the draft/pending/approved lifecycle endpoints, AI-assisted drafting,
// and HTML export.
package sop

import (
	"time"

	"github.com/landmarktitle/tessa/internal/policy"
)

// SOP is a Standard Operating Procedure row, including names joined in
// from departments and users for display.
type SOP struct {
	ID               string     `json:"id"`
	WorkspaceID      string     `json:"workspace_id"`
	DepartmentID     string     `json:"department_id,omitempty"`
	Title            string     `json:"title"`
	Purpose          string     `json:"purpose"`
	Scope            string     `json:"scope"`
	ResponsibleParty string     `json:"responsible_party"`
	TriggerEvent     string     `json:"trigger_event"`
	Steps            string     `json:"steps"`
	Exceptions       string     `json:"exceptions"`
	RelatedPolicies  string     `json:"related_policies"`
	EffectiveDate    string     `json:"effective_date,omitempty"`
	ReviewDate       string     `json:"review_date,omitempty"`
	Status           string     `json:"status"`
	OwnerID          string     `json:"owner_id"`
	ApprovedBy       string     `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	DepartmentName string `json:"department_name,omitempty"`
	OwnerName      string `json:"owner_name,omitempty"`
	ApprovedByName string `json:"approved_by_name,omitempty"`
}

// Snapshot extracts the governance view the policy layer decides on.
func (s SOP) Snapshot() policy.SOP {
	return policy.SOP{
		ID:           s.ID,
		WorkspaceID:  s.WorkspaceID,
		DepartmentID: s.DepartmentID,
		Title:        s.Title,
		OwnerID:      s.OwnerID,
		Status:       policy.Status(s.Status),
		ApprovedBy:   s.ApprovedBy,
		ApprovedAt:   s.ApprovedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}
