// Package policy holds the content lifecycle and authorization rules for
// governed resources: who may act, which status transitions are legal, and
// which deletions are blocked by existing references. It is pure decision
// logic; persistence and HTTP concerns live in the feature packages.
package policy

// Role is a user's role within a workspace.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleDepartmentHead Role = "department_head"
	RoleViewer         Role = "viewer"
)

// ValidRoles lists every recognized role value.
var ValidRoles = []Role{RoleAdmin, RoleDepartmentHead, RoleViewer}

// Capability is a named permission granted to one or more roles.
type Capability string

const (
	// CapRead allows reading any resource.
	CapRead Capability = "read"
	// CapCreate allows creating SOPs and knowledge entries.
	CapCreate Capability = "create"
	// CapEditOwn allows editing one's own draft or pending SOPs.
	CapEditOwn Capability = "edit_own"
	// CapEditAny allows editing any SOP regardless of status or owner.
	CapEditAny Capability = "edit_any"
	// CapSubmit allows submitting one's own draft SOP for approval.
	CapSubmit Capability = "submit"
	// CapApprove allows approving a pending SOP.
	CapApprove Capability = "approve"
	// CapDeleteDraft allows deleting one's own draft SOP.
	CapDeleteDraft Capability = "delete_draft"
	// CapManageOrg allows managing users and departments.
	CapManageOrg Capability = "manage_org"
)

// roleCapabilities is the single authoritative capability table. Route
// handlers must never compare role strings directly.
var roleCapabilities = map[Role]map[Capability]bool{
	RoleAdmin: {
		CapRead:        true,
		CapCreate:      true,
		CapEditOwn:     true,
		CapEditAny:     true,
		CapSubmit:      true,
		CapApprove:     true,
		CapDeleteDraft: true,
		CapManageOrg:   true,
	},
	RoleDepartmentHead: {
		CapRead:        true,
		CapCreate:      true,
		CapEditOwn:     true,
		CapSubmit:      true,
		CapDeleteDraft: true,
	},
	RoleViewer: {
		CapRead: true,
	},
}

// CapabilitiesOf returns the capability set for the given role.
func CapabilitiesOf(role Role) (map[Capability]bool, error) {
	caps, ok := roleCapabilities[role]
	if !ok {
		return nil, ErrUnknownRole
	}
	return caps, nil
}

// Can reports whether the role grants the capability. An unrecognized role
// grants nothing.
func Can(role Role, cap Capability) bool {
	return roleCapabilities[role][cap]
}

// Actor is the authenticated user performing an action, immutable for the
// duration of one request.
type Actor struct {
	ID         string
	Name       string
	Role       Role
	Department string
}
