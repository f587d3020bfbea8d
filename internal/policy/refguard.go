package policy

// Counters carries pre-computed reference counts supplied by the storage
// layer. The guard itself performs no queries.
type Counters struct {
	SOPCount int
}

// CanDeleteDepartment denies deletion while any SOP still references the
// department.
func CanDeleteDepartment(c Counters) error {
	if c.SOPCount > 0 {
		return &ReferencedByError{Resource: "department", Count: c.SOPCount}
	}
	return nil
}

// CanDeleteUser denies deletion of a user who still owns SOPs, and always
// denies self-deletion regardless of reference count.
func CanDeleteUser(actingUserID, targetUserID string, c Counters) error {
	if targetUserID == actingUserID {
		return ErrSelfReference
	}
	if c.SOPCount > 0 {
		return &ReferencedByError{Resource: "user", Count: c.SOPCount}
	}
	return nil
}
