package models

// Affiliation is a user's resolved organizational context. It is derived per
// request from registration or permissions data and never persisted itself.
type Affiliation struct {
	CollegeID     string   `json:"college_id"`
	DepartmentIDs []string `json:"department_ids,omitempty"`
}

// PrimaryDepartment returns the first department, or nil when the user has no
// department-level affiliation.
func (a *Affiliation) PrimaryDepartment() *string {
	if a == nil || len(a.DepartmentIDs) == 0 {
		return nil
	}
	d := a.DepartmentIDs[0]
	return &d
}

// HasDepartment reports whether the affiliation includes the department.
func (a *Affiliation) HasDepartment(departmentID string) bool {
	if a == nil {
		return false
	}
	for _, d := range a.DepartmentIDs {
		if d == departmentID {
			return true
		}
	}
	return false
}
