package models

import "time"

// CourseAssignment makes a course available to an organizational scope.
// DepartmentID nil means the assignment is college-wide; a department row is
// more specific than a college row for the same (course, college) pair.
// Capacity nil means unlimited seats.
type CourseAssignment struct {
	ID           string    `db:"id" json:"id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	CollegeID    string    `db:"college_id" json:"college_id"`
	DepartmentID *string   `db:"department_id" json:"department_id,omitempty"`
	Capacity     *int      `db:"capacity" json:"capacity,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Bucket maps the assignment to the capacity bucket it governs.
func (a *CourseAssignment) Bucket() CapacityBucket {
	return CapacityBucket{
		CourseID:     a.CourseID,
		CollegeID:    a.CollegeID,
		DepartmentID: a.DepartmentID,
		Capacity:     a.Capacity,
	}
}

// AssignmentFilter provides filters for listing course assignments.
type AssignmentFilter struct {
	CourseID     string
	CollegeID    string
	DepartmentID string
}
