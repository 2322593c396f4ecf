package models

import "time"

// Enrollment represents one student's relationship to one course. The pair
// (student_id, course_id) is unique. Status is an open, tenant-configured
// vocabulary value, not a closed enum.
type Enrollment struct {
	ID           string     `db:"id" json:"id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	CourseID     string     `db:"course_id" json:"course_id"`
	Status       string     `db:"status" json:"status"`
	DepartmentID *string    `db:"department_id" json:"department_id,omitempty"`
	CollegeID    *string    `db:"college_id" json:"college_id,omitempty"`
	Progress     int        `db:"progress" json:"progress"`
	StartedAt    *time.Time `db:"started_at" json:"started_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
	CourseTitle  string `db:"course_title" json:"course_title"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID    string
	CourseID     string
	Status       string
	DepartmentID string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// CapacityBucket identifies the organizational scope a seat capacity is
// measured against. DepartmentID nil means the bucket is college-wide.
type CapacityBucket struct {
	CourseID     string  `json:"course_id"`
	CollegeID    string  `json:"college_id"`
	DepartmentID *string `json:"department_id,omitempty"`
	Capacity     *int    `json:"capacity,omitempty"`
}

// Key returns a stable identity string for locking and diagnostics.
func (b CapacityBucket) Key() string {
	dept := "-"
	if b.DepartmentID != nil {
		dept = *b.DepartmentID
	}
	return "enroll:" + b.CourseID + ":" + b.CollegeID + ":" + dept
}

// StatusCount is one entry of a per-status aggregate for a course.
type StatusCount struct {
	Status string `db:"status" json:"status"`
	Count  int    `db:"count" json:"count"`
}
