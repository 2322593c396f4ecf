package models

import "time"

// Registration is an onboarding record tying an email address to an
// organization. The most recently updated record for an email wins when
// resolving affiliation.
type Registration struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	CollegeID    string    `db:"college_id" json:"college_id"`
	DepartmentID *string   `db:"department_id" json:"department_id,omitempty"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
