package models

import "time"

// Course is the minimal course projection the admission engine needs; full
// course content management lives outside this service.
type Course struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// College is a top-level tenant organization.
type College struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Department belongs to a college.
type Department struct {
	ID        string `db:"id" json:"id"`
	CollegeID string `db:"college_id" json:"college_id"`
	Name      string `db:"name" json:"name"`
}
