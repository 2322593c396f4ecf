package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Audits every capacity-limited course assignment against the live occupancy
// count and reports buckets that exceed their limit. Exits non-zero when an
// overshoot is found so it can run as a scheduled check.

type bucketReport struct {
	CourseID     string  `db:"course_id" json:"course_id"`
	CollegeID    string  `db:"college_id" json:"college_id"`
	DepartmentID *string `db:"department_id" json:"department_id,omitempty"`
	Capacity     int     `db:"capacity" json:"capacity"`
	Occupied     int     `db:"occupied" json:"occupied"`
}

func main() {
	var (
		dsn      string
		statuses string
		timeout  time.Duration
		asJSON   bool
	)

	flag.StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.StringVar(&statuses, "statuses", "APPROVED", "Comma-separated seat-holding statuses")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Query timeout")
	flag.BoolVar(&asJSON, "json", false, "Emit the report as JSON")
	flag.Parse()

	if dsn == "" {
		log.Fatal("no DSN provided; set -dsn or DATABASE_URL")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	reports, err := auditBuckets(ctx, db, splitStatuses(statuses))
	if err != nil {
		log.Fatalf("audit failed: %v", err)
	}

	overshoots := printReport(reports, asJSON)
	if overshoots > 0 {
		os.Exit(1)
	}
}

func splitStatuses(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, strings.ToUpper(trimmed))
		}
	}
	return out
}

func auditBuckets(ctx context.Context, db *sqlx.DB, statuses []string) ([]bucketReport, error) {
	const query = `SELECT a.course_id, a.college_id, a.department_id, a.capacity,
        (SELECT COUNT(*) FROM enrollments e
            WHERE e.course_id = a.course_id
              AND e.status = ANY($1)
              AND ((a.department_id IS NOT NULL AND e.department_id = a.department_id)
                OR (a.department_id IS NULL AND e.college_id = a.college_id))) AS occupied
        FROM course_assignments a
        WHERE a.capacity IS NOT NULL
        ORDER BY a.course_id, a.college_id, a.department_id NULLS FIRST`

	var reports []bucketReport
	if err := db.SelectContext(ctx, &reports, query, pq.Array(statuses)); err != nil {
		return nil, fmt.Errorf("audit capacity buckets: %w", err)
	}
	return reports, nil
}

func printReport(reports []bucketReport, asJSON bool) int {
	overshoots := 0
	for _, r := range reports {
		if r.Occupied > r.Capacity {
			overshoots++
		}
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(reports)
		return overshoots
	}

	fmt.Println("Capacity Audit Report")
	fmt.Println("=====================")
	for _, r := range reports {
		scope := "college " + r.CollegeID
		if r.DepartmentID != nil {
			scope = "department " + *r.DepartmentID
		}
		status := "OK"
		if r.Occupied > r.Capacity {
			status = "OVER"
		}
		fmt.Printf("[%s] course %s @ %s: %d/%d\n", status, r.CourseID, scope, r.Occupied, r.Capacity)
	}
	fmt.Printf("Buckets: %d, Overshoots: %d\n", len(reports), overshoots)
	return overshoots
}
