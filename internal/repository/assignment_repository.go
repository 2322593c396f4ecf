package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-lms-api/internal/models"
)

// AssignmentRepository persists course-to-organization assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentColumns = `id, course_id, college_id, department_id, capacity, created_at, updated_at`

// FindByScope returns the assignment row for an exact scope. A nil
// departmentID matches the college-wide row.
func (r *AssignmentRepository) FindByScope(ctx context.Context, courseID, collegeID string, departmentID *string) (*models.CourseAssignment, error) {
	var assignment models.CourseAssignment
	if departmentID != nil {
		query := fmt.Sprintf(`SELECT %s FROM course_assignments WHERE course_id = $1 AND college_id = $2 AND department_id = $3`, assignmentColumns)
		if err := r.db.GetContext(ctx, &assignment, query, courseID, collegeID, *departmentID); err != nil {
			return nil, err
		}
		return &assignment, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM course_assignments WHERE course_id = $1 AND college_id = $2 AND department_id IS NULL`, assignmentColumns)
	if err := r.db.GetContext(ctx, &assignment, query, courseID, collegeID); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ListByCourse returns every assignment row for a course.
func (r *AssignmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.CourseAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_assignments WHERE course_id = $1 ORDER BY college_id ASC, department_id ASC NULLS FIRST`, assignmentColumns)
	var assignments []models.CourseAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, courseID); err != nil {
		return nil, fmt.Errorf("list course assignments: %w", err)
	}
	return assignments, nil
}

// List returns assignments filtered by course, college or department.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.CourseAssignment, error) {
	var conditions []string
	var args []interface{}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.CollegeID != "" {
		conditions = append(conditions, fmt.Sprintf("college_id = $%d", len(args)+1))
		args = append(args, filter.CollegeID)
	}
	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	query := fmt.Sprintf(`SELECT %s FROM course_assignments%s ORDER BY created_at DESC`, assignmentColumns, clause)
	var assignments []models.CourseAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// Upsert inserts or updates the assignment for its scope.
func (r *AssignmentRepository) Upsert(ctx context.Context, assignment *models.CourseAssignment) error {
	now := time.Now().UTC()
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now
	const query = `INSERT INTO course_assignments (id, course_id, college_id, department_id, capacity, created_at, updated_at)
        VALUES (:id, :course_id, :college_id, :department_id, :capacity, :created_at, :updated_at)
        ON CONFLICT (course_id, college_id, COALESCE(department_id, ''))
        DO UPDATE SET capacity = EXCLUDED.capacity, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("upsert assignment: %w", err)
	}
	return nil
}

// Delete removes an assignment row.
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM course_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
