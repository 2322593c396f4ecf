package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-lms-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments, including the
// capacity-guarded admission transactions.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, course_id, status, department_id, college_id, progress, started_at, created_at, updated_at`

// CapacityCheck reports the outcome of an occupancy check performed inside a
// guarded transaction.
type CapacityCheck struct {
	Bucket   models.CapacityBucket
	Current  int
	Admitted bool
}

// TransitionParams describes a single guarded status transition.
type TransitionParams struct {
	EnrollmentID string
	Status       string
	Occupying    bool
	// OccupyingStatuses is the approved-like subset used as the counting set.
	OccupyingStatuses []string
	// Bucket is the capacity scope resolved for the enrollment; nil or a nil
	// capacity skips the occupancy check.
	Bucket *models.CapacityBucket
	// DepartmentID/CollegeID snapshot the resolved scope onto the row when the
	// row does not carry one yet.
	DepartmentID *string
	CollegeID    *string
}

// BucketBatch groups bulk-transition targets sharing one capacity bucket.
type BucketBatch struct {
	Bucket        models.CapacityBucket
	EnrollmentIDs []string
}

// BulkTransitionParams describes an all-or-nothing bulk transition.
type BulkTransitionParams struct {
	Status            string
	Occupying         bool
	OccupyingStatuses []string
	Batches           []BucketBatch
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN users u ON u.id = e.student_id
LEFT JOIN courses c ON c.id = e.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, models.NormalizeStatus(filter.Status))
	}
	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "e.created_at",
		"status":       "e.status",
		"student_name": "u.full_name",
		"course_title": "c.title",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.course_id, e.status, e.department_id, e.college_id, e.progress, e.started_at, e.created_at, e.updated_at,
        u.full_name AS student_name, u.email AS student_email, c.title AS course_title
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByStudentAndCourse returns the unique enrollment for the pair, if any.
func (r *EnrollmentRepository) FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE student_id = $1 AND course_id = $2`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByIDs returns the enrollments matching the provided IDs.
func (r *EnrollmentRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Enrollment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = ANY($1)`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list enrollments by ids: %w", err)
	}
	return enrollments, nil
}

// Create persists a new enrollment record without a capacity guard. Callers
// use this for non-occupying initial statuses only.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	prepareEnrollment(enrollment)
	const query = `INSERT INTO enrollments (id, student_id, course_id, status, department_id, college_id, progress, started_at, created_at, updated_at)
        VALUES (:id, :student_id, :course_id, :status, :department_id, :college_id, :progress, :started_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// CreateWithGuard inserts an enrollment directly into an occupying status,
// holding the bucket lock across the occupancy check and the insert.
func (r *EnrollmentRepository) CreateWithGuard(ctx context.Context, enrollment *models.Enrollment, bucket models.CapacityBucket, occupyingStatuses []string) (*CapacityCheck, error) {
	prepareEnrollment(enrollment)
	now := time.Now().UTC()
	enrollment.StartedAt = &now

	check := &CapacityCheck{Bucket: bucket, Admitted: true}
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		if bucket.Capacity != nil {
			count, err := r.guardBucket(ctx, tx, bucket, occupyingStatuses)
			if err != nil {
				return err
			}
			check.Current = count
			if count >= *bucket.Capacity {
				check.Admitted = false
				return nil
			}
		}
		const query = `INSERT INTO enrollments (id, student_id, course_id, status, department_id, college_id, progress, started_at, created_at, updated_at)
            VALUES (:id, :student_id, :course_id, :status, :department_id, :college_id, :progress, :started_at, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, enrollment); err != nil {
			return fmt.Errorf("create enrollment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return check, nil
}

// TransitionWithGuard updates an enrollment's status. When the target status
// occupies a seat and the bucket carries a capacity, the occupancy count and
// the write happen under the bucket's advisory lock so concurrent approvals
// cannot overshoot the limit.
func (r *EnrollmentRepository) TransitionWithGuard(ctx context.Context, p TransitionParams) (*models.Enrollment, *CapacityCheck, error) {
	var updated models.Enrollment
	check := &CapacityCheck{Admitted: true}
	if p.Bucket != nil {
		check.Bucket = *p.Bucket
	}

	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		if p.Occupying && p.Bucket != nil && p.Bucket.Capacity != nil {
			count, err := r.guardBucket(ctx, tx, *p.Bucket, p.OccupyingStatuses)
			if err != nil {
				return err
			}
			check.Current = count
			if count >= *p.Bucket.Capacity {
				check.Admitted = false
				return nil
			}
		}
		now := time.Now().UTC()
		var startedAt *time.Time
		if p.Occupying {
			startedAt = &now
		}
		query := fmt.Sprintf(`UPDATE enrollments
            SET status = $2,
                department_id = COALESCE($3, department_id),
                college_id = COALESCE($4, college_id),
                started_at = COALESCE(started_at, $5),
                updated_at = $6
            WHERE id = $1
            RETURNING %s`, enrollmentColumns)
		if err := tx.GetContext(ctx, &updated, query, p.EnrollmentID, p.Status, p.DepartmentID, p.CollegeID, startedAt, now); err != nil {
			if err == sql.ErrNoRows {
				return err
			}
			return fmt.Errorf("transition enrollment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if !check.Admitted {
		return nil, check, nil
	}
	return &updated, check, nil
}

// BulkTransitionWithGuard applies one status to every referenced enrollment as
// a single transaction. Buckets are locked in sorted key order; if any bucket
// would exceed its capacity the whole batch rolls back and the offending
// bucket is reported.
func (r *EnrollmentRepository) BulkTransitionWithGuard(ctx context.Context, p BulkTransitionParams) (int, *CapacityCheck, error) {
	batches := make([]BucketBatch, len(p.Batches))
	copy(batches, p.Batches)
	sort.Slice(batches, func(i, j int) bool { return batches[i].Bucket.Key() < batches[j].Bucket.Key() })

	updatedCount := 0
	var failed *CapacityCheck

	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		if p.Occupying {
			for _, batch := range batches {
				if batch.Bucket.Capacity == nil {
					continue
				}
				count, err := r.guardBucket(ctx, tx, batch.Bucket, p.OccupyingStatuses)
				if err != nil {
					return err
				}
				if count+len(batch.EnrollmentIDs) > *batch.Bucket.Capacity {
					failed = &CapacityCheck{Bucket: batch.Bucket, Current: count, Admitted: false}
					return nil
				}
			}
		}
		now := time.Now().UTC()
		var startedAt *time.Time
		if p.Occupying {
			startedAt = &now
		}
		for _, batch := range batches {
			departmentID := batch.Bucket.DepartmentID
			var collegeID *string
			if batch.Bucket.CollegeID != "" {
				college := batch.Bucket.CollegeID
				collegeID = &college
			}
			const query = `UPDATE enrollments
                SET status = $2,
                    department_id = COALESCE($3, department_id),
                    college_id = COALESCE($4, college_id),
                    started_at = COALESCE(started_at, $5),
                    updated_at = $6
                WHERE id = ANY($1)`
			res, err := tx.ExecContext(ctx, query, pq.Array(batch.EnrollmentIDs), p.Status, departmentID, collegeID, startedAt, now)
			if err != nil {
				return fmt.Errorf("bulk transition enrollments: %w", err)
			}
			if affected, err := res.RowsAffected(); err == nil {
				updatedCount += int(affected)
			}
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	if failed != nil {
		return 0, failed, nil
	}
	return updatedCount, nil, nil
}

// Delete removes an enrollment unconditionally.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountOccupyingAtDepartment counts seat-holding enrollments for a course
// scoped to one department.
func (r *EnrollmentRepository) CountOccupyingAtDepartment(ctx context.Context, courseID, departmentID string, occupyingStatuses []string) (int, error) {
	return countOccupyingAtDepartment(ctx, r.db, courseID, departmentID, occupyingStatuses)
}

// CountOccupyingAtCollege counts seat-holding enrollments for a course whose
// students resolve to the target college. Rows snapshot their college at
// admission; older rows fall back to the department's college, then the
// latest registration for the student's email, then the permissions blob.
func (r *EnrollmentRepository) CountOccupyingAtCollege(ctx context.Context, courseID, collegeID string, occupyingStatuses []string) (int, error) {
	return countOccupyingAtCollege(ctx, r.db, courseID, collegeID, occupyingStatuses)
}

// CountByStatusForCourse aggregates enrollment counts per status for a course.
func (r *EnrollmentRepository) CountByStatusForCourse(ctx context.Context, courseID string) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM enrollments WHERE course_id = $1 GROUP BY status ORDER BY status ASC`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query, courseID); err != nil {
		return nil, fmt.Errorf("count enrollments by status: %w", err)
	}
	return counts, nil
}

func (r *EnrollmentRepository) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment tx: %w", err)
	}
	return nil
}

// guardBucket serializes writers for one capacity bucket and returns the
// current occupancy at the bucket's scope.
func (r *EnrollmentRepository) guardBucket(ctx context.Context, tx *sqlx.Tx, bucket models.CapacityBucket, occupyingStatuses []string) (int, error) {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, bucket.Key()); err != nil {
		return 0, fmt.Errorf("lock capacity bucket %s: %w", bucket.Key(), err)
	}
	if bucket.DepartmentID != nil {
		return countOccupyingAtDepartment(ctx, tx, bucket.CourseID, *bucket.DepartmentID, occupyingStatuses)
	}
	return countOccupyingAtCollege(ctx, tx, bucket.CourseID, bucket.CollegeID, occupyingStatuses)
}

func countOccupyingAtDepartment(ctx context.Context, q sqlx.QueryerContext, courseID, departmentID string, occupyingStatuses []string) (int, error) {
	if len(occupyingStatuses) == 0 {
		return 0, nil
	}
	const query = `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND department_id = $2 AND status = ANY($3)`
	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, courseID, departmentID, pq.Array(occupyingStatuses)); err != nil {
		return 0, fmt.Errorf("count department occupancy: %w", err)
	}
	return count, nil
}

func countOccupyingAtCollege(ctx context.Context, q sqlx.QueryerContext, courseID, collegeID string, occupyingStatuses []string) (int, error) {
	if len(occupyingStatuses) == 0 {
		return 0, nil
	}
	const query = `SELECT COUNT(*) FROM enrollments e
        JOIN users u ON u.id = e.student_id
        LEFT JOIN departments d ON d.id = e.department_id
        LEFT JOIN LATERAL (
            SELECT r.college_id FROM registrations r WHERE r.email = u.email ORDER BY r.updated_at DESC LIMIT 1
        ) reg ON TRUE
        WHERE e.course_id = $1
          AND e.status = ANY($2)
          AND COALESCE(e.college_id, d.college_id, reg.college_id, u.permissions->>'college_id') = $3`
	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, courseID, pq.Array(occupyingStatuses), collegeID); err != nil {
		return 0, fmt.Errorf("count college occupancy: %w", err)
	}
	return count, nil
}

func prepareEnrollment(enrollment *models.Enrollment) {
	now := time.Now().UTC()
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	if enrollment.UpdatedAt.IsZero() {
		enrollment.UpdatedAt = now
	}
}
