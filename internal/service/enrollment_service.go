package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-lms-api/internal/models"
	"github.com/noah-isme/campus-lms-api/internal/repository"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	CreateWithGuard(ctx context.Context, enrollment *models.Enrollment, bucket models.CapacityBucket, occupyingStatuses []string) (*repository.CapacityCheck, error)
	TransitionWithGuard(ctx context.Context, p repository.TransitionParams) (*models.Enrollment, *repository.CapacityCheck, error)
	BulkTransitionWithGuard(ctx context.Context, p repository.BulkTransitionParams) (int, *repository.CapacityCheck, error)
	Delete(ctx context.Context, id string) error
	CountByStatusForCourse(ctx context.Context, courseID string) ([]models.StatusCount, error)
}

type enrollmentUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type enrollmentCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type scopeAssignmentResolver interface {
	Resolve(ctx context.Context, courseID, collegeID string, departmentID *string) (*models.CourseAssignment, error)
}

type statusConfigLoader interface {
	Load(ctx context.Context) (*models.StatusConfig, error)
}

type moderationGate interface {
	CanModerate(ctx context.Context, caller *models.User, courseID string) (bool, error)
}

// SelfEnrollRequest is a student's own enrollment request.
type SelfEnrollRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

// AdminEnrollRequest grants a student a seat directly.
type AdminEnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	CourseID  string `json:"course_id" validate:"required"`
}

// TransitionRequest moves one enrollment to a target status.
type TransitionRequest struct {
	Status string `json:"status" validate:"required"`
}

// BulkTransitionRequest moves a batch of enrollments to one target status.
type BulkTransitionRequest struct {
	EnrollmentIDs []string `json:"enrollment_ids" validate:"required,min=1,dive,required"`
	Status        string   `json:"status" validate:"required"`
}

// BulkTransitionResult reports how many rows a committed batch updated.
type BulkTransitionResult struct {
	UpdatedCount int `json:"updated_count"`
}

// CourseStatusSummary is the aggregate view for instructors and admins.
type CourseStatusSummary struct {
	CourseID string               `json:"course_id"`
	Counts   []models.StatusCount `json:"counts"`
	Total    int                  `json:"total"`
}

// StudentStatusView is the single-student view.
type StudentStatusView struct {
	Enrollment *models.Enrollment `json:"enrollment"`
	Status     string             `json:"status"`
}

// EnrollmentService is the admission state machine. Statuses form an open,
// tenant-configured vocabulary; the discipline lives in the eligibility and
// capacity guards wrapping each transition, not in a transition table.
type EnrollmentService struct {
	repo         enrollmentRepository
	users        enrollmentUserReader
	courses      enrollmentCourseReader
	affiliations affiliationResolver
	assignments  scopeAssignmentResolver
	statuses     statusConfigLoader
	gate         moderationGate
	maxBulkSize  int
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(
	repo enrollmentRepository,
	users enrollmentUserReader,
	courses enrollmentCourseReader,
	affiliations affiliationResolver,
	assignments scopeAssignmentResolver,
	statuses statusConfigLoader,
	gate moderationGate,
	maxBulkSize int,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBulkSize <= 0 {
		maxBulkSize = 200
	}
	return &EnrollmentService{
		repo:         repo,
		users:        users,
		courses:      courses,
		affiliations: affiliations,
		assignments:  assignments,
		statuses:     statuses,
		gate:         gate,
		maxBulkSize:  maxBulkSize,
		validator:    validate,
		logger:       logger,
	}
}

// List returns enrollments with pagination metadata. Students only ever see
// their own rows.
func (s *EnrollmentService) List(ctx context.Context, caller *models.User, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if caller != nil && caller.Role == models.RoleStudent {
		filter.StudentID = caller.ID
	}
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// SelfRequest creates a pending enrollment for the calling student. A repeat
// request for the same course returns the existing row unchanged; this path
// is deliberately idempotent, not a conflict.
func (s *EnrollmentService) SelfRequest(ctx context.Context, caller *models.User, req SelfEnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if caller == nil || caller.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may request enrollment")
	}

	aff, err := s.affiliations.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	if aff == nil {
		return nil, appErrors.Clone(appErrors.ErrNotEligible, "student has no resolved college")
	}

	assignment, err := s.assignments.Resolve(ctx, req.CourseID, aff.CollegeID, aff.PrimaryDepartment())
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, appErrors.Clone(appErrors.ErrCourseNotAssigned, "course is not available to your organization")
	}

	existing, err := s.repo.FindByStudentAndCourse(ctx, caller.ID, req.CourseID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if existing != nil {
		return existing, nil
	}

	cfg, err := s.statuses.Load(ctx)
	if err != nil {
		return nil, err
	}
	initial := cfg.PendingStatus()
	if initial == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidStatus, "no non-occupying status configured for requests")
	}

	college := aff.CollegeID
	enrollment := &models.Enrollment{
		StudentID:    caller.ID,
		CourseID:     req.CourseID,
		Status:       initial,
		DepartmentID: aff.PrimaryDepartment(),
		CollegeID:    &college,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	s.logger.Info("enrollment requested",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", caller.ID),
		zap.String("course_id", req.CourseID),
	)
	return enrollment, nil
}

// AdminEnroll grants a student a seat directly in the first approved-like
// status, subject to the same capacity guard as a transition. Unlike the
// self-service path, a duplicate grant is a conflict.
func (s *EnrollmentService) AdminEnroll(ctx context.Context, req AdminEnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	aff, err := s.affiliations.Resolve(ctx, student)
	if err != nil {
		return nil, err
	}
	if aff == nil {
		return nil, appErrors.Clone(appErrors.ErrNotEligible, "student has no resolved college")
	}

	assignment, err := s.assignments.Resolve(ctx, req.CourseID, aff.CollegeID, aff.PrimaryDepartment())
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, appErrors.Clone(appErrors.ErrCourseNotAssigned, "course is not available to the student's organization")
	}

	existing, err := s.repo.FindByStudentAndCourse(ctx, req.StudentID, req.CourseID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in course")
	}

	cfg, err := s.statuses.Load(ctx)
	if err != nil {
		return nil, err
	}
	target := cfg.FirstApproved()
	if target == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidStatus, "no approved-like status configured for direct grants")
	}

	college := aff.CollegeID
	enrollment := &models.Enrollment{
		StudentID:    req.StudentID,
		CourseID:     req.CourseID,
		Status:       target,
		DepartmentID: aff.PrimaryDepartment(),
		CollegeID:    &college,
	}
	check, err := s.repo.CreateWithGuard(ctx, enrollment, assignment.Bucket(), cfg.Approved)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	if !check.Admitted {
		return nil, capacityFullError(check)
	}
	s.logger.Info("enrollment granted",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", req.StudentID),
		zap.String("course_id", req.CourseID),
	)
	return enrollment, nil
}

// Transition moves one enrollment to the target status. The caller must pass
// the eligibility gate for the enrollment's course; occupying targets are
// admitted under the capacity guard. startedAt is stamped on the first
// occupying admission only.
func (s *EnrollmentService) Transition(ctx context.Context, caller *models.User, enrollmentID string, req TransitionRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}

	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	allowed, err := s.gate.CanModerate(ctx, caller, enrollment.CourseID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "caller may not moderate this enrollment")
	}

	cfg, err := s.statuses.Load(ctx)
	if err != nil {
		return nil, err
	}
	target := models.NormalizeStatus(req.Status)
	if !cfg.IsAllowed(target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidStatus, fmt.Sprintf("status %q is not in the configured vocabulary", target))
	}

	params := repository.TransitionParams{
		EnrollmentID:      enrollmentID,
		Status:            target,
		Occupying:         cfg.IsOccupying(target),
		OccupyingStatuses: cfg.Approved,
	}

	if params.Occupying {
		scope, err := s.resolveScope(ctx, enrollment)
		if err != nil {
			return nil, err
		}
		assignment, err := s.assignments.Resolve(ctx, enrollment.CourseID, scope.collegeID, scope.departmentID)
		if err != nil {
			return nil, err
		}
		if assignment == nil {
			return nil, appErrors.Clone(appErrors.ErrCourseNotAssigned, "course is not available to the student's organization")
		}
		bucket := assignment.Bucket()
		params.Bucket = &bucket
		params.DepartmentID = scope.departmentID
		college := scope.collegeID
		params.CollegeID = &college
	}

	updated, check, err := s.repo.TransitionWithGuard(ctx, params)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transition enrollment")
	}
	if check != nil && !check.Admitted {
		return nil, capacityFullError(check)
	}
	s.logger.Info("enrollment transitioned",
		zap.String("enrollment_id", enrollmentID),
		zap.String("status", target),
	)
	return updated, nil
}

// BulkTransition applies one target status to a batch, all-or-nothing. Every
// enrollment's course is gated independently before any write; occupying
// targets are grouped per capacity bucket and each bucket's projected total
// is verified before the batch commits.
func (s *EnrollmentService) BulkTransition(ctx context.Context, caller *models.User, req BulkTransitionRequest) (*BulkTransitionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk transition payload")
	}
	if caller == nil || caller.Role != models.RoleInstructor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "bulk transitions are restricted to instructors")
	}
	if len(req.EnrollmentIDs) > s.maxBulkSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("bulk size exceeds limit of %d", s.maxBulkSize))
	}

	ids := dedupe(req.EnrollmentIDs)
	enrollments, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	if len(enrollments) != len(ids) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "one or more enrollments do not exist")
	}

	// The gate runs per enrollment: moderating one course never implies
	// moderating another in the same batch.
	gateByCourse := make(map[string]bool)
	for i := range enrollments {
		courseID := enrollments[i].CourseID
		allowed, ok := gateByCourse[courseID]
		if !ok {
			allowed, err = s.gate.CanModerate(ctx, caller, courseID)
			if err != nil {
				return nil, err
			}
			gateByCourse[courseID] = allowed
		}
		if !allowed {
			return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("caller may not moderate enrollments of course %s", courseID))
		}
	}

	cfg, err := s.statuses.Load(ctx)
	if err != nil {
		return nil, err
	}
	target := models.NormalizeStatus(req.Status)
	if !cfg.IsAllowed(target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidStatus, fmt.Sprintf("status %q is not in the configured vocabulary", target))
	}

	params := repository.BulkTransitionParams{
		Status:            target,
		Occupying:         cfg.IsOccupying(target),
		OccupyingStatuses: cfg.Approved,
	}

	if params.Occupying {
		batches := make(map[string]*repository.BucketBatch)
		for i := range enrollments {
			e := &enrollments[i]
			scope, err := s.resolveScope(ctx, e)
			if err != nil {
				return nil, err
			}
			assignment, err := s.assignments.Resolve(ctx, e.CourseID, scope.collegeID, scope.departmentID)
			if err != nil {
				return nil, err
			}
			if assignment == nil {
				return nil, appErrors.Clone(appErrors.ErrCourseNotAssigned, fmt.Sprintf("course %s is not available to the student's organization", e.CourseID))
			}
			bucket := assignment.Bucket()
			key := bucket.Key()
			batch, ok := batches[key]
			if !ok {
				batch = &repository.BucketBatch{Bucket: bucket}
				batches[key] = batch
			}
			batch.EnrollmentIDs = append(batch.EnrollmentIDs, e.ID)
		}
		for _, batch := range batches {
			params.Batches = append(params.Batches, *batch)
		}
	} else {
		params.Batches = []repository.BucketBatch{{EnrollmentIDs: ids}}
	}

	updated, failed, err := s.repo.BulkTransitionWithGuard(ctx, params)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bulk transition enrollments")
	}
	if failed != nil {
		return nil, capacityFullError(failed)
	}
	s.logger.Info("bulk transition committed",
		zap.Int("updated", updated),
		zap.String("status", target),
	)
	return &BulkTransitionResult{UpdatedCount: updated}, nil
}

// Delete removes an enrollment unconditionally; removal only frees capacity
// so no guard is required.
func (s *EnrollmentService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	return nil
}

// StudentStatus returns a single student's enrollment status for a course.
func (s *EnrollmentService) StudentStatus(ctx context.Context, studentID, courseID string) (*StudentStatusView, error) {
	enrollment, err := s.repo.FindByStudentAndCourse(ctx, studentID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return &StudentStatusView{Enrollment: enrollment, Status: enrollment.Status}, nil
}

// ModeratedStudentStatus returns one student's status for a course after the
// caller passes the eligibility gate.
func (s *EnrollmentService) ModeratedStudentStatus(ctx context.Context, caller *models.User, studentID, courseID string) (*StudentStatusView, error) {
	allowed, err := s.gate.CanModerate(ctx, caller, courseID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "caller may not view this course's enrollments")
	}
	return s.StudentStatus(ctx, studentID, courseID)
}

// CourseStatusSummary aggregates a course's enrollments per status for
// moderators.
func (s *EnrollmentService) CourseStatusSummary(ctx context.Context, caller *models.User, courseID string) (*CourseStatusSummary, error) {
	allowed, err := s.gate.CanModerate(ctx, caller, courseID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "caller may not view this course's enrollments")
	}
	counts, err := s.repo.CountByStatusForCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate enrollments")
	}
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	return &CourseStatusSummary{CourseID: courseID, Counts: counts, Total: total}, nil
}

type resolvedScope struct {
	collegeID    string
	departmentID *string
}

// resolveScope determines the organizational scope for a transition: the
// enrollment's own snapshot wins, otherwise the student's current affiliation
// is consulted.
func (s *EnrollmentService) resolveScope(ctx context.Context, enrollment *models.Enrollment) (*resolvedScope, error) {
	scope := &resolvedScope{departmentID: enrollment.DepartmentID}
	if enrollment.CollegeID != nil && *enrollment.CollegeID != "" {
		scope.collegeID = *enrollment.CollegeID
	}
	if scope.collegeID != "" && scope.departmentID != nil {
		return scope, nil
	}

	student, err := s.users.FindByID(ctx, enrollment.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	aff, err := s.affiliations.Resolve(ctx, student)
	if err != nil {
		return nil, err
	}
	if scope.collegeID == "" {
		if aff == nil {
			return nil, appErrors.Clone(appErrors.ErrNotEligible, "student has no resolved college")
		}
		scope.collegeID = aff.CollegeID
	}
	if scope.departmentID == nil && aff != nil {
		scope.departmentID = aff.PrimaryDepartment()
	}
	return scope, nil
}

func capacityFullError(check *repository.CapacityCheck) error {
	capacity := 0
	if check.Bucket.Capacity != nil {
		capacity = *check.Bucket.Capacity
	}
	details := map[string]interface{}{
		"bucket":   check.Bucket.Key(),
		"current":  check.Current,
		"capacity": capacity,
	}
	msg := fmt.Sprintf("capacity reached for %s (%d/%d)", check.Bucket.Key(), check.Current, capacity)
	return appErrors.WithDetails(appErrors.ErrCapacityFull, msg, details)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
