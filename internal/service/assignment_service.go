package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-lms-api/internal/models"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
)

type assignmentRepository interface {
	FindByScope(ctx context.Context, courseID, collegeID string, departmentID *string) (*models.CourseAssignment, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.CourseAssignment, error)
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.CourseAssignment, error)
	Upsert(ctx context.Context, assignment *models.CourseAssignment) error
	Delete(ctx context.Context, id string) error
}

type assignmentCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// AssignCourseRequest makes a course available to an organizational scope.
type AssignCourseRequest struct {
	CourseID     string  `json:"course_id" validate:"required"`
	CollegeID    string  `json:"college_id" validate:"required"`
	DepartmentID *string `json:"department_id,omitempty"`
	Capacity     *int    `json:"capacity,omitempty" validate:"omitempty,min=0"`
}

// AssignmentService resolves and maintains course-to-organization
// assignments.
type AssignmentService struct {
	repo      assignmentRepository
	courses   assignmentCourseReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(repo assignmentRepository, courses assignmentCourseReader, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// Resolve returns the most specific applicable assignment for the scope: the
// department row when one exists, else the college-wide row, else nil.
func (s *AssignmentService) Resolve(ctx context.Context, courseID, collegeID string, departmentID *string) (*models.CourseAssignment, error) {
	if departmentID != nil && *departmentID != "" {
		assignment, err := s.repo.FindByScope(ctx, courseID, collegeID, departmentID)
		if err == nil {
			return assignment, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve assignment")
		}
	}
	assignment, err := s.repo.FindByScope(ctx, courseID, collegeID, nil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve assignment")
	}
	return assignment, nil
}

// ListByCourse returns every assignment row for a course.
func (s *AssignmentService) ListByCourse(ctx context.Context, courseID string) ([]models.CourseAssignment, error) {
	assignments, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course assignments")
	}
	return assignments, nil
}

// List returns assignments matching the filter.
func (s *AssignmentService) List(ctx context.Context, filter models.AssignmentFilter) ([]models.CourseAssignment, error) {
	assignments, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// Assign creates or updates the assignment for a scope.
func (s *AssignmentService) Assign(ctx context.Context, req AssignCourseRequest) (*models.CourseAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	assignment := &models.CourseAssignment{
		CourseID:     req.CourseID,
		CollegeID:    req.CollegeID,
		DepartmentID: req.DepartmentID,
		Capacity:     req.Capacity,
	}
	if err := s.repo.Upsert(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save assignment")
	}
	return assignment, nil
}

// Unassign removes an assignment row.
func (s *AssignmentService) Unassign(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}
	return nil
}
