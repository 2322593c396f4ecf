package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-lms-api/internal/models"
)

type affiliationResolver interface {
	Resolve(ctx context.Context, user *models.User) (*models.Affiliation, error)
}

type courseAssignmentLister interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.CourseAssignment, error)
}

// EligibilityService decides which caller may moderate which course's
// enrollments. Admin tiers always pass; instructors pass when their
// affiliation intersects the course's assigned departments, or matches the
// college on a college-wide assignment. Every other role is denied.
type EligibilityService struct {
	affiliations affiliationResolver
	assignments  courseAssignmentLister
	logger       *zap.Logger
}

// NewEligibilityService constructs EligibilityService.
func NewEligibilityService(affiliations affiliationResolver, assignments courseAssignmentLister, logger *zap.Logger) *EligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityService{affiliations: affiliations, assignments: assignments, logger: logger}
}

// CanModerate reports whether the caller may view or transition enrollments
// belonging to the course.
func (s *EligibilityService) CanModerate(ctx context.Context, caller *models.User, courseID string) (bool, error) {
	if caller == nil {
		return false, nil
	}
	if caller.Role.IsAdmin() {
		return true, nil
	}
	if caller.Role != models.RoleInstructor {
		return false, nil
	}

	aff, err := s.affiliations.Resolve(ctx, caller)
	if err != nil {
		return false, err
	}
	if aff == nil {
		return false, nil
	}

	assignments, err := s.assignments.ListByCourse(ctx, courseID)
	if err != nil {
		return false, err
	}
	for i := range assignments {
		a := &assignments[i]
		if a.DepartmentID != nil {
			if aff.HasDepartment(*a.DepartmentID) {
				return true, nil
			}
			continue
		}
		if a.CollegeID == aff.CollegeID {
			return true, nil
		}
	}
	return false, nil
}
