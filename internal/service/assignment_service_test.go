package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-lms-api/internal/models"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
)

type fakeAssignmentRepo struct {
	rows    []models.CourseAssignment
	deleted []string
}

func (m *fakeAssignmentRepo) FindByScope(ctx context.Context, courseID, collegeID string, departmentID *string) (*models.CourseAssignment, error) {
	for i := range m.rows {
		a := &m.rows[i]
		if a.CourseID != courseID || a.CollegeID != collegeID {
			continue
		}
		if departmentID == nil {
			if a.DepartmentID == nil {
				return a, nil
			}
			continue
		}
		if a.DepartmentID != nil && *a.DepartmentID == *departmentID {
			return a, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *fakeAssignmentRepo) ListByCourse(ctx context.Context, courseID string) ([]models.CourseAssignment, error) {
	var out []models.CourseAssignment
	for _, a := range m.rows {
		if a.CourseID == courseID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *fakeAssignmentRepo) List(ctx context.Context, filter models.AssignmentFilter) ([]models.CourseAssignment, error) {
	return m.rows, nil
}

func (m *fakeAssignmentRepo) Upsert(ctx context.Context, assignment *models.CourseAssignment) error {
	if assignment.ID == "" {
		assignment.ID = "asg-new"
	}
	m.rows = append(m.rows, *assignment)
	return nil
}

func (m *fakeAssignmentRepo) Delete(ctx context.Context, id string) error {
	for i, a := range m.rows {
		if a.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			m.deleted = append(m.deleted, id)
			return nil
		}
	}
	return sql.ErrNoRows
}

func TestAssignmentServiceResolveDepartmentWinsOverCollege(t *testing.T) {
	dept := "dep-1"
	deptCap := 5
	collegeCap := 50
	repo := &fakeAssignmentRepo{rows: []models.CourseAssignment{
		{ID: "asg-college", CourseID: "c1", CollegeID: "col-1", Capacity: &collegeCap},
		{ID: "asg-dept", CourseID: "c1", CollegeID: "col-1", DepartmentID: &dept, Capacity: &deptCap},
	}}
	svc := NewAssignmentService(repo, &fakeCourseReader{}, validator.New(), zap.NewNop())

	resolved, err := svc.Resolve(context.Background(), "c1", "col-1", &dept)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, "asg-dept", resolved.ID)
	require.NotNil(t, resolved.Capacity)
	assert.Equal(t, 5, *resolved.Capacity)
}

func TestAssignmentServiceResolveFallsBackToCollegeWide(t *testing.T) {
	dept := "dep-unmatched"
	repo := &fakeAssignmentRepo{rows: []models.CourseAssignment{
		{ID: "asg-college", CourseID: "c1", CollegeID: "col-1"},
	}}
	svc := NewAssignmentService(repo, &fakeCourseReader{}, validator.New(), zap.NewNop())

	resolved, err := svc.Resolve(context.Background(), "c1", "col-1", &dept)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, "asg-college", resolved.ID)
}

func TestAssignmentServiceResolveNilWhenUnassigned(t *testing.T) {
	svc := NewAssignmentService(&fakeAssignmentRepo{}, &fakeCourseReader{}, validator.New(), zap.NewNop())

	resolved, err := svc.Resolve(context.Background(), "c1", "col-1", nil)
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestAssignmentServiceAssignUnknownCourse(t *testing.T) {
	courses := &fakeCourseReader{missing: map[string]bool{"ghost": true}}
	svc := NewAssignmentService(&fakeAssignmentRepo{}, courses, validator.New(), zap.NewNop())

	_, err := svc.Assign(context.Background(), AssignCourseRequest{CourseID: "ghost", CollegeID: "col-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))
}

func TestAssignmentServiceAssignAndUnassign(t *testing.T) {
	repo := &fakeAssignmentRepo{}
	svc := NewAssignmentService(repo, &fakeCourseReader{}, validator.New(), zap.NewNop())

	capacity := 30
	assignment, err := svc.Assign(context.Background(), AssignCourseRequest{
		CourseID:  "c1",
		CollegeID: "col-1",
		Capacity:  &capacity,
	})
	require.NoError(t, err)
	require.NotNil(t, assignment.Capacity)
	assert.Equal(t, 30, *assignment.Capacity)

	require.NoError(t, svc.Unassign(context.Background(), assignment.ID))
	assert.Contains(t, repo.deleted, assignment.ID)

	err = svc.Unassign(context.Background(), assignment.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))
}
