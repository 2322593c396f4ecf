package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-lms-api/internal/models"
	"github.com/noah-isme/campus-lms-api/internal/repository"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
)

type fakeEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	nextID      int
}

func newFakeEnrollmentRepo() *fakeEnrollmentRepo {
	return &fakeEnrollmentRepo{enrollments: make(map[string]models.Enrollment)}
}

func (m *fakeEnrollmentRepo) occupancy(bucket models.CapacityBucket, occupying []string) int {
	set := make(map[string]struct{}, len(occupying))
	for _, s := range occupying {
		set[s] = struct{}{}
	}
	count := 0
	for _, e := range m.enrollments {
		if e.CourseID != bucket.CourseID {
			continue
		}
		if _, ok := set[e.Status]; !ok {
			continue
		}
		if bucket.DepartmentID != nil {
			if e.DepartmentID == nil || *e.DepartmentID != *bucket.DepartmentID {
				continue
			}
		} else if e.CollegeID == nil || *e.CollegeID != bucket.CollegeID {
			continue
		}
		count++
	}
	return count
}

func (m *fakeEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if filter.StudentID != "" && e.StudentID != filter.StudentID {
			continue
		}
		out = append(out, models.EnrollmentDetail{Enrollment: e})
	}
	return out, len(out), nil
}

func (m *fakeEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *fakeEnrollmentRepo) FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			return &e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *fakeEnrollmentRepo) ListByIDs(ctx context.Context, ids []string) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, id := range ids {
		if e, ok := m.enrollments[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *fakeEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		m.nextID++
		enrollment.ID = fmt.Sprintf("enr-%d", m.nextID)
	}
	enrollment.CreatedAt = time.Now().UTC()
	enrollment.UpdatedAt = enrollment.CreatedAt
	m.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (m *fakeEnrollmentRepo) CreateWithGuard(ctx context.Context, enrollment *models.Enrollment, bucket models.CapacityBucket, occupyingStatuses []string) (*repository.CapacityCheck, error) {
	check := &repository.CapacityCheck{Bucket: bucket, Admitted: true}
	if bucket.Capacity != nil {
		count := m.occupancy(bucket, occupyingStatuses)
		check.Current = count
		if count >= *bucket.Capacity {
			check.Admitted = false
			return check, nil
		}
	}
	now := time.Now().UTC()
	enrollment.StartedAt = &now
	if err := m.Create(ctx, enrollment); err != nil {
		return nil, err
	}
	return check, nil
}

func (m *fakeEnrollmentRepo) TransitionWithGuard(ctx context.Context, p repository.TransitionParams) (*models.Enrollment, *repository.CapacityCheck, error) {
	check := &repository.CapacityCheck{Admitted: true}
	if p.Bucket != nil {
		check.Bucket = *p.Bucket
	}
	e, ok := m.enrollments[p.EnrollmentID]
	if !ok {
		return nil, nil, sql.ErrNoRows
	}
	if p.Occupying && p.Bucket != nil && p.Bucket.Capacity != nil {
		count := m.occupancy(*p.Bucket, p.OccupyingStatuses)
		check.Current = count
		if count >= *p.Bucket.Capacity {
			check.Admitted = false
			return nil, check, nil
		}
	}
	now := time.Now().UTC()
	e.Status = p.Status
	if e.DepartmentID == nil {
		e.DepartmentID = p.DepartmentID
	}
	if e.CollegeID == nil {
		e.CollegeID = p.CollegeID
	}
	if p.Occupying && e.StartedAt == nil {
		e.StartedAt = &now
	}
	e.UpdatedAt = now
	m.enrollments[p.EnrollmentID] = e
	return &e, check, nil
}

func (m *fakeEnrollmentRepo) BulkTransitionWithGuard(ctx context.Context, p repository.BulkTransitionParams) (int, *repository.CapacityCheck, error) {
	if p.Occupying {
		for _, batch := range p.Batches {
			if batch.Bucket.Capacity == nil {
				continue
			}
			count := m.occupancy(batch.Bucket, p.OccupyingStatuses)
			if count+len(batch.EnrollmentIDs) > *batch.Bucket.Capacity {
				return 0, &repository.CapacityCheck{Bucket: batch.Bucket, Current: count}, nil
			}
		}
	}
	now := time.Now().UTC()
	updated := 0
	for _, batch := range p.Batches {
		for _, id := range batch.EnrollmentIDs {
			e, ok := m.enrollments[id]
			if !ok {
				continue
			}
			e.Status = p.Status
			if p.Occupying && e.StartedAt == nil {
				e.StartedAt = &now
			}
			e.UpdatedAt = now
			m.enrollments[id] = e
			updated++
		}
	}
	return updated, nil, nil
}

func (m *fakeEnrollmentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.enrollments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.enrollments, id)
	return nil
}

func (m *fakeEnrollmentRepo) CountByStatusForCourse(ctx context.Context, courseID string) ([]models.StatusCount, error) {
	byStatus := make(map[string]int)
	for _, e := range m.enrollments {
		if e.CourseID == courseID {
			byStatus[e.Status]++
		}
	}
	var counts []models.StatusCount
	for status, count := range byStatus {
		counts = append(counts, models.StatusCount{Status: status, Count: count})
	}
	return counts, nil
}

type fakeUserReader struct {
	users map[string]*models.User
}

func (m *fakeUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type fakeCourseReader struct {
	missing map[string]bool
}

func (m *fakeCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if m.missing[id] {
		return nil, sql.ErrNoRows
	}
	return &models.Course{ID: id, Active: true}, nil
}

type fakeAffiliations struct {
	byUser map[string]*models.Affiliation
}

func (m *fakeAffiliations) Resolve(ctx context.Context, user *models.User) (*models.Affiliation, error) {
	if user == nil {
		return nil, nil
	}
	return m.byUser[user.ID], nil
}

type fakeScopeAssignments struct {
	byCourse map[string]*models.CourseAssignment
}

func (m *fakeScopeAssignments) Resolve(ctx context.Context, courseID, collegeID string, departmentID *string) (*models.CourseAssignment, error) {
	return m.byCourse[courseID], nil
}

type fakeStatusLoader struct {
	cfg *models.StatusConfig
}

func (m *fakeStatusLoader) Load(ctx context.Context) (*models.StatusConfig, error) {
	if m.cfg != nil {
		return m.cfg, nil
	}
	return models.DefaultStatusConfig(), nil
}

type fakeGate struct {
	denied map[string]bool
	calls  []string
}

func (m *fakeGate) CanModerate(ctx context.Context, caller *models.User, courseID string) (bool, error) {
	m.calls = append(m.calls, courseID)
	return !m.denied[courseID], nil
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func errCode(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

type enrollmentFixture struct {
	repo        *fakeEnrollmentRepo
	users       *fakeUserReader
	courses     *fakeCourseReader
	affiliation *fakeAffiliations
	assignments *fakeScopeAssignments
	statuses    *fakeStatusLoader
	gate        *fakeGate
	svc         *EnrollmentService
}

func newEnrollmentFixture() *enrollmentFixture {
	f := &enrollmentFixture{
		repo:        newFakeEnrollmentRepo(),
		users:       &fakeUserReader{users: make(map[string]*models.User)},
		courses:     &fakeCourseReader{missing: make(map[string]bool)},
		affiliation: &fakeAffiliations{byUser: make(map[string]*models.Affiliation)},
		assignments: &fakeScopeAssignments{byCourse: make(map[string]*models.CourseAssignment)},
		statuses:    &fakeStatusLoader{},
		gate:        &fakeGate{denied: make(map[string]bool)},
	}
	f.svc = NewEnrollmentService(f.repo, f.users, f.courses, f.affiliation, f.assignments, f.statuses, f.gate, 200, validator.New(), zap.NewNop())
	return f
}

func (f *enrollmentFixture) addStudent(id, college string, dept *string) *models.User {
	u := &models.User{ID: id, Email: id + "@campus.test", Role: models.RoleStudent, Active: true}
	f.users.users[id] = u
	aff := &models.Affiliation{CollegeID: college}
	if dept != nil {
		aff.DepartmentIDs = []string{*dept}
	}
	f.affiliation.byUser[id] = aff
	return u
}

func (f *enrollmentFixture) assignCourse(courseID, collegeID string, dept *string, capacity *int) {
	f.assignments.byCourse[courseID] = &models.CourseAssignment{
		ID:           "asg-" + courseID,
		CourseID:     courseID,
		CollegeID:    collegeID,
		DepartmentID: dept,
		Capacity:     capacity,
	}
}

func TestEnrollmentServiceSelfRequestCreatesPending(t *testing.T) {
	f := newEnrollmentFixture()
	student := f.addStudent("s1", "col-1", strPtr("dep-1"))
	f.assignCourse("c1", "col-1", strPtr("dep-1"), nil)

	enrollment, err := f.svc.SelfRequest(context.Background(), student, SelfEnrollRequest{CourseID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, enrollment.Status)
	assert.Nil(t, enrollment.StartedAt)
	require.NotNil(t, enrollment.DepartmentID)
	assert.Equal(t, "dep-1", *enrollment.DepartmentID)
	require.NotNil(t, enrollment.CollegeID)
	assert.Equal(t, "col-1", *enrollment.CollegeID)
}

func TestEnrollmentServiceSelfRequestIdempotent(t *testing.T) {
	f := newEnrollmentFixture()
	student := f.addStudent("s1", "col-1", nil)
	f.assignCourse("c1", "col-1", nil, nil)

	first, err := f.svc.SelfRequest(context.Background(), student, SelfEnrollRequest{CourseID: "c1"})
	require.NoError(t, err)

	second, err := f.svc.SelfRequest(context.Background(), student, SelfEnrollRequest{CourseID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Status, second.Status)
	assert.Len(t, f.repo.enrollments, 1)
}

func TestEnrollmentServiceSelfRequestRequiresStudentRole(t *testing.T) {
	f := newEnrollmentFixture()
	instructor := &models.User{ID: "i1", Role: models.RoleInstructor, Active: true}

	_, err := f.svc.SelfRequest(context.Background(), instructor, SelfEnrollRequest{CourseID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(err))
}

func TestEnrollmentServiceSelfRequestNotEligible(t *testing.T) {
	f := newEnrollmentFixture()
	student := &models.User{ID: "s1", Email: "s1@campus.test", Role: models.RoleStudent, Active: true}
	f.users.users["s1"] = student
	f.assignCourse("c1", "col-1", nil, nil)

	_, err := f.svc.SelfRequest(context.Background(), student, SelfEnrollRequest{CourseID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEligible.Code, errCode(err))
}

func TestEnrollmentServiceSelfRequestCourseNotAssigned(t *testing.T) {
	f := newEnrollmentFixture()
	student := f.addStudent("s1", "col-1", nil)

	_, err := f.svc.SelfRequest(context.Background(), student, SelfEnrollRequest{CourseID: "c-unassigned"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCourseNotAssigned.Code, errCode(err))
	assert.Empty(t, f.repo.enrollments)
}

func TestEnrollmentServiceAdminEnrollGrantsApproved(t *testing.T) {
	f := newEnrollmentFixture()
	f.addStudent("s1", "col-1", strPtr("dep-1"))
	f.assignCourse("c1", "col-1", strPtr("dep-1"), intPtr(10))

	enrollment, err := f.svc.AdminEnroll(context.Background(), AdminEnrollRequest{StudentID: "s1", CourseID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, enrollment.Status)
	assert.NotNil(t, enrollment.StartedAt)
}

func TestEnrollmentServiceAdminEnrollDuplicateConflict(t *testing.T) {
	f := newEnrollmentFixture()
	f.addStudent("s1", "col-1", nil)
	f.assignCourse("c1", "col-1", nil, nil)

	_, err := f.svc.AdminEnroll(context.Background(), AdminEnrollRequest{StudentID: "s1", CourseID: "c1"})
	require.NoError(t, err)

	_, err = f.svc.AdminEnroll(context.Background(), AdminEnrollRequest{StudentID: "s1", CourseID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(err))
}

func TestEnrollmentServiceAdminEnrollUnknownStudent(t *testing.T) {
	f := newEnrollmentFixture()

	_, err := f.svc.AdminEnroll(context.Background(), AdminEnrollRequest{StudentID: "ghost", CourseID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))
}

func TestEnrollmentServiceAdminEnrollNonStudentTarget(t *testing.T) {
	f := newEnrollmentFixture()
	f.users.users["i1"] = &models.User{ID: "i1", Role: models.RoleInstructor, Active: true}

	_, err := f.svc.AdminEnroll(context.Background(), AdminEnrollRequest{StudentID: "i1", CourseID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))
}

func TestEnrollmentServiceAdminEnrollCapacityFull(t *testing.T) {
	f := newEnrollmentFixture()
	f.addStudent("s1", "col-1", nil)
	f.addStudent("s2", "col-1", nil)
	f.assignCourse("c1", "col-1", nil, intPtr(1))

	_, err := f.svc.AdminEnroll(context.Background(), AdminEnrollRequest{StudentID: "s1", CourseID: "c1"})
	require.NoError(t, err)

	_, err = f.svc.AdminEnroll(context.Background(), AdminEnrollRequest{StudentID: "s2", CourseID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCapacityFull.Code, errCode(err))
}

func TestEnrollmentServiceTransitionInvalidStatus(t *testing.T) {
	f := newEnrollmentFixture()
	student := f.addStudent("s1", "col-1", nil)
	f.assignCourse("c1", "col-1", nil, nil)
	enrollment, err := f.svc.SelfRequest(context.Background(), student, SelfEnrollRequest{CourseID: "c1"})
	require.NoError(t, err)

	admin := &models.User{ID: "a1", Role: models.RoleAdmin, Active: true}
	_, err = f.svc.Transition(context.Background(), admin, enrollment.ID, TransitionRequest{Status: "WAITLISTED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidStatus.Code, errCode(err))
}

func TestEnrollmentServiceTransitionNormalizesStatus(t *testing.T) {
	f := newEnrollmentFixture()
	student := f.addStudent("s1", "col-1", nil)
	f.assignCourse("c1", "col-1", nil, nil)
	enrollment, err := f.svc.SelfRequest(context.Background(), student, SelfEnrollRequest{CourseID: "c1"})
	require.NoError(t, err)

	admin := &models.User{ID: "a1", Role: models.RoleAdmin, Active: true}
	updated, err := f.svc.Transition(context.Background(), admin, enrollment.ID, TransitionRequest{Status: " rejected "})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, updated.Status)
	assert.Nil(t, updated.StartedAt)
}

func TestEnrollmentServiceTransitionForbiddenByGate(t *testing.T) {
	f := newEnrollmentFixture()
	student := f.addStudent("s1", "col-1", nil)
	f.assignCourse("c1", "col-1", nil, nil)
	enrollment, err := f.svc.SelfRequest(context.Background(), student, SelfEnrollRequest{CourseID: "c1"})
	require.NoError(t, err)

	f.gate.denied["c1"] = true
	instructor := &models.User{ID: "i1", Role: models.RoleInstructor, Active: true}
	_, err = f.svc.Transition(context.Background(), instructor, enrollment.ID, TransitionRequest{Status: models.StatusApproved})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(err))
}

func TestEnrollmentServiceTransitionStartedAtSetOnce(t *testing.T) {
	f := newEnrollmentFixture()
	student := f.addStudent("s1", "col-1", nil)
	f.assignCourse("c1", "col-1", nil, nil)
	enrollment, err := f.svc.SelfRequest(context.Background(), student, SelfEnrollRequest{CourseID: "c1"})
	require.NoError(t, err)

	admin := &models.User{ID: "a1", Role: models.RoleAdmin, Active: true}
	approved, err := f.svc.Transition(context.Background(), admin, enrollment.ID, TransitionRequest{Status: models.StatusApproved})
	require.NoError(t, err)
	require.NotNil(t, approved.StartedAt)
	firstStart := *approved.StartedAt

	rejected, err := f.svc.Transition(context.Background(), admin, enrollment.ID, TransitionRequest{Status: models.StatusRejected})
	require.NoError(t, err)
	require.NotNil(t, rejected.StartedAt)
	assert.Equal(t, firstStart, *rejected.StartedAt)

	again, err := f.svc.Transition(context.Background(), admin, enrollment.ID, TransitionRequest{Status: models.StatusApproved})
	require.NoError(t, err)
	require.NotNil(t, again.StartedAt)
	assert.Equal(t, firstStart, *again.StartedAt)
}

func TestEnrollmentServiceAdmissionCycleFreesSeats(t *testing.T) {
	f := newEnrollmentFixture()
	f.assignCourse("c1", "col-1", nil, intPtr(2))
	admin := &models.User{ID: "a1", Role: models.RoleAdmin, Active: true}
	ctx := context.Background()

	ids := make(map[string]string)
	for _, s := range []string{"s1", "s2", "s3"} {
		student := f.addStudent(s, "col-1", nil)
		enrollment, err := f.svc.SelfRequest(ctx, student, SelfEnrollRequest{CourseID: "c1"})
		require.NoError(t, err)
		ids[s] = enrollment.ID
	}

	_, err := f.svc.Transition(ctx, admin, ids["s1"], TransitionRequest{Status: models.StatusApproved})
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, admin, ids["s2"], TransitionRequest{Status: models.StatusApproved})
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, admin, ids["s3"], TransitionRequest{Status: models.StatusApproved})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCapacityFull.Code, errCode(err))

	_, err = f.svc.Transition(ctx, admin, ids["s1"], TransitionRequest{Status: models.StatusRejected})
	require.NoError(t, err)

	admitted, err := f.svc.Transition(ctx, admin, ids["s3"], TransitionRequest{Status: models.StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, admitted.Status)
}

func TestEnrollmentServiceBulkTransitionRestrictedToInstructors(t *testing.T) {
	f := newEnrollmentFixture()
	admin := &models.User{ID: "a1", Role: models.RoleAdmin, Active: true}

	_, err := f.svc.BulkTransition(context.Background(), admin, BulkTransitionRequest{EnrollmentIDs: []string{"e1"}, Status: models.StatusApproved})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(err))
}

func TestEnrollmentServiceBulkTransitionMissingEnrollment(t *testing.T) {
	f := newEnrollmentFixture()
	instructor := &models.User{ID: "i1", Role: models.RoleInstructor, Active: true}

	_, err := f.svc.BulkTransition(context.Background(), instructor, BulkTransitionRequest{EnrollmentIDs: []string{"ghost"}, Status: models.StatusRejected})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))
}

func TestEnrollmentServiceBulkTransitionGatePerCourse(t *testing.T) {
	f := newEnrollmentFixture()
	ctx := context.Background()
	f.assignCourse("c1", "col-1", nil, nil)
	f.assignCourse("c2", "col-1", nil, nil)

	s1 := f.addStudent("s1", "col-1", nil)
	s2 := f.addStudent("s2", "col-1", nil)
	e1, err := f.svc.SelfRequest(ctx, s1, SelfEnrollRequest{CourseID: "c1"})
	require.NoError(t, err)
	e2, err := f.svc.SelfRequest(ctx, s2, SelfEnrollRequest{CourseID: "c2"})
	require.NoError(t, err)

	f.gate.denied["c2"] = true
	instructor := &models.User{ID: "i1", Role: models.RoleInstructor, Active: true}
	_, err = f.svc.BulkTransition(ctx, instructor, BulkTransitionRequest{
		EnrollmentIDs: []string{e1.ID, e2.ID},
		Status:        models.StatusRejected,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(err))

	// Nothing was written before the gate failure surfaced.
	assert.Equal(t, models.StatusPending, f.repo.enrollments[e1.ID].Status)
	assert.Equal(t, models.StatusPending, f.repo.enrollments[e2.ID].Status)
}

func TestEnrollmentServiceBulkTransitionCapacityProjection(t *testing.T) {
	f := newEnrollmentFixture()
	ctx := context.Background()
	f.assignCourse("c1", "col-1", nil, intPtr(3))
	instructor := &models.User{ID: "i1", Role: models.RoleInstructor, Active: true}

	var pendingIDs []string
	for _, s := range []string{"s1", "s2", "s3"} {
		student := f.addStudent(s, "col-1", nil)
		enrollment, err := f.svc.SelfRequest(ctx, student, SelfEnrollRequest{CourseID: "c1"})
		require.NoError(t, err)
		pendingIDs = append(pendingIDs, enrollment.ID)
	}

	admin := &models.User{ID: "a1", Role: models.RoleAdmin, Active: true}
	_, err := f.svc.Transition(ctx, admin, pendingIDs[0], TransitionRequest{Status: models.StatusApproved})
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, admin, pendingIDs[1], TransitionRequest{Status: models.StatusApproved})
	require.NoError(t, err)

	// Two seats taken of three; approving two more must fail as a whole.
	s4 := f.addStudent("s4", "col-1", nil)
	e4, err := f.svc.SelfRequest(ctx, s4, SelfEnrollRequest{CourseID: "c1"})
	require.NoError(t, err)

	_, err = f.svc.BulkTransition(ctx, instructor, BulkTransitionRequest{
		EnrollmentIDs: []string{pendingIDs[2], e4.ID},
		Status:        models.StatusApproved,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCapacityFull.Code, errCode(err))
	assert.Equal(t, models.StatusPending, f.repo.enrollments[pendingIDs[2]].Status)

	// A batch that fits commits atomically.
	result, err := f.svc.BulkTransition(ctx, instructor, BulkTransitionRequest{
		EnrollmentIDs: []string{pendingIDs[2]},
		Status:        models.StatusApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.UpdatedCount)
}

func TestEnrollmentServiceBulkTransitionSizeLimit(t *testing.T) {
	f := newEnrollmentFixture()
	f.svc = NewEnrollmentService(f.repo, f.users, f.courses, f.affiliation, f.assignments, f.statuses, f.gate, 2, validator.New(), zap.NewNop())
	instructor := &models.User{ID: "i1", Role: models.RoleInstructor, Active: true}

	_, err := f.svc.BulkTransition(context.Background(), instructor, BulkTransitionRequest{
		EnrollmentIDs: []string{"e1", "e2", "e3"},
		Status:        models.StatusRejected,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))
}

func TestEnrollmentServiceListForcesStudentScope(t *testing.T) {
	f := newEnrollmentFixture()
	ctx := context.Background()
	f.assignCourse("c1", "col-1", nil, nil)
	s1 := f.addStudent("s1", "col-1", nil)
	s2 := f.addStudent("s2", "col-1", nil)
	_, err := f.svc.SelfRequest(ctx, s1, SelfEnrollRequest{CourseID: "c1"})
	require.NoError(t, err)
	_, err = f.svc.SelfRequest(ctx, s2, SelfEnrollRequest{CourseID: "c1"})
	require.NoError(t, err)

	rows, pagination, err := f.svc.List(ctx, s1, models.EnrollmentFilter{StudentID: "s2"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "s1", rows[0].StudentID)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestEnrollmentServiceCourseStatusSummary(t *testing.T) {
	f := newEnrollmentFixture()
	ctx := context.Background()
	f.assignCourse("c1", "col-1", nil, nil)
	s1 := f.addStudent("s1", "col-1", nil)
	s2 := f.addStudent("s2", "col-1", nil)
	e1, err := f.svc.SelfRequest(ctx, s1, SelfEnrollRequest{CourseID: "c1"})
	require.NoError(t, err)
	_, err = f.svc.SelfRequest(ctx, s2, SelfEnrollRequest{CourseID: "c1"})
	require.NoError(t, err)

	admin := &models.User{ID: "a1", Role: models.RoleAdmin, Active: true}
	_, err = f.svc.Transition(ctx, admin, e1.ID, TransitionRequest{Status: models.StatusApproved})
	require.NoError(t, err)

	summary, err := f.svc.CourseStatusSummary(ctx, admin, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)

	counts := make(map[string]int)
	for _, c := range summary.Counts {
		counts[c.Status] = c.Count
	}
	assert.Equal(t, 1, counts[models.StatusApproved])
	assert.Equal(t, 1, counts[models.StatusPending])
}

func TestEnrollmentServiceModeratedStudentStatus(t *testing.T) {
	f := newEnrollmentFixture()
	ctx := context.Background()
	f.assignCourse("c1", "col-1", nil, nil)
	s1 := f.addStudent("s1", "col-1", nil)
	_, err := f.svc.SelfRequest(ctx, s1, SelfEnrollRequest{CourseID: "c1"})
	require.NoError(t, err)

	instructor := &models.User{ID: "i1", Role: models.RoleInstructor, Active: true}
	view, err := f.svc.ModeratedStudentStatus(ctx, instructor, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, view.Status)

	f.gate.denied["c1"] = true
	_, err = f.svc.ModeratedStudentStatus(ctx, instructor, "s1", "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(err))
}

func TestEnrollmentServiceDeleteNotFound(t *testing.T) {
	f := newEnrollmentFixture()
	err := f.svc.Delete(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))
}
