package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-adp-api/internal/models"
	appErrors "github.com/noah-isme/lms-adp-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	deleted     []string
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var list []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		list = append(list, models.EnrollmentDetail{Enrollment: e})
	}
	return list, len(list), nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			found := e
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Exists(ctx context.Context, studentID, courseID string) (bool, error) {
	_, err := m.FindByStudentAndCourse(ctx, studentID, courseID)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	m.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (m *mockEnrollmentRepo) Delete(ctx context.Context, id string) error {
	delete(m.enrollments, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func newEnrollmentFixture() (*EnrollmentService, *mockEnrollmentRepo, string, string) {
	courseID := uuid.NewString()
	unpublishedID := uuid.NewString()
	repo := &mockEnrollmentRepo{enrollments: make(map[string]models.Enrollment)}
	courses := &mockCourseReader{courses: map[string]*models.Course{
		courseID:      {ID: courseID, Published: true},
		unpublishedID: {ID: unpublishedID, Published: false},
	}}
	svc := NewEnrollmentService(repo, courses, validator.New(), zap.NewNop())
	return svc, repo, courseID, unpublishedID
}

func TestEnrollStartsActiveWithZeroProgress(t *testing.T) {
	svc, repo, courseID, _ := newEnrollmentFixture()
	studentID := uuid.NewString()

	enrollment, err := svc.Enroll(context.Background(), studentID, EnrollRequest{CourseID: courseID})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Equal(t, float64(0), enrollment.Progress)
	assert.Nil(t, enrollment.CompletedAt)
	assert.Len(t, repo.enrollments, 1)
}

func TestEnrollRejectsUnpublishedCourse(t *testing.T) {
	svc, _, _, unpublishedID := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), uuid.NewString(), EnrollRequest{CourseID: unpublishedID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollRejectsUnknownCourse(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), uuid.NewString(), EnrollRequest{CourseID: uuid.NewString()})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollRejectsDuplicate(t *testing.T) {
	svc, _, courseID, _ := newEnrollmentFixture()
	studentID := uuid.NewString()

	_, err := svc.Enroll(context.Background(), studentID, EnrollRequest{CourseID: courseID})
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), studentID, EnrollRequest{CourseID: courseID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUnenrollRemovesEnrollment(t *testing.T) {
	svc, repo, courseID, _ := newEnrollmentFixture()

	enrollment, err := svc.Enroll(context.Background(), uuid.NewString(), EnrollRequest{CourseID: courseID})
	require.NoError(t, err)

	require.NoError(t, svc.Unenroll(context.Background(), enrollment.ID))
	assert.Contains(t, repo.deleted, enrollment.ID)

	err = svc.Unenroll(context.Background(), enrollment.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentListFiltersByStatus(t *testing.T) {
	svc, repo, courseID, _ := newEnrollmentFixture()
	repo.enrollments["done"] = models.Enrollment{ID: "done", CourseID: courseID, Status: models.EnrollmentStatusCompleted}
	repo.enrollments["going"] = models.Enrollment{ID: "going", CourseID: courseID, Status: models.EnrollmentStatusActive}

	rows, pagination, err := svc.List(context.Background(), EnrollmentListRequest{Status: "COMPLETED"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "done", rows[0].ID)
	assert.Equal(t, 1, pagination.Page)
}

func TestEnrollmentListRejectsUnknownStatus(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture()

	_, _, err := svc.List(context.Background(), EnrollmentListRequest{Status: "PAUSED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
