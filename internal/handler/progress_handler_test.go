package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-adp-api/internal/middleware"
	"github.com/noah-isme/lms-adp-api/internal/models"
	"github.com/noah-isme/lms-adp-api/internal/service"
	"github.com/noah-isme/lms-adp-api/pkg/response"
)

type watchStore struct {
	records map[string]*models.VideoProgress
}

func watchKey(userID, videoID string) string {
	return fmt.Sprintf("%s/%s", userID, videoID)
}

func (s *watchStore) Upsert(_ context.Context, p *models.VideoProgress) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.LastWatchedAt = time.Now().UTC()
	clone := *p
	s.records[watchKey(p.UserID, p.VideoID)] = &clone
	return nil
}

func (s *watchStore) FindByUserAndVideo(_ context.Context, userID, videoID string) (*models.VideoProgress, error) {
	if rec, ok := s.records[watchKey(userID, videoID)]; ok {
		clone := *rec
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *watchStore) ListByUserAndModule(_ context.Context, _, _ string) ([]models.VideoProgress, error) {
	return nil, nil
}

func (s *watchStore) CountPublishedModules(_ context.Context, _ string) (int, error) {
	return 4, nil
}

func (s *watchStore) CountCompletedModules(_ context.Context, _, _ string) (int, error) {
	return 1, nil
}

type videoStore struct {
	videos map[string]*models.Video
}

func (s *videoStore) FindByID(_ context.Context, id string) (*models.Video, error) {
	if v, ok := s.videos[id]; ok {
		return v, nil
	}
	return nil, sql.ErrNoRows
}

type moduleStore struct {
	modules map[string]*models.Module
}

func (s *moduleStore) FindByID(_ context.Context, id string) (*models.Module, error) {
	if m, ok := s.modules[id]; ok {
		return m, nil
	}
	return nil, sql.ErrNoRows
}

type enrollmentStore struct{}

func (s *enrollmentStore) FindByID(_ context.Context, _ string) (*models.Enrollment, error) {
	return nil, sql.ErrNoRows
}

func (s *enrollmentStore) FindByStudentAndCourse(_ context.Context, _, _ string) (*models.Enrollment, error) {
	return nil, sql.ErrNoRows
}

func (s *enrollmentStore) UpdateProgress(_ context.Context, _ string, _ float64, _ models.EnrollmentStatus, _ *time.Time) error {
	return nil
}

func newProgressHandler(t *testing.T) (*ProgressHandler, string, string) {
	t.Helper()
	videoID := uuid.NewString()
	moduleID := uuid.NewString()
	courseID := uuid.NewString()

	svc := service.NewProgressService(
		&watchStore{records: map[string]*models.VideoProgress{}},
		&videoStore{videos: map[string]*models.Video{
			videoID: {ID: videoID, ModuleID: moduleID, Title: "Intro", Published: true},
		}},
		&moduleStore{modules: map[string]*models.Module{
			moduleID: {ID: moduleID, CourseID: courseID, Published: true},
		}},
		&enrollmentStore{},
		nil,
		time.Minute,
		nil,
		zap.NewNop(),
	)
	return NewProgressHandler(svc, nil), videoID, courseID
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestProgressHandlerRecordWatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, videoID, _ := newProgressHandler(t)

	payload, _ := json.Marshal(service.WatchEventRequest{VideoID: videoID, WatchedSeconds: 90, Completed: true})
	c, w := newGinContext(http.MethodPost, "/progress/watch", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: uuid.NewString(), Role: models.RoleStudent})

	h.RecordWatch(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	record, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, videoID, record["video_id"])
	assert.Equal(t, float64(90), record["watched_seconds"])
	assert.Equal(t, true, record["is_completed"])
}

func TestProgressHandlerRecordWatchRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, videoID, _ := newProgressHandler(t)

	payload, _ := json.Marshal(service.WatchEventRequest{VideoID: videoID, WatchedSeconds: 10})
	c, w := newGinContext(http.MethodPost, "/progress/watch", payload)

	h.RecordWatch(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProgressHandlerCourseCompletion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, courseID := newProgressHandler(t)

	c, w := newGinContext(http.MethodGet, "/courses/"+courseID+"/completion", nil)
	c.Params = gin.Params{{Key: "id", Value: courseID}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: uuid.NewString(), Role: models.RoleStudent})

	h.GetCourseCompletion(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(4), data["total_modules"])
	assert.Equal(t, float64(25), data["percentage"])
}

func TestProgressHandlerCompletionForbiddenForOtherStudent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, courseID := newProgressHandler(t)

	c, w := newGinContext(http.MethodGet, "/courses/"+courseID+"/completion?studentId="+uuid.NewString(), nil)
	c.Params = gin.Params{{Key: "id", Value: courseID}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: uuid.NewString(), Role: models.RoleStudent})

	h.GetCourseCompletion(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}
