package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-adp-api/internal/models"
	appErrors "github.com/noah-isme/lms-adp-api/pkg/errors"
)

type videoProgressRepository interface {
	Upsert(ctx context.Context, progress *models.VideoProgress) error
	FindByUserAndVideo(ctx context.Context, userID, videoID string) (*models.VideoProgress, error)
	ListByUserAndModule(ctx context.Context, userID, moduleID string) ([]models.VideoProgress, error)
	CountPublishedModules(ctx context.Context, courseID string) (int, error)
	CountCompletedModules(ctx context.Context, userID, courseID string) (int, error)
}

type progressVideoRepository interface {
	FindByID(ctx context.Context, id string) (*models.Video, error)
}

type progressModuleRepository interface {
	FindByID(ctx context.Context, id string) (*models.Module, error)
}

type progressEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	UpdateProgress(ctx context.Context, id string, progress float64, status models.EnrollmentStatus, completedAt *time.Time) error
}

type completionCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// completionInvalidator is the slice of ProgressService the content
// services need: dropping cached completion whenever course structure
// changes.
type completionInvalidator interface {
	InvalidateCourse(ctx context.Context, courseID string) error
}

// ProgressService tracks per-video watch state and derives enrollment
// completion from it.
type ProgressService struct {
	progressRepo   videoProgressRepository
	videoRepo      progressVideoRepository
	moduleRepo     progressModuleRepository
	enrollmentRepo progressEnrollmentRepository
	cache          completionCache
	cacheTTL       time.Duration
	metrics        *MetricsService
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewProgressService constructs the progress service. A nil cache disables
// completion caching.
func NewProgressService(
	progress videoProgressRepository,
	videos progressVideoRepository,
	modules progressModuleRepository,
	enrollments progressEnrollmentRepository,
	cache completionCache,
	cacheTTL time.Duration,
	validate *validator.Validate,
	logger *zap.Logger,
) *ProgressService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{
		progressRepo:   progress,
		videoRepo:      videos,
		moduleRepo:     modules,
		enrollmentRepo: enrollments,
		cache:          cache,
		cacheTTL:       cacheTTL,
		validator:      validate,
		logger:         logger,
	}
}

// SetMetrics attaches the completion cache instrumentation. A nil
// recorder is a no-op.
func (s *ProgressService) SetMetrics(m *MetricsService) {
	s.metrics = m
}

// WatchEventRequest describes a client watch report. WatchedSeconds is
// last-write-wins, so rewinding produces smaller values than earlier
// events and that is accepted as-is.
type WatchEventRequest struct {
	VideoID        string `json:"video_id" validate:"required,uuid4"`
	WatchedSeconds int    `json:"watched_seconds" validate:"gte=0"`
	Completed      bool   `json:"completed"`
}

// OverrideProgressRequest sets an enrollment's progress directly.
type OverrideProgressRequest struct {
	Progress float64 `json:"progress" validate:"gte=0,lte=100"`
}

// RecordVideoWatch upserts the watch state for (user, video) and
// recomputes the user's enrollment progress for the owning course.
func (s *ProgressService) RecordVideoWatch(ctx context.Context, userID string, req WatchEventRequest) (*models.VideoProgress, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	video, err := s.videoRepo.FindByID(ctx, req.VideoID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "video not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load video")
	}
	progress := &models.VideoProgress{
		UserID:         userID,
		VideoID:        req.VideoID,
		WatchedSeconds: req.WatchedSeconds,
		IsCompleted:    req.Completed,
		LastWatchedAt:  time.Now().UTC(),
	}
	if err := s.progressRepo.Upsert(ctx, progress); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record watch state")
	}

	module, err := s.moduleRepo.FindByID(ctx, video.ModuleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve course for video")
	}
	if err := s.cacheInvalidate(ctx, module.CourseID); err != nil {
		s.logger.Warn("completion cache invalidation failed", zap.String("course_id", module.CourseID), zap.Error(err))
	}
	if err := s.syncEnrollment(ctx, userID, module.CourseID); err != nil {
		return nil, err
	}
	return progress, nil
}

// GetVideoProgress returns the stored watch state, or a zero-value record
// when the user has never watched the video.
func (s *ProgressService) GetVideoProgress(ctx context.Context, userID, videoID string) (*models.VideoProgress, error) {
	progress, err := s.progressRepo.FindByUserAndVideo(ctx, userID, videoID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.VideoProgress{UserID: userID, VideoID: videoID}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load watch state")
	}
	return progress, nil
}

// ListModuleProgress returns the user's watch records for a module.
func (s *ProgressService) ListModuleProgress(ctx context.Context, userID, moduleID string) ([]models.VideoProgress, error) {
	records, err := s.progressRepo.ListByUserAndModule(ctx, userID, moduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list watch state")
	}
	return records, nil
}

// ComputeCourseCompletion derives the student's completion for a course:
// a published module counts as completed when it has at least one
// published video and every one of them is completed. A course without
// published modules is 0 percent, never a division by zero.
func (s *ProgressService) ComputeCourseCompletion(ctx context.Context, courseID, studentID string) (*models.CourseCompletion, error) {
	key := completionCacheKey(courseID, studentID)
	if s.cache != nil {
		var cached models.CourseCompletion
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("completion cache read failed", zap.String("key", key), zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
	}

	total, err := s.progressRepo.CountPublishedModules(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count modules")
	}
	completed := 0
	if total > 0 {
		completed, err = s.progressRepo.CountCompletedModules(ctx, studentID, courseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count completed modules")
		}
	}
	completion := &models.CourseCompletion{
		CourseID:         courseID,
		StudentID:        studentID,
		CompletedModules: completed,
		TotalModules:     total,
		Percentage:       completionPercentage(completed, total),
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, completion, s.cacheTTL); err != nil {
			s.logger.Warn("completion cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return completion, nil
}

// UpdateEnrollmentProgress sets an enrollment's progress to an explicit
// value and derives status from it: exactly 100 marks COMPLETED with a
// completion timestamp, anything lower reverts to ACTIVE and clears it.
// The transition is a pure function of the incoming value; prior status
// carries no weight.
func (s *ProgressService) UpdateEnrollmentProgress(ctx context.Context, enrollmentID string, req OverrideProgressRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "progress must be between 0 and 100")
	}
	enrollment, err := s.enrollmentRepo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	status, completedAt := progressTransition(req.Progress, enrollment.CompletedAt)
	if err := s.enrollmentRepo.UpdateProgress(ctx, enrollmentID, req.Progress, status, completedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment progress")
	}
	enrollment.Progress = req.Progress
	enrollment.Status = status
	enrollment.CompletedAt = completedAt
	// The override changes what completion reads should reflect, so the
	// cached entries for the course are dropped alongside the write.
	if err := s.cacheInvalidate(ctx, enrollment.CourseID); err != nil {
		s.logger.Warn("completion cache invalidation failed", zap.String("course_id", enrollment.CourseID), zap.Error(err))
	}
	return enrollment, nil
}

// InvalidateCourse drops every cached completion for a course. Content
// services call this whenever modules or videos change shape.
func (s *ProgressService) InvalidateCourse(ctx context.Context, courseID string) error {
	return s.cacheInvalidate(ctx, courseID)
}

// syncEnrollment recomputes completion and pushes it onto the student's
// enrollment if one exists. A watch event from a non-enrolled user (an
// instructor previewing, say) is recorded but drives no enrollment.
func (s *ProgressService) syncEnrollment(ctx context.Context, studentID, courseID string) error {
	enrollment, err := s.enrollmentRepo.FindByStudentAndCourse(ctx, studentID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	completion, err := s.ComputeCourseCompletion(ctx, courseID, studentID)
	if err != nil {
		return err
	}
	status, completedAt := progressTransition(completion.Percentage, enrollment.CompletedAt)
	if err := s.enrollmentRepo.UpdateProgress(ctx, enrollment.ID, completion.Percentage, status, completedAt); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sync enrollment progress")
	}
	return nil
}

func (s *ProgressService) cacheInvalidate(ctx context.Context, courseID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeleteByPattern(ctx, fmt.Sprintf("completion:%s:*", courseID))
}

// progressTransition maps a progress value to enrollment status. The
// existing timestamp is kept when the enrollment is already completed so
// repeated recomputes at 100 do not rewrite history.
func progressTransition(progress float64, existing *time.Time) (models.EnrollmentStatus, *time.Time) {
	if progress >= 100 {
		if existing != nil {
			return models.EnrollmentStatusCompleted, existing
		}
		now := time.Now().UTC()
		return models.EnrollmentStatusCompleted, &now
	}
	return models.EnrollmentStatusActive, nil
}

func completionPercentage(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(completed) / float64(total) * 100)
}

func completionCacheKey(courseID, studentID string) string {
	return fmt.Sprintf("completion:%s:%s", courseID, studentID)
}
