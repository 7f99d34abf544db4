package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-adp-api/internal/models"
	appErrors "github.com/noah-isme/lms-adp-api/pkg/errors"
)

type videoRepository interface {
	ListByModule(ctx context.Context, moduleID string) ([]models.Video, error)
	FindByID(ctx context.Context, id string) (*models.Video, error)
	InsertAt(ctx context.Context, video *models.Video, desired int) error
	Move(ctx context.Context, id string, newPosition int) error
	Remove(ctx context.Context, id string) error
	Reorder(ctx context.Context, moduleID string, want map[string]int) error
	Update(ctx context.Context, video *models.Video) error
	BulkSetPublished(ctx context.Context, moduleID string, videoIDs []string, published bool) (int64, error)
}

type videoModuleRepository interface {
	FindByID(ctx context.Context, id string) (*models.Module, error)
}

// VideoService coordinates video CRUD and sibling ordering within a module.
type VideoService struct {
	repo       videoRepository
	moduleRepo videoModuleRepository
	cache      completionInvalidator
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewVideoService constructs the video service.
func NewVideoService(repo videoRepository, modules videoModuleRepository, cache completionInvalidator, validate *validator.Validate, logger *zap.Logger) *VideoService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VideoService{repo: repo, moduleRepo: modules, cache: cache, validator: validate, logger: logger}
}

// CreateVideoRequest describes the create payload. An omitted position
// appends; an explicit position must be at least 1, so zero is rejected.
type CreateVideoRequest struct {
	ModuleID        string `json:"module_id" validate:"required,uuid4"`
	Title           string `json:"title" validate:"required,min=1,max=255"`
	URL             string `json:"url" validate:"required,url"`
	DurationSeconds int    `json:"duration_seconds" validate:"gte=0"`
	Position        *int   `json:"position" validate:"omitempty,gte=1"`
	Published       bool   `json:"published"`
}

// UpdateVideoRequest describes mutable video attributes.
type UpdateVideoRequest struct {
	Title           string `json:"title" validate:"required,min=1,max=255"`
	URL             string `json:"url" validate:"required,url"`
	DurationSeconds int    `json:"duration_seconds" validate:"gte=0"`
	Published       bool   `json:"published"`
}

// ReorderVideosRequest carries the full desired ordering of a module.
type ReorderVideosRequest struct {
	VideoIDs []string `json:"video_ids" validate:"required,min=1,dive,uuid4"`
}

// BulkPublishRequest toggles publication for a set of a module's videos.
type BulkPublishRequest struct {
	VideoIDs  []string `json:"video_ids" validate:"required,min=1,dive,uuid4"`
	Published bool     `json:"published"`
}

// ListByModule returns a module's videos in position order.
func (s *VideoService) ListByModule(ctx context.Context, moduleID string) ([]models.Video, error) {
	if _, err := s.moduleRepo.FindByID(ctx, moduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	videos, err := s.repo.ListByModule(ctx, moduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list videos")
	}
	return videos, nil
}

// Get returns a video by id.
func (s *VideoService) Get(ctx context.Context, id string) (*models.Video, error) {
	video, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "video not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load video")
	}
	return video, nil
}

// Create inserts a video at the requested position within its module.
func (s *VideoService) Create(ctx context.Context, req CreateVideoRequest) (*models.Video, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	module, err := s.moduleRepo.FindByID(ctx, req.ModuleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	now := time.Now().UTC()
	video := &models.Video{
		ID:              uuid.NewString(),
		ModuleID:        req.ModuleID,
		Title:           req.Title,
		URL:             req.URL,
		DurationSeconds: req.DurationSeconds,
		Published:       req.Published,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	desired := 0
	if req.Position != nil {
		desired = *req.Position
	}
	if err := s.repo.InsertAt(ctx, video, desired); err != nil {
		return nil, mapOrderingError(err, "failed to create video")
	}
	s.invalidateCompletion(ctx, module.CourseID)
	return video, nil
}

// Update changes video attributes other than position.
func (s *VideoService) Update(ctx context.Context, id string, req UpdateVideoRequest) (*models.Video, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	video, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "video not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load video")
	}
	video.Title = req.Title
	video.URL = req.URL
	video.DurationSeconds = req.DurationSeconds
	video.Published = req.Published
	video.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, video); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update video")
	}
	s.invalidateForModule(ctx, video.ModuleID)
	return video, nil
}

// Move relocates a video within its module.
func (s *VideoService) Move(ctx context.Context, id string, newPosition int) (*models.Video, error) {
	if newPosition < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "position must be at least 1")
	}
	if err := s.repo.Move(ctx, id, newPosition); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "video not found")
		}
		return nil, mapOrderingError(err, "failed to move video")
	}
	video, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload video")
	}
	return video, nil
}

// Delete removes a video, its watch records, and compacts positions.
func (s *VideoService) Delete(ctx context.Context, id string) error {
	video, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "video not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load video")
	}
	if err := s.repo.Remove(ctx, id); err != nil {
		return mapOrderingError(err, "failed to delete video")
	}
	s.invalidateForModule(ctx, video.ModuleID)
	return nil
}

// Reorder applies a complete new ordering to a module's videos.
func (s *VideoService) Reorder(ctx context.Context, moduleID string, req ReorderVideosRequest) ([]models.Video, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	want := make(map[string]int, len(req.VideoIDs))
	for i, id := range req.VideoIDs {
		if _, ok := want[id]; ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate video id in ordering")
		}
		want[id] = i + 1
	}
	if err := s.repo.Reorder(ctx, moduleID, want); err != nil {
		return nil, mapOrderingError(err, "failed to reorder videos")
	}
	s.invalidateForModule(ctx, moduleID)
	return s.repo.ListByModule(ctx, moduleID)
}

// BulkPublish toggles the published flag on a set of the module's videos.
// The batch is all-or-nothing: an id belonging to another module rejects
// the whole request and no publication state changes.
func (s *VideoService) BulkPublish(ctx context.Context, moduleID string, req BulkPublishRequest) (int64, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	affected, err := s.repo.BulkSetPublished(ctx, moduleID, req.VideoIDs, req.Published)
	if err != nil {
		return 0, mapOrderingError(err, "failed to update publication state")
	}
	s.invalidateForModule(ctx, moduleID)
	return affected, nil
}

func (s *VideoService) invalidateForModule(ctx context.Context, moduleID string) {
	module, err := s.moduleRepo.FindByID(ctx, moduleID)
	if err != nil {
		s.logger.Warn("completion cache invalidation skipped", zap.String("module_id", moduleID), zap.Error(err))
		return
	}
	s.invalidateCompletion(ctx, module.CourseID)
}

func (s *VideoService) invalidateCompletion(ctx context.Context, courseID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateCourse(ctx, courseID); err != nil {
		s.logger.Warn("completion cache invalidation failed", zap.String("course_id", courseID), zap.Error(err))
	}
}
