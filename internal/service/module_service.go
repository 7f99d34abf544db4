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
	"github.com/noah-isme/lms-adp-api/internal/ordering"
	appErrors "github.com/noah-isme/lms-adp-api/pkg/errors"
)

type moduleRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.ModuleDetail, error)
	FindByID(ctx context.Context, id string) (*models.Module, error)
	InsertAt(ctx context.Context, module *models.Module, desired int) error
	Move(ctx context.Context, id string, newPosition int) error
	Remove(ctx context.Context, id string) error
	Reorder(ctx context.Context, courseID string, want map[string]int) error
	Update(ctx context.Context, module *models.Module) error
}

type moduleCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// ModuleService coordinates module CRUD and sibling ordering.
type ModuleService struct {
	repo       moduleRepository
	courseRepo moduleCourseRepository
	cache      completionInvalidator
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewModuleService constructs the module service.
func NewModuleService(repo moduleRepository, courses moduleCourseRepository, cache completionInvalidator, validate *validator.Validate, logger *zap.Logger) *ModuleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModuleService{repo: repo, courseRepo: courses, cache: cache, validator: validate, logger: logger}
}

// CreateModuleRequest describes the create payload. An omitted position
// appends to the end of the course; an explicit position must be at
// least 1, so sending zero is rejected rather than silently appended.
type CreateModuleRequest struct {
	CourseID    string  `json:"course_id" validate:"required,uuid4"`
	Title       string  `json:"title" validate:"required,min=1,max=255"`
	Description *string `json:"description"`
	Position    *int    `json:"position" validate:"omitempty,gte=1"`
	Published   bool    `json:"published"`
}

// UpdateModuleRequest describes mutable module attributes. Position is
// deliberately absent: positions change only through Move and Reorder.
type UpdateModuleRequest struct {
	Title       string  `json:"title" validate:"required,min=1,max=255"`
	Description *string `json:"description"`
	Published   bool    `json:"published"`
}

// ReorderModulesRequest carries the full desired ordering of a course.
type ReorderModulesRequest struct {
	ModuleIDs []string `json:"module_ids" validate:"required,min=1,dive,uuid4"`
}

// ListByCourse returns a course's modules in position order.
func (s *ModuleService) ListByCourse(ctx context.Context, courseID string) ([]models.ModuleDetail, error) {
	if _, err := s.courseRepo.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	modules, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list modules")
	}
	return modules, nil
}

// Get returns a module by id.
func (s *ModuleService) Get(ctx context.Context, id string) (*models.Module, error) {
	module, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	return module, nil
}

// Create inserts a module at the requested position, shifting later
// siblings right.
func (s *ModuleService) Create(ctx context.Context, req CreateModuleRequest) (*models.Module, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if _, err := s.courseRepo.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	now := time.Now().UTC()
	module := &models.Module{
		ID:          uuid.NewString(),
		CourseID:    req.CourseID,
		Title:       req.Title,
		Description: req.Description,
		Published:   req.Published,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	desired := 0
	if req.Position != nil {
		desired = *req.Position
	}
	if err := s.repo.InsertAt(ctx, module, desired); err != nil {
		return nil, mapOrderingError(err, "failed to create module")
	}
	s.invalidateCompletion(ctx, req.CourseID)
	return module, nil
}

// Update changes module attributes other than position.
func (s *ModuleService) Update(ctx context.Context, id string, req UpdateModuleRequest) (*models.Module, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	module, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	module.Title = req.Title
	module.Description = req.Description
	module.Published = req.Published
	module.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, module); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update module")
	}
	s.invalidateCompletion(ctx, module.CourseID)
	return module, nil
}

// Move relocates a module to a new position within its course.
func (s *ModuleService) Move(ctx context.Context, id string, newPosition int) (*models.Module, error) {
	if newPosition < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "position must be at least 1")
	}
	if err := s.repo.Move(ctx, id, newPosition); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, mapOrderingError(err, "failed to move module")
	}
	module, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload module")
	}
	return module, nil
}

// Delete removes a module and compacts the remaining positions. The
// module's videos and their watch records go with it.
func (s *ModuleService) Delete(ctx context.Context, id string) error {
	module, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	if err := s.repo.Remove(ctx, id); err != nil {
		return mapOrderingError(err, "failed to delete module")
	}
	s.invalidateCompletion(ctx, module.CourseID)
	return nil
}

// Reorder applies a complete new ordering to a course's modules. The id
// list must contain exactly the course's live modules; list index
// determines position.
func (s *ModuleService) Reorder(ctx context.Context, courseID string, req ReorderModulesRequest) ([]models.ModuleDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	want := make(map[string]int, len(req.ModuleIDs))
	for i, id := range req.ModuleIDs {
		if _, ok := want[id]; ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate module id in ordering")
		}
		want[id] = i + 1
	}
	if err := s.repo.Reorder(ctx, courseID, want); err != nil {
		return nil, mapOrderingError(err, "failed to reorder modules")
	}
	s.invalidateCompletion(ctx, courseID)
	return s.repo.ListByCourse(ctx, courseID)
}

func (s *ModuleService) invalidateCompletion(ctx context.Context, courseID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateCourse(ctx, courseID); err != nil {
		s.logger.Warn("completion cache invalidation failed", zap.String("course_id", courseID), zap.Error(err))
	}
}

// mapOrderingError translates planner sentinels and repository failures
// into API errors.
func mapOrderingError(err error, fallback string) error {
	switch {
	case errors.Is(err, ordering.ErrPositionOutOfRange):
		return appErrors.Clone(appErrors.ErrValidation, "position out of range")
	case errors.Is(err, ordering.ErrUnknownItem):
		return appErrors.Clone(appErrors.ErrScopeMismatch, "record does not belong to the referenced parent")
	case errors.Is(err, ordering.ErrNotPermutation):
		return appErrors.Clone(appErrors.ErrScopeMismatch, "ordering must cover exactly the live records of the parent")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fallback)
}
