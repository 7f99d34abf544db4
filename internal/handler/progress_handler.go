package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-adp-api/internal/models"
	"github.com/noah-isme/lms-adp-api/internal/service"
	appErrors "github.com/noah-isme/lms-adp-api/pkg/errors"
	"github.com/noah-isme/lms-adp-api/pkg/response"
)

// ProgressHandler exposes watch-state and completion endpoints.
type ProgressHandler struct {
	progress *service.ProgressService
	metrics  *service.MetricsService
}

// NewProgressHandler constructs ProgressHandler.
func NewProgressHandler(progress *service.ProgressService, metrics *service.MetricsService) *ProgressHandler {
	return &ProgressHandler{progress: progress, metrics: metrics}
}

// RecordWatch godoc
// @Summary Report watch state for a video
// @Tags Progress
// @Accept json
// @Produce json
// @Param payload body service.WatchEventRequest true "Watch event"
// @Success 200 {object} response.Envelope
// @Router /progress/watch [post]
func (h *ProgressHandler) RecordWatch(c *gin.Context) {
	var req service.WatchEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	record, err := h.progress.RecordVideoWatch(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordWatchEvent()
	response.JSON(c, http.StatusOK, record, nil)
}

// GetVideoProgress godoc
// @Summary Fetch the current user's watch state for a video
// @Tags Progress
// @Produce json
// @Param id path string true "Video ID"
// @Success 200 {object} response.Envelope
// @Router /videos/{id}/progress [get]
func (h *ProgressHandler) GetVideoProgress(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	record, err := h.progress.GetVideoProgress(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// ListModuleProgress godoc
// @Summary List the current user's watch records for a module
// @Tags Progress
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} response.Envelope
// @Router /modules/{id}/progress [get]
func (h *ProgressHandler) ListModuleProgress(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	records, err := h.progress.ListModuleProgress(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// GetCourseCompletion godoc
// @Summary Compute the current user's completion for a course
// @Tags Progress
// @Produce json
// @Param id path string true "Course ID"
// @Param studentId query string false "Student ID (instructors and admins only)"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/completion [get]
func (h *ProgressHandler) GetCourseCompletion(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	studentID := claims.UserID
	if requested := c.Query("studentId"); requested != "" && requested != claims.UserID {
		if claims.Role == models.RoleStudent {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
		studentID = requested
	}
	completion, err := h.progress.ComputeCourseCompletion(c.Request.Context(), c.Param("id"), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, completion, nil)
}
