package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-adp-api/internal/service"
	appErrors "github.com/noah-isme/lms-adp-api/pkg/errors"
	"github.com/noah-isme/lms-adp-api/pkg/response"
)

// VideoHandler exposes video endpoints within modules.
type VideoHandler struct {
	videos  *service.VideoService
	metrics *service.MetricsService
}

// NewVideoHandler constructs VideoHandler.
func NewVideoHandler(videos *service.VideoService, metrics *service.MetricsService) *VideoHandler {
	return &VideoHandler{videos: videos, metrics: metrics}
}

// ListByModule godoc
// @Summary List a module's videos in position order
// @Tags Videos
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} response.Envelope
// @Router /modules/{id}/videos [get]
func (h *VideoHandler) ListByModule(c *gin.Context) {
	videos, err := h.videos.ListByModule(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, videos, nil)
}

// Get godoc
// @Summary Fetch one video
// @Tags Videos
// @Produce json
// @Param id path string true "Video ID"
// @Success 200 {object} response.Envelope
// @Router /videos/{id} [get]
func (h *VideoHandler) Get(c *gin.Context) {
	video, err := h.videos.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, video, nil)
}

// Create godoc
// @Summary Create a video, optionally at an explicit position
// @Tags Videos
// @Accept json
// @Produce json
// @Param payload body service.CreateVideoRequest true "Video payload"
// @Success 201 {object} response.Envelope
// @Router /videos [post]
func (h *VideoHandler) Create(c *gin.Context) {
	var req service.CreateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	video, err := h.videos.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordOrderingOperation("video", "insert")
	response.Created(c, video)
}

// Update godoc
// @Summary Update video attributes
// @Tags Videos
// @Accept json
// @Produce json
// @Param id path string true "Video ID"
// @Param payload body service.UpdateVideoRequest true "Video payload"
// @Success 200 {object} response.Envelope
// @Router /videos/{id} [put]
func (h *VideoHandler) Update(c *gin.Context) {
	var req service.UpdateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	video, err := h.videos.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, video, nil)
}

// Move godoc
// @Summary Move a video to a new position within its module
// @Tags Videos
// @Accept json
// @Produce json
// @Param id path string true "Video ID"
// @Param payload body MoveRequest true "Target position"
// @Success 200 {object} response.Envelope
// @Router /videos/{id}/position [put]
func (h *VideoHandler) Move(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	video, err := h.videos.Move(c.Request.Context(), c.Param("id"), req.Position)
	if err != nil {
		h.recordConflict(err)
		response.Error(c, err)
		return
	}
	h.metrics.RecordOrderingOperation("video", "move")
	response.JSON(c, http.StatusOK, video, nil)
}

// Delete godoc
// @Summary Delete a video and compact sibling positions
// @Tags Videos
// @Produce json
// @Param id path string true "Video ID"
// @Success 204
// @Router /videos/{id} [delete]
func (h *VideoHandler) Delete(c *gin.Context) {
	if err := h.videos.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.recordConflict(err)
		response.Error(c, err)
		return
	}
	h.metrics.RecordOrderingOperation("video", "remove")
	response.NoContent(c)
}

// Reorder godoc
// @Summary Apply a complete new video ordering for a module
// @Tags Videos
// @Accept json
// @Produce json
// @Param id path string true "Module ID"
// @Param payload body service.ReorderVideosRequest true "Ordered video ids"
// @Success 200 {object} response.Envelope
// @Router /modules/{id}/videos/reorder [put]
func (h *VideoHandler) Reorder(c *gin.Context) {
	var req service.ReorderVideosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	videos, err := h.videos.Reorder(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.recordConflict(err)
		response.Error(c, err)
		return
	}
	h.metrics.RecordOrderingOperation("video", "reorder")
	response.JSON(c, http.StatusOK, videos, nil)
}

// BulkPublish godoc
// @Summary Toggle publication for a set of a module's videos
// @Tags Videos
// @Accept json
// @Produce json
// @Param id path string true "Module ID"
// @Param payload body service.BulkPublishRequest true "Video ids and target state"
// @Success 200 {object} response.Envelope
// @Router /modules/{id}/videos/publish [put]
func (h *VideoHandler) BulkPublish(c *gin.Context) {
	var req service.BulkPublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	affected, err := h.videos.BulkPublish(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": affected}, nil)
}

func (h *VideoHandler) recordConflict(err error) {
	if appErrors.FromError(err).Code == appErrors.ErrConflict.Code {
		h.metrics.RecordOrderingConflict()
	}
}
