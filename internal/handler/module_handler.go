package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-adp-api/internal/service"
	appErrors "github.com/noah-isme/lms-adp-api/pkg/errors"
	"github.com/noah-isme/lms-adp-api/pkg/response"
)

// ModuleHandler exposes module endpoints, including the ordered-set
// mutations over a course's module list.
type ModuleHandler struct {
	modules *service.ModuleService
	metrics *service.MetricsService
}

// NewModuleHandler constructs ModuleHandler.
func NewModuleHandler(modules *service.ModuleService, metrics *service.MetricsService) *ModuleHandler {
	return &ModuleHandler{modules: modules, metrics: metrics}
}

// ListByCourse godoc
// @Summary List a course's modules in position order
// @Tags Modules
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/modules [get]
func (h *ModuleHandler) ListByCourse(c *gin.Context) {
	modules, err := h.modules.ListByCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, modules, nil)
}

// Get godoc
// @Summary Fetch one module
// @Tags Modules
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} response.Envelope
// @Router /modules/{id} [get]
func (h *ModuleHandler) Get(c *gin.Context) {
	module, err := h.modules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, module, nil)
}

// Create godoc
// @Summary Create a module, optionally at an explicit position
// @Tags Modules
// @Accept json
// @Produce json
// @Param payload body service.CreateModuleRequest true "Module payload"
// @Success 201 {object} response.Envelope
// @Router /modules [post]
func (h *ModuleHandler) Create(c *gin.Context) {
	var req service.CreateModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	module, err := h.modules.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordOrderingOperation("module", "insert")
	response.Created(c, module)
}

// Update godoc
// @Summary Update module attributes
// @Tags Modules
// @Accept json
// @Produce json
// @Param id path string true "Module ID"
// @Param payload body service.UpdateModuleRequest true "Module payload"
// @Success 200 {object} response.Envelope
// @Router /modules/{id} [put]
func (h *ModuleHandler) Update(c *gin.Context) {
	var req service.UpdateModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	module, err := h.modules.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, module, nil)
}

// MoveRequest carries the target position for a move.
type MoveRequest struct {
	Position int `json:"position" binding:"required"`
}

// Move godoc
// @Summary Move a module to a new position within its course
// @Tags Modules
// @Accept json
// @Produce json
// @Param id path string true "Module ID"
// @Param payload body MoveRequest true "Target position"
// @Success 200 {object} response.Envelope
// @Router /modules/{id}/position [put]
func (h *ModuleHandler) Move(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	module, err := h.modules.Move(c.Request.Context(), c.Param("id"), req.Position)
	if err != nil {
		h.recordConflict(err)
		response.Error(c, err)
		return
	}
	h.metrics.RecordOrderingOperation("module", "move")
	response.JSON(c, http.StatusOK, module, nil)
}

// Delete godoc
// @Summary Delete a module and compact sibling positions
// @Tags Modules
// @Produce json
// @Param id path string true "Module ID"
// @Success 204
// @Router /modules/{id} [delete]
func (h *ModuleHandler) Delete(c *gin.Context) {
	if err := h.modules.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.recordConflict(err)
		response.Error(c, err)
		return
	}
	h.metrics.RecordOrderingOperation("module", "remove")
	response.NoContent(c)
}

// Reorder godoc
// @Summary Apply a complete new module ordering for a course
// @Tags Modules
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.ReorderModulesRequest true "Ordered module ids"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/modules/reorder [put]
func (h *ModuleHandler) Reorder(c *gin.Context) {
	var req service.ReorderModulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	modules, err := h.modules.Reorder(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.recordConflict(err)
		response.Error(c, err)
		return
	}
	h.metrics.RecordOrderingOperation("module", "reorder")
	response.JSON(c, http.StatusOK, modules, nil)
}

func (h *ModuleHandler) recordConflict(err error) {
	if appErrors.FromError(err).Code == appErrors.ErrConflict.Code {
		h.metrics.RecordOrderingConflict()
	}
}
