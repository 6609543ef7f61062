package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/response"
	"crm-pipeline-api/internal/service"
)

type RoleHandler struct {
	roleService service.RoleService
	logger      *zap.Logger
}

func NewRoleHandler(roleService service.RoleService, logger *zap.Logger) *RoleHandler {
	return &RoleHandler{roleService: roleService, logger: logger}
}

// ListRoles godoc
// @Summary      List custom roles
// @Tags         roles
// @Produce      json
// @Success      200 {object} response.SuccessResponse{data=[]domain.RoleDefinition}
// @Failure      403 {object} response.ErrorResponse
// @Router       /roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	roles, err := h.roleService.ListRoles(c.Request.Context(), user)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, roles)
}

// CreateRole godoc
// @Summary      Create a custom role
// @Tags         roles
// @Accept       json
// @Produce      json
// @Param        request body domain.RoleDefinition true "Role"
// @Success      201 {object} response.SuccessResponse{data=domain.RoleDefinition}
// @Failure      400 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Router       /roles [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var role domain.RoleDefinition
	if err := c.ShouldBindJSON(&role); err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid request body")
		return
	}

	created, err := h.roleService.CreateRole(c.Request.Context(), user, role)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusCreated, created)
}

// UpdateRole godoc
// @Summary      Replace a custom role
// @Tags         roles
// @Accept       json
// @Produce      json
// @Param        roleId path string true "Role ID"
// @Param        request body domain.RoleDefinition true "Role"
// @Success      200 {object} response.SuccessResponse{data=domain.RoleDefinition}
// @Failure      400 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /roles/{roleId} [put]
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var role domain.RoleDefinition
	if err := c.ShouldBindJSON(&role); err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid request body")
		return
	}

	updated, err := h.roleService.UpdateRole(c.Request.Context(), user, c.Param("roleId"), role)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, updated)
}

// DeleteRole godoc
// @Summary      Delete a custom role
// @Description  Users still pointing at it fall back to their built-in role
// @Tags         roles
// @Param        roleId path string true "Role ID"
// @Success      204
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /roles/{roleId} [delete]
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.roleService.DeleteRole(c.Request.Context(), user, c.Param("roleId")); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
