package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crm-pipeline-api/internal/dto"
	"crm-pipeline-api/internal/response"
	"crm-pipeline-api/internal/service"
	"crm-pipeline-api/internal/storage"
)

type EntityHandler struct {
	entityService service.EntityService
	backend       string
	logger        *zap.Logger
}

func NewEntityHandler(entityService service.EntityService, backend string, logger *zap.Logger) *EntityHandler {
	return &EntityHandler{
		entityService: entityService,
		backend:       backend,
		logger:        logger,
	}
}

// Health godoc
// @Summary      Storage health
// @Description  Runs the storage backend's connection test for the caller's company
// @Tags         health
// @Produce      json
// @Success      200 {object} response.SuccessResponse{data=dto.HealthResponse}
// @Failure      503 {object} response.ErrorResponse
// @Router       /health [get]
func (h *EntityHandler) Health(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.entityService.Health(c.Request.Context(), user.CompanyID); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, dto.HealthResponse{Status: "ok", Backend: h.backend})
}

// ListEntities godoc
// @Summary      List pipeline entities
// @Description  Filters, sorts and pages the entities the caller can see
// @Tags         entities
// @Produce      json
// @Param        pipelineId path string true "Pipeline ID"
// @Param        search query string false "Case-insensitive substring over data values"
// @Param        stage query []string false "Stage filter (repeatable)"
// @Param        dateField query string false "createdAt or updatedAt"
// @Param        dateFrom query string false "Lower bound (RFC 3339 or YYYY-MM-DD)"
// @Param        dateTo query string false "Upper bound (RFC 3339 or YYYY-MM-DD)"
// @Param        sortBy query string false "createdAt, updatedAt, stage or a data field"
// @Param        sortOrder query string false "asc or desc"
// @Param        page query int false "Page (1-indexed)"
// @Param        limit query int false "Page size"
// @Success      200 {object} response.SuccessResponse{data=storage.Page}
// @Failure      400 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /pipelines/{pipelineId}/entities [get]
func (h *EntityHandler) ListEntities(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	filters, err := storage.DecodeFilters(c.Request.URL.Query())
	if err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, err.Error())
		return
	}

	page, err := h.entityService.List(c.Request.Context(), user, c.Param("pipelineId"), filters)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, page)
}

// GetEntity godoc
// @Summary      Get an entity
// @Tags         entities
// @Produce      json
// @Param        pipelineId path string true "Pipeline ID"
// @Param        id path string true "Entity ID"
// @Success      200 {object} response.SuccessResponse{data=domain.CRMEntity}
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /pipelines/{pipelineId}/entities/{id} [get]
func (h *EntityHandler) GetEntity(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	entity, err := h.entityService.Get(c.Request.Context(), user, c.Param("pipelineId"), c.Param("id"))
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, entity)
}

// CreateEntity godoc
// @Summary      Create an entity
// @Description  Stage defaults to the pipeline's first stage
// @Tags         entities
// @Accept       json
// @Produce      json
// @Param        pipelineId path string true "Pipeline ID"
// @Param        request body storage.EntityInput true "Stage and data"
// @Success      201 {object} response.SuccessResponse{data=domain.CRMEntity}
// @Failure      400 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Router       /pipelines/{pipelineId}/entities [post]
func (h *EntityHandler) CreateEntity(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var input storage.EntityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid request body")
		return
	}

	entity, err := h.entityService.Create(c.Request.Context(), user, c.Param("pipelineId"), input)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusCreated, entity)
}

// UpdateEntity godoc
// @Summary      Patch an entity
// @Description  Data keys merge into the stored data; null removes a key
// @Tags         entities
// @Accept       json
// @Produce      json
// @Param        pipelineId path string true "Pipeline ID"
// @Param        id path string true "Entity ID"
// @Param        request body storage.EntityPatch true "Patch"
// @Success      200 {object} response.SuccessResponse{data=domain.CRMEntity}
// @Failure      400 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /pipelines/{pipelineId}/entities/{id} [patch]
func (h *EntityHandler) UpdateEntity(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var patch storage.EntityPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid request body")
		return
	}

	entity, err := h.entityService.Update(c.Request.Context(), user, c.Param("pipelineId"), c.Param("id"), patch)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, entity)
}

// DeleteEntity godoc
// @Summary      Delete an entity
// @Tags         entities
// @Param        pipelineId path string true "Pipeline ID"
// @Param        id path string true "Entity ID"
// @Success      204
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /pipelines/{pipelineId}/entities/{id} [delete]
func (h *EntityHandler) DeleteEntity(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.entityService.Delete(c.Request.Context(), user, c.Param("pipelineId"), c.Param("id")); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MoveStage godoc
// @Summary      Move an entity to another stage
// @Tags         entities
// @Accept       json
// @Produce      json
// @Param        pipelineId path string true "Pipeline ID"
// @Param        id path string true "Entity ID"
// @Param        request body dto.MoveStageRequest true "Target stage"
// @Success      200 {object} response.SuccessResponse{data=domain.CRMEntity}
// @Failure      400 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /pipelines/{pipelineId}/entities/{id}/move [post]
func (h *EntityHandler) MoveStage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.MoveStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid request body")
		return
	}

	entity, err := h.entityService.MoveStage(c.Request.Context(), user, c.Param("pipelineId"), c.Param("id"), req.Stage)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, entity)
}

// GetByStage godoc
// @Summary      List the entities of one stage
// @Tags         entities
// @Produce      json
// @Param        pipelineId path string true "Pipeline ID"
// @Param        stage path string true "Stage ID"
// @Success      200 {object} response.SuccessResponse{data=[]domain.CRMEntity}
// @Failure      403 {object} response.ErrorResponse
// @Router       /pipelines/{pipelineId}/stages/{stage} [get]
func (h *EntityHandler) GetByStage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	entities, err := h.entityService.GetByStage(c.Request.Context(), user, c.Param("pipelineId"), c.Param("stage"))
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, entities)
}

// GetStats godoc
// @Summary      Entity counts per stage
// @Tags         entities
// @Produce      json
// @Param        pipelineId path string true "Pipeline ID"
// @Success      200 {object} response.SuccessResponse{data=storage.Stats}
// @Failure      403 {object} response.ErrorResponse
// @Router       /pipelines/{pipelineId}/stats [get]
func (h *EntityHandler) GetStats(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	stats, err := h.entityService.GetStats(c.Request.Context(), user, c.Param("pipelineId"))
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, stats)
}
