package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/response"
	"crm-pipeline-api/internal/service"
)

type PipelineHandler struct {
	pipelineService service.PipelineService
	logger          *zap.Logger
}

func NewPipelineHandler(pipelineService service.PipelineService, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{pipelineService: pipelineService, logger: logger}
}

// ListPipelines godoc
// @Summary      List pipelines
// @Description  Only pipelines the caller can access, with hidden fields removed
// @Tags         pipelines
// @Produce      json
// @Success      200 {object} response.SuccessResponse{data=[]domain.PipelineConfig}
// @Router       /pipelines [get]
func (h *PipelineHandler) ListPipelines(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	pipelines, err := h.pipelineService.ListPipelines(c.Request.Context(), user)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, pipelines)
}

// CreatePipeline godoc
// @Summary      Create a pipeline
// @Tags         pipelines
// @Accept       json
// @Produce      json
// @Param        request body domain.PipelineConfig true "Pipeline configuration"
// @Success      201 {object} response.SuccessResponse{data=domain.PipelineConfig}
// @Failure      400 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Router       /pipelines [post]
func (h *PipelineHandler) CreatePipeline(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var cfg domain.PipelineConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid request body")
		return
	}

	created, err := h.pipelineService.CreatePipeline(c.Request.Context(), user, cfg)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusCreated, created)
}

// GetPipeline godoc
// @Summary      Get a pipeline
// @Tags         pipelines
// @Produce      json
// @Param        pipelineId path string true "Pipeline ID"
// @Success      200 {object} response.SuccessResponse{data=domain.PipelineConfig}
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /pipelines/{pipelineId} [get]
func (h *PipelineHandler) GetPipeline(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	cfg, err := h.pipelineService.GetPipeline(c.Request.Context(), user, c.Param("pipelineId"))
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, cfg)
}

// UpdatePipeline godoc
// @Summary      Replace a pipeline's configuration
// @Description  The entity type cannot change
// @Tags         pipelines
// @Accept       json
// @Produce      json
// @Param        pipelineId path string true "Pipeline ID"
// @Param        request body domain.PipelineConfig true "Pipeline configuration"
// @Success      200 {object} response.SuccessResponse{data=domain.PipelineConfig}
// @Failure      400 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /pipelines/{pipelineId} [put]
func (h *PipelineHandler) UpdatePipeline(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var cfg domain.PipelineConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid request body")
		return
	}

	updated, err := h.pipelineService.UpdatePipeline(c.Request.Context(), user, c.Param("pipelineId"), cfg)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, updated)
}

// DeletePipeline godoc
// @Summary      Delete a pipeline
// @Description  Refused while entities of its type exist
// @Tags         pipelines
// @Param        pipelineId path string true "Pipeline ID"
// @Success      204
// @Failure      400 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /pipelines/{pipelineId} [delete]
func (h *PipelineHandler) DeletePipeline(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.pipelineService.DeletePipeline(c.Request.Context(), user, c.Param("pipelineId")); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
