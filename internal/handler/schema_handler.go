package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"crm-pipeline-api/internal/dto"
	"crm-pipeline-api/internal/response"
	"crm-pipeline-api/internal/schema"
	"crm-pipeline-api/internal/service"
)

type SchemaHandler struct {
	schemaService service.SchemaService
	logger        *zap.Logger
}

func NewSchemaHandler(schemaService service.SchemaService, logger *zap.Logger) *SchemaHandler {
	return &SchemaHandler{schemaService: schemaService, logger: logger}
}

// ListSchemas godoc
// @Summary      List imported schemas and files
// @Tags         schemas
// @Produce      json
// @Success      200 {object} response.SuccessResponse{data=dto.SchemaListResponse}
// @Router       /schemas [get]
func (h *SchemaHandler) ListSchemas(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	schemas, err := h.schemaService.ListSchemas(c.Request.Context(), user)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	files, err := h.schemaService.ListFiles(c.Request.Context(), user)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, dto.SchemaListResponse{Schemas: schemas, Files: files})
}

// ImportFile godoc
// @Summary      Import a parsed file
// @Description  Infers the table schema and re-resolves foreign keys across the company's tables
// @Tags         schemas
// @Accept       json
// @Produce      json
// @Param        request body dto.ImportSchemaRequest true "File name and rows (header first)"
// @Success      201 {object} response.SuccessResponse{data=service.ImportResult}
// @Failure      400 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Router       /schemas/import [post]
func (h *SchemaHandler) ImportFile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.ImportSchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid request body")
		return
	}

	result, err := h.schemaService.ImportFile(c.Request.Context(), user, req.FileName, req.Rows,
		schema.BuildOptions{InferFromRows: req.InferFromRows})
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusCreated, result)
}

// Refine godoc
// @Summary      Refine schemas with the external model
// @Tags         schemas
// @Produce      json
// @Success      200 {object} response.SuccessResponse{data=[]domain.TableSchema}
// @Failure      400 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Router       /schemas/refine [post]
func (h *SchemaHandler) Refine(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	schemas, err := h.schemaService.Refine(c.Request.Context(), user)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, schemas)
}

// DeleteFile godoc
// @Summary      Delete an imported file with its schema and rows
// @Tags         schemas
// @Param        fileId path string true "File ID (UUID)"
// @Success      204
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /schemas/files/{fileId} [delete]
func (h *SchemaHandler) DeleteFile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	fileID, err := uuid.Parse(c.Param("fileId"))
	if err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid file ID")
		return
	}

	if err := h.schemaService.DeleteFile(c.Request.Context(), user, fileID); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
