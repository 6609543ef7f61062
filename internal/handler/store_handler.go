package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crm-pipeline-api/internal/response"
	"crm-pipeline-api/internal/storage"
)

// StoreHandler serves the remote store protocol over a local adapter, so
// another deployment can use this one through storage.RemoteAdapter
type StoreHandler struct {
	factory storage.Factory
	apiKey  string
	logger  *zap.Logger
}

func NewStoreHandler(factory storage.Factory, apiKey string, logger *zap.Logger) *StoreHandler {
	return &StoreHandler{factory: factory, apiKey: apiKey, logger: logger}
}

// RequireAPIKey rejects requests without the shared internal key
func (h *StoreHandler) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(storage.HeaderAPIKey)
		if h.apiKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
			response.SendError(c, http.StatusUnauthorized, response.ErrCodeUnauthorized, "Invalid internal API key")
			return
		}
		c.Next()
	}
}

func (h *StoreHandler) adapter(c *gin.Context) (storage.Adapter, bool) {
	companyID := c.GetHeader(storage.HeaderCompanyID)
	if companyID == "" {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "X-Company-ID header is required")
		return nil, false
	}
	return h.factory(companyID), true
}

func (h *StoreHandler) handleStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrEntityNotFound):
		response.SendError(c, http.StatusNotFound, response.ErrCodeNotFound, "Entity not found")
	case errors.Is(err, storage.ErrInvalidInput):
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid request")
	case storage.IsTransport(err):
		h.logger.Error("Store backend unavailable", zap.Error(err))
		response.SendError(c, http.StatusServiceUnavailable, response.ErrCodeTransport, "Store backend unavailable")
	default:
		h.logger.Error("Store operation failed", zap.Error(err))
		response.SendError(c, http.StatusInternalServerError, response.ErrCodeInternal, "Internal server error")
	}
}

// Health godoc
// @Summary      Store health
// @Tags         store
// @Success      200 {object} response.SuccessResponse
// @Failure      503 {object} response.ErrorResponse
// @Router       /store/_health [get]
func (h *StoreHandler) Health(c *gin.Context) {
	a, ok := h.adapter(c)
	if !ok {
		return
	}
	if err := a.TestConnection(c.Request.Context()); err != nil {
		h.handleStoreError(c, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, gin.H{"status": "ok"})
}

// List godoc
// @Summary      List entities
// @Tags         store
// @Param        entityType path string true "Entity type"
// @Param        page query int false "Page (1-indexed)"
// @Param        limit query int false "Page size"
// @Param        search query string false "Substring over data values"
// @Param        stage query []string false "Stage filter (repeatable)"
// @Success      200 {object} response.SuccessResponse{data=storage.Page}
// @Router       /store/{entityType} [get]
func (h *StoreHandler) List(c *gin.Context) {
	a, ok := h.adapter(c)
	if !ok {
		return
	}
	filters, err := storage.DecodeFilters(c.Request.URL.Query())
	if err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, err.Error())
		return
	}
	page, err := a.GetAll(c.Request.Context(), c.Param("entityType"), filters)
	if err != nil {
		h.handleStoreError(c, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, page)
}

func (h *StoreHandler) Get(c *gin.Context) {
	a, ok := h.adapter(c)
	if !ok {
		return
	}
	entity, err := a.GetByID(c.Request.Context(), c.Param("entityType"), c.Param("id"))
	if err != nil {
		h.handleStoreError(c, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, entity)
}

func (h *StoreHandler) Create(c *gin.Context) {
	a, ok := h.adapter(c)
	if !ok {
		return
	}
	var input storage.EntityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid request body")
		return
	}
	entity, err := a.Create(c.Request.Context(), c.Param("entityType"), input)
	if err != nil {
		h.handleStoreError(c, err)
		return
	}
	response.SendSuccess(c, http.StatusCreated, entity)
}

func (h *StoreHandler) Update(c *gin.Context) {
	a, ok := h.adapter(c)
	if !ok {
		return
	}
	var patch storage.EntityPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid request body")
		return
	}
	entity, err := a.Update(c.Request.Context(), c.Param("entityType"), c.Param("id"), patch)
	if err != nil {
		h.handleStoreError(c, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, entity)
}

func (h *StoreHandler) Delete(c *gin.Context) {
	a, ok := h.adapter(c)
	if !ok {
		return
	}
	if err := a.Delete(c.Request.Context(), c.Param("entityType"), c.Param("id")); err != nil {
		h.handleStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StoreHandler) ByStage(c *gin.Context) {
	a, ok := h.adapter(c)
	if !ok {
		return
	}
	entities, err := a.GetByStage(c.Request.Context(), c.Param("entityType"), c.Param("stage"))
	if err != nil {
		h.handleStoreError(c, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, entities)
}

func (h *StoreHandler) Stats(c *gin.Context) {
	a, ok := h.adapter(c)
	if !ok {
		return
	}
	stats, err := a.GetStats(c.Request.Context(), c.Param("entityType"))
	if err != nil {
		h.handleStoreError(c, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, stats)
}

// RegisterRoutes mounts the protocol under group, which must map to /store
func (h *StoreHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.Use(h.RequireAPIKey())
	group.GET(storage.StoreHealthPath, h.Health)
	group.GET("/:entityType", h.List)
	group.POST("/:entityType", h.Create)
	group.GET("/:entityType/stats", h.Stats)
	group.GET("/:entityType/stages/:stage", h.ByStage)
	group.GET("/:entityType/:id", h.Get)
	group.PATCH("/:entityType/:id", h.Update)
	group.DELETE("/:entityType/:id", h.Delete)
}
