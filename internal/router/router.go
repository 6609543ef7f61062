package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"crm-pipeline-api/internal/client"
	"crm-pipeline-api/internal/handler"
	"crm-pipeline-api/internal/metrics"
	"crm-pipeline-api/internal/middleware"
	"crm-pipeline-api/internal/repository"
	"crm-pipeline-api/internal/service"
	"crm-pipeline-api/internal/storage"
)

const defaultBasePath = "/api/crm"

// Config holds router configuration
type Config struct {
	DB          *gorm.DB
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	JWTSecret   string
	BasePath    string
	CORSOrigins []string

	// Backend names the storage backend Stores was built for
	Backend string
	Stores  storage.Factory
	// StoreAPIKey enables the remote store endpoints when set
	StoreAPIKey string

	NotificationClient client.NotificationClient
	RefinementClient   client.RefinementClient
}

// Setup sets up the router with all routes
func Setup(cfg Config) *gin.Engine {
	if cfg.BasePath == "" {
		cfg.BasePath = defaultBasePath
	}
	if cfg.NotificationClient == nil {
		cfg.NotificationClient = client.NewNoOpNotificationClient()
	}
	if cfg.RefinementClient == nil {
		cfg.RefinementClient = client.NewNoOpRefinementClient()
	}

	r := gin.New()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.Metrics(cfg.Metrics))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "crm-pipeline-api"})
	})
	r.GET("/ready", func(c *gin.Context) {
		sqlDB, err := cfg.DB.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "service": "crm-pipeline-api"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "service": "crm-pipeline-api"})
	})

	pipelineRepo := repository.NewPipelineRepository(cfg.DB)
	roleRepo := repository.NewRoleRepository(cfg.DB)
	schemaRepo := repository.NewSchemaRepository(cfg.DB)

	entityService := service.NewEntityService(cfg.Stores, pipelineRepo, roleRepo, cfg.NotificationClient, cfg.Metrics, cfg.Logger)
	pipelineService := service.NewPipelineService(pipelineRepo, roleRepo, cfg.Stores, cfg.Metrics, cfg.Logger)
	roleService := service.NewRoleService(roleRepo, cfg.Metrics, cfg.Logger)
	schemaService := service.NewSchemaService(schemaRepo, roleRepo, cfg.RefinementClient, cfg.Metrics, cfg.Logger)

	entityHandler := handler.NewEntityHandler(entityService, cfg.Backend, cfg.Logger)
	pipelineHandler := handler.NewPipelineHandler(pipelineService, cfg.Logger)
	roleHandler := handler.NewRoleHandler(roleService, cfg.Logger)
	schemaHandler := handler.NewSchemaHandler(schemaService, cfg.Logger)

	api := r.Group(cfg.BasePath)

	authed := api.Group("")
	authed.Use(middleware.Auth(cfg.JWTSecret))
	{
		authed.GET("/health", entityHandler.Health)

		pipelines := authed.Group("/pipelines")
		{
			pipelines.GET("", pipelineHandler.ListPipelines)
			pipelines.POST("", pipelineHandler.CreatePipeline)
			pipelines.GET("/:pipelineId", pipelineHandler.GetPipeline)
			pipelines.PUT("/:pipelineId", pipelineHandler.UpdatePipeline)
			pipelines.DELETE("/:pipelineId", pipelineHandler.DeletePipeline)

			pipelines.GET("/:pipelineId/entities", entityHandler.ListEntities)
			pipelines.POST("/:pipelineId/entities", entityHandler.CreateEntity)
			pipelines.GET("/:pipelineId/entities/:id", entityHandler.GetEntity)
			pipelines.PATCH("/:pipelineId/entities/:id", entityHandler.UpdateEntity)
			pipelines.DELETE("/:pipelineId/entities/:id", entityHandler.DeleteEntity)
			pipelines.POST("/:pipelineId/entities/:id/move", entityHandler.MoveStage)
			pipelines.GET("/:pipelineId/stages/:stage", entityHandler.GetByStage)
			pipelines.GET("/:pipelineId/stats", entityHandler.GetStats)
		}

		schemas := authed.Group("/schemas")
		{
			schemas.GET("", schemaHandler.ListSchemas)
			schemas.POST("/import", schemaHandler.ImportFile)
			schemas.POST("/refine", schemaHandler.Refine)
			schemas.DELETE("/files/:fileId", schemaHandler.DeleteFile)
		}

		roles := authed.Group("/roles")
		{
			roles.GET("", roleHandler.ListRoles)
			roles.POST("", roleHandler.CreateRole)
			roles.PUT("/:roleId", roleHandler.UpdateRole)
			roles.DELETE("/:roleId", roleHandler.DeleteRole)
		}
	}

	if cfg.StoreAPIKey != "" {
		handler.NewStoreHandler(cfg.Stores, cfg.StoreAPIKey, cfg.Logger).RegisterRoutes(api.Group("/store"))
	}

	return r
}
