// @title           CRM Pipeline API
// @version         1.0
// @description     Dynamic schema import and permission-aware pipeline data for multi-tenant CRM

// @host      localhost:8000
// @BasePath  /api/crm

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"crm-pipeline-api/internal/client"
	"crm-pipeline-api/internal/config"
	"crm-pipeline-api/internal/database"
	"crm-pipeline-api/internal/job"
	"crm-pipeline-api/internal/metrics"
	"crm-pipeline-api/internal/repository"
	"crm-pipeline-api/internal/router"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logger.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("Starting CRM Pipeline API",
		zap.String("port", cfg.Server.Port),
		zap.String("mode", cfg.Server.Mode),
		zap.String("base_path", cfg.Server.BasePath),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewWithLogger(logger)

	db, err := database.NewWithRetry(ctx, database.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.GetDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, 10, 5*time.Second, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)
	logger.Info("Database connected successfully")

	withEntities := cfg.Storage.Backend == config.BackendRelational
	if err := database.SafeAutoMigrateWithRetry(db, logger, withEntities, 3); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	if err := database.RegisterMetricsCallbacks(db, m); err != nil {
		logger.Warn("Failed to register database metrics callbacks", zap.Error(err))
	}
	dbStatsDone := database.StartDBStatsCollector(db, m, 15*time.Second)
	defer close(dbStatsDone)

	businessCollector := metrics.NewBusinessMetricsCollector(db, m, logger, time.Minute)
	businessCollector.Start()
	defer businessCollector.Stop()

	stores, closeStores, err := newStores(ctx, cfg, db, logger, m)
	if err != nil {
		logger.Fatal("Failed to initialize storage backend", zap.Error(err))
	}
	defer closeStores()

	var notificationClient client.NotificationClient = client.NewNoOpNotificationClient()
	if cfg.Notification.BaseURL != "" {
		notificationClient = client.NewNotificationClient(cfg.Notification.BaseURL, cfg.Notification.APIKey, cfg.Notification.Timeout, logger, m)
		logger.Info("Notification client initialized", zap.String("url", cfg.Notification.BaseURL))
	}

	var refinementClient client.RefinementClient = client.NewNoOpRefinementClient()
	if cfg.Refinement.BaseURL != "" {
		refinementClient = client.NewRefinementClient(cfg.Refinement.BaseURL, cfg.Refinement.APIKey, cfg.Refinement.Timeout, logger, m)
		logger.Info("Refinement client initialized", zap.String("url", cfg.Refinement.BaseURL))
	}

	scheduler := job.NewScheduler(logger)
	if cfg.Jobs.Enabled {
		statsJob := job.NewStatsJob(repository.NewPipelineRepository(db), stores, m, logger)
		if err := scheduler.Register("entity_stats", cfg.Jobs.StatsSchedule, statsJob); err != nil {
			logger.Fatal("Invalid stats schedule", zap.Error(err))
		}
		cleanupJob := job.NewCleanupJob(repository.NewSchemaRepository(db), logger)
		if err := scheduler.Register("orphan_row_cleanup", cfg.Jobs.CleanupSchedule, cleanupJob); err != nil {
			logger.Fatal("Invalid cleanup schedule", zap.Error(err))
		}
		scheduler.Start()
	}

	r := router.Setup(router.Config{
		DB:                 db,
		Logger:             logger,
		Metrics:            m,
		JWTSecret:          cfg.JWT.Secret,
		BasePath:           cfg.Server.BasePath,
		CORSOrigins:        cfg.Server.CORSOrigins,
		Backend:            cfg.Storage.Backend,
		Stores:             stores,
		StoreAPIKey:        cfg.Storage.ServeAPIKey,
		NotificationClient: notificationClient,
		RefinementClient:   refinementClient,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("CRM Pipeline API started successfully", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)

	logger.Info("Server exited gracefully")
}

// initLogger initializes the zap logger with the specified level
func initLogger(level string) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      zapLevel == zapcore.DebugLevel,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}
