package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"crm-pipeline-api/internal/config"
	"crm-pipeline-api/internal/database"
	"crm-pipeline-api/internal/metrics"
	"crm-pipeline-api/internal/storage"
	"crm-pipeline-api/internal/storage/kv"
)

// newStores builds the entity storage backend named in cfg. The returned
// func releases whatever the backend holds open.
func newStores(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *zap.Logger, m *metrics.Metrics) (storage.Factory, func(), error) {
	noop := func() {}

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		logger.Warn("Using in-memory entity store, data is lost on restart")
		return storage.EmbeddedFactory(kv.NewMemoryStore(), logger, m), noop, nil

	case config.BackendRedis:
		client, err := database.NewRedisClient(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store := kv.NewRedisStore(client, cfg.Redis.Prefix)
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close redis client", zap.Error(err))
			}
		}
		return storage.EmbeddedFactory(store, logger, m), closeFn, nil

	case config.BackendRemote:
		logger.Info("Using remote entity store", zap.String("url", cfg.RemoteStore.BaseURL))
		return storage.RemoteFactory(storage.RemoteConfig{
			BaseURL: cfg.RemoteStore.BaseURL,
			APIKey:  cfg.RemoteStore.APIKey,
			Timeout: cfg.RemoteStore.Timeout,
		}, logger, m), noop, nil

	case config.BackendRelational:
		return storage.RelationalFactory(db, logger, m), noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
