package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"crm-pipeline-api/internal/domain"
)

type modelInfo struct {
	model     interface{}
	tableName string
}

// Models lists the tables this service owns. Entity records only live in the
// database when the relational storage backend is selected.
func Models(withEntities bool) []modelInfo {
	models := []modelInfo{
		{&domain.PipelineRecord{}, "pipeline_records"},
		{&domain.RoleRecord{}, "role_records"},
		{&domain.UploadedFile{}, "uploaded_files"},
		{&domain.SchemaRecord{}, "schema_records"},
		{&domain.ImportedRow{}, "imported_rows"},
	}
	if withEntities {
		models = append(models, modelInfo{&domain.EntityRecord{}, "entity_records"})
	}
	return models
}

// SafeAutoMigrate migrates each model in turn, logging whether the table was
// created or updated
func SafeAutoMigrate(db *gorm.DB, logger *zap.Logger, withEntities bool) error {
	migrator := db.Migrator()
	models := Models(withEntities)

	logger.Info("Starting auto-migration", zap.Int("total_models", len(models)))

	for _, m := range models {
		existed := migrator.HasTable(m.model)

		if err := db.AutoMigrate(m.model); err != nil {
			logger.Error("Failed to migrate table",
				zap.String("table", m.tableName),
				zap.Bool("table_existed", existed),
				zap.Error(err),
			)
			return fmt.Errorf("failed to migrate table %s: %w", m.tableName, err)
		}

		logger.Info("Migrated table",
			zap.String("table", m.tableName),
			zap.Bool("was_existing", existed),
		)
	}

	return nil
}

// SafeAutoMigrateWithRetry runs SafeAutoMigrate with linear backoff
func SafeAutoMigrateWithRetry(db *gorm.DB, logger *zap.Logger, withEntities bool, maxRetries int) error {
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = SafeAutoMigrate(db, logger, withEntities)
		if err == nil {
			return nil
		}
		if attempt < maxRetries {
			backoff := time.Duration(attempt) * time.Second
			logger.Warn("Migration attempt failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxRetries),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			time.Sleep(backoff)
		}
	}
	return fmt.Errorf("migration failed after %d attempts: %w", maxRetries, err)
}
