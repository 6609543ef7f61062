package job

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// OrphanCleaner removes imported rows whose file record no longer exists
type OrphanCleaner interface {
	DeleteOrphanRows(ctx context.Context) (int64, error)
}

// CleanupJob handles cleanup of imported rows left behind by deleted files
type CleanupJob struct {
	cleaner OrphanCleaner
	timeout time.Duration
	logger  *zap.Logger
}

// NewCleanupJob creates a new CleanupJob instance
func NewCleanupJob(cleaner OrphanCleaner, logger *zap.Logger) *CleanupJob {
	return &CleanupJob{
		cleaner: cleaner,
		timeout: 5 * time.Minute,
		logger:  logger,
	}
}

// Run executes the cleanup job
func (j *CleanupJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	j.logger.Info("Starting cleanup job for orphaned imported rows")

	deleted, err := j.cleaner.DeleteOrphanRows(ctx)
	if err != nil {
		j.logger.Error("Failed to delete orphaned imported rows", zap.Error(err))
		return
	}

	if deleted == 0 {
		j.logger.Info("No orphaned imported rows found")
		return
	}

	j.logger.Info("Cleanup job completed", zap.Int64("deleted", deleted))
}
