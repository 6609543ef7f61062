package job

import (
	"context"
	"time"

	"go.uber.org/zap"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/metrics"
	"crm-pipeline-api/internal/storage"
)

// PipelineLister lists the pipelines of every company
type PipelineLister interface {
	FindAll(ctx context.Context) ([]domain.PipelineRecord, error)
}

// StatsJob refreshes the per entity type gauges from each company's store
type StatsJob struct {
	pipelines PipelineLister
	stores    storage.Factory
	metrics   *metrics.Metrics
	timeout   time.Duration
	logger    *zap.Logger
}

func NewStatsJob(pipelines PipelineLister, stores storage.Factory, m *metrics.Metrics, logger *zap.Logger) *StatsJob {
	return &StatsJob{
		pipelines: pipelines,
		stores:    stores,
		metrics:   m,
		timeout:   30 * time.Second,
		logger:    logger,
	}
}

// Run executes the stats job
func (j *StatsJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	totals, err := j.Collect(ctx)
	if err != nil {
		j.logger.Error("Failed to list pipelines for stats", zap.Error(err))
		return
	}
	for entityType, total := range totals {
		j.metrics.SetEntitiesTotal(entityType, total)
	}
	j.logger.Debug("Entity stats refreshed", zap.Int("entity_types", len(totals)))
}

// Collect sums entity counts per entity type across companies. A company
// whose store fails is logged and left out.
func (j *StatsJob) Collect(ctx context.Context) (map[string]int64, error) {
	records, err := j.pipelines.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int64)
	for _, p := range records {
		stats, err := j.stores(p.CompanyID).GetStats(ctx, p.EntityType)
		if err != nil {
			j.logger.Warn("Failed to collect entity stats",
				zap.String("company_id", p.CompanyID),
				zap.String("entity_type", p.EntityType),
				zap.Error(err),
			)
			continue
		}
		totals[p.EntityType] += int64(stats.Total)
	}
	return totals, nil
}
