package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/metrics"
	"crm-pipeline-api/internal/permission"
	"crm-pipeline-api/internal/pipeline"
	"crm-pipeline-api/internal/repository"
	"crm-pipeline-api/internal/response"
	"crm-pipeline-api/internal/storage"
)

// PipelineService defines the interface for pipeline configuration management
type PipelineService interface {
	CreatePipeline(ctx context.Context, user domain.User, cfg domain.PipelineConfig) (*domain.PipelineConfig, error)
	GetPipeline(ctx context.Context, user domain.User, pipelineID string) (*domain.PipelineConfig, error)
	ListPipelines(ctx context.Context, user domain.User) ([]domain.PipelineConfig, error)
	UpdatePipeline(ctx context.Context, user domain.User, pipelineID string, cfg domain.PipelineConfig) (*domain.PipelineConfig, error)
	DeletePipeline(ctx context.Context, user domain.User, pipelineID string) error
}

type pipelineServiceImpl struct {
	access       accessLoader
	pipelineRepo repository.PipelineRepository
	stores       storage.Factory
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewPipelineService creates a new instance of PipelineService
func NewPipelineService(
	pipelineRepo repository.PipelineRepository,
	roleRepo repository.RoleRepository,
	stores storage.Factory,
	m *metrics.Metrics,
	logger *zap.Logger,
) PipelineService {
	return &pipelineServiceImpl{
		access: accessLoader{
			pipelineRepo: pipelineRepo,
			roleRepo:     roleRepo,
			metrics:      m,
			logger:       logger,
		},
		pipelineRepo: pipelineRepo,
		stores:       stores,
		metrics:      m,
		logger:       logger,
	}
}

func (s *pipelineServiceImpl) requireManager(ctx context.Context, user domain.User) error {
	eval, err := s.access.evaluator(ctx, user)
	if err != nil {
		return err
	}
	if !eval.HasCapability(permission.CapManagePipelines) {
		return s.access.deny(user, "manage_pipelines", "company:"+user.CompanyID)
	}
	return nil
}

// CreatePipeline validates and stores a new pipeline. Entity types are unique
// per company.
func (s *pipelineServiceImpl) CreatePipeline(ctx context.Context, user domain.User, cfg domain.PipelineConfig) (*domain.PipelineConfig, error) {
	if err := s.requireManager(ctx, user); err != nil {
		return nil, err
	}

	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	cfg.CompanyID = user.CompanyID
	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	if err := pipeline.Validate(cfg); err != nil {
		return nil, err
	}

	if _, err := s.pipelineRepo.FindByEntityType(ctx, user.CompanyID, cfg.EntityType); err == nil {
		return nil, response.NewAppError(response.ErrCodeAlreadyExists, "A pipeline for this entity type already exists", "")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to check entity type", err.Error())
	}
	if _, err := s.pipelineRepo.FindByID(ctx, user.CompanyID, cfg.ID); err == nil {
		return nil, response.NewAppError(response.ErrCodeAlreadyExists, "A pipeline with this id already exists", "")
	}

	rec, err := pipelineToRecord(cfg)
	if err != nil {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to encode pipeline", err.Error())
	}
	if err := s.pipelineRepo.Create(ctx, rec); err != nil {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to create pipeline", err.Error())
	}

	s.logger.Info("Pipeline created",
		zap.String("company_id", cfg.CompanyID),
		zap.String("pipeline_id", cfg.ID),
		zap.String("entity_type", cfg.EntityType),
		zap.Int("stage_count", len(cfg.Stages)),
		zap.Int("field_count", len(cfg.Fields)),
	)
	return &cfg, nil
}

// GetPipeline returns the pipeline as the user may see it: financial field
// definitions are hidden from users who cannot view financial data.
func (s *pipelineServiceImpl) GetPipeline(ctx context.Context, user domain.User, pipelineID string) (*domain.PipelineConfig, error) {
	cfg, err := s.access.loadPipeline(ctx, user.CompanyID, pipelineID)
	if err != nil {
		return nil, err
	}
	eval, err := s.access.evaluator(ctx, user)
	if err != nil {
		return nil, err
	}
	if !eval.CanAccessPipeline(cfg.ID) {
		return nil, s.access.deny(user, "view", "pipeline:"+cfg.ID)
	}
	cfg.Fields = eval.FilterFields(pipeline.SortedFields(cfg))
	cfg.Stages = pipeline.SortedStages(cfg)
	return &cfg, nil
}

// ListPipelines lists the pipelines the user can access
func (s *pipelineServiceImpl) ListPipelines(ctx context.Context, user domain.User) ([]domain.PipelineConfig, error) {
	records, err := s.pipelineRepo.FindByCompany(ctx, user.CompanyID)
	if err != nil {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to list pipelines", err.Error())
	}
	eval, err := s.access.evaluator(ctx, user)
	if err != nil {
		return nil, err
	}

	out := make([]domain.PipelineConfig, 0, len(records))
	for i := range records {
		if !eval.CanAccessPipeline(records[i].ID) {
			continue
		}
		cfg, err := pipelineFromRecord(&records[i])
		if err != nil {
			s.logger.Error("Skipping unreadable pipeline",
				zap.String("pipeline_id", records[i].ID),
				zap.Error(err),
			)
			continue
		}
		cfg.Fields = eval.FilterFields(pipeline.SortedFields(cfg))
		cfg.Stages = pipeline.SortedStages(cfg)
		out = append(out, cfg)
	}
	return out, nil
}

// UpdatePipeline replaces name, stages and fields. The entity type is fixed at
// creation because stored entities are keyed by it.
func (s *pipelineServiceImpl) UpdatePipeline(ctx context.Context, user domain.User, pipelineID string, cfg domain.PipelineConfig) (*domain.PipelineConfig, error) {
	if err := s.requireManager(ctx, user); err != nil {
		return nil, err
	}

	existing, err := s.access.loadPipeline(ctx, user.CompanyID, pipelineID)
	if err != nil {
		return nil, err
	}
	if cfg.EntityType == "" {
		cfg.EntityType = existing.EntityType
	}
	if cfg.EntityType != existing.EntityType {
		return nil, response.NewValidationError("Entity type cannot be changed", "")
	}

	cfg.ID = existing.ID
	cfg.CompanyID = existing.CompanyID
	cfg.CreatedAt = existing.CreatedAt
	cfg.UpdatedAt = time.Now().UTC()

	if err := pipeline.Validate(cfg); err != nil {
		return nil, err
	}

	rec, err := pipelineToRecord(cfg)
	if err != nil {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to encode pipeline", err.Error())
	}
	if err := s.pipelineRepo.Update(ctx, rec); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFoundError("Pipeline not found", "")
		}
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to update pipeline", err.Error())
	}

	s.logger.Info("Pipeline updated",
		zap.String("company_id", cfg.CompanyID),
		zap.String("pipeline_id", cfg.ID),
	)
	return &cfg, nil
}

// DeletePipeline removes a pipeline that no longer holds entities
func (s *pipelineServiceImpl) DeletePipeline(ctx context.Context, user domain.User, pipelineID string) error {
	if err := s.requireManager(ctx, user); err != nil {
		return err
	}

	cfg, err := s.access.loadPipeline(ctx, user.CompanyID, pipelineID)
	if err != nil {
		return err
	}

	stats, err := s.stores(user.CompanyID).GetStats(ctx, cfg.EntityType)
	if err != nil {
		return mapStorageError(err, "Failed to count pipeline entities")
	}
	if stats.Total > 0 {
		return response.NewValidationError("Pipeline still has entities", "")
	}

	if err := s.pipelineRepo.Delete(ctx, user.CompanyID, cfg.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NewNotFoundError("Pipeline not found", "")
		}
		return response.NewAppError(response.ErrCodeInternal, "Failed to delete pipeline", err.Error())
	}

	s.logger.Info("Pipeline deleted",
		zap.String("company_id", user.CompanyID),
		zap.String("pipeline_id", cfg.ID),
	)
	return nil
}
