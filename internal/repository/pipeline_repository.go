package repository

import (
	"context"

	"gorm.io/gorm"

	"crm-pipeline-api/internal/domain"
)

// PipelineRepository defines the interface for pipeline configuration access
type PipelineRepository interface {
	Create(ctx context.Context, pipeline *domain.PipelineRecord) error
	FindByID(ctx context.Context, companyID, id string) (*domain.PipelineRecord, error)
	FindByEntityType(ctx context.Context, companyID, entityType string) (*domain.PipelineRecord, error)
	FindByCompany(ctx context.Context, companyID string) ([]domain.PipelineRecord, error)
	FindAll(ctx context.Context) ([]domain.PipelineRecord, error)
	Update(ctx context.Context, pipeline *domain.PipelineRecord) error
	Delete(ctx context.Context, companyID, id string) error
}

type pipelineRepositoryImpl struct {
	db *gorm.DB
}

// NewPipelineRepository creates a new instance of PipelineRepository
func NewPipelineRepository(db *gorm.DB) PipelineRepository {
	return &pipelineRepositoryImpl{db: db}
}

func (r *pipelineRepositoryImpl) Create(ctx context.Context, pipeline *domain.PipelineRecord) error {
	return r.db.WithContext(ctx).Create(pipeline).Error
}

func (r *pipelineRepositoryImpl) FindByID(ctx context.Context, companyID, id string) (*domain.PipelineRecord, error) {
	var pipeline domain.PipelineRecord
	if err := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		First(&pipeline).Error; err != nil {
		return nil, err
	}
	return &pipeline, nil
}

func (r *pipelineRepositoryImpl) FindByEntityType(ctx context.Context, companyID, entityType string) (*domain.PipelineRecord, error) {
	var pipeline domain.PipelineRecord
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND entity_type = ?", companyID, entityType).
		First(&pipeline).Error; err != nil {
		return nil, err
	}
	return &pipeline, nil
}

func (r *pipelineRepositoryImpl) FindByCompany(ctx context.Context, companyID string) ([]domain.PipelineRecord, error) {
	var pipelines []domain.PipelineRecord
	if err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at ASC, id ASC").
		Find(&pipelines).Error; err != nil {
		return nil, err
	}
	return pipelines, nil
}

// FindAll lists the pipelines of every company
func (r *pipelineRepositoryImpl) FindAll(ctx context.Context) ([]domain.PipelineRecord, error) {
	var pipelines []domain.PipelineRecord
	if err := r.db.WithContext(ctx).Order("company_id ASC, entity_type ASC").Find(&pipelines).Error; err != nil {
		return nil, err
	}
	return pipelines, nil
}

func (r *pipelineRepositoryImpl) Update(ctx context.Context, pipeline *domain.PipelineRecord) error {
	result := r.db.WithContext(ctx).
		Model(&domain.PipelineRecord{}).
		Where("id = ? AND company_id = ?", pipeline.ID, pipeline.CompanyID).
		Updates(map[string]interface{}{
			"name":       pipeline.Name,
			"stages":     pipeline.Stages,
			"fields":     pipeline.Fields,
			"updated_at": pipeline.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *pipelineRepositoryImpl) Delete(ctx context.Context, companyID, id string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		Delete(&domain.PipelineRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
