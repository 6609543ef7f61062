package repository

import (
	"context"

	"gorm.io/gorm"

	"crm-pipeline-api/internal/domain"
)

// RoleRepository defines the interface for custom role access
type RoleRepository interface {
	Create(ctx context.Context, role *domain.RoleRecord) error
	FindByID(ctx context.Context, companyID, id string) (*domain.RoleRecord, error)
	FindByCompany(ctx context.Context, companyID string) ([]domain.RoleRecord, error)
	Update(ctx context.Context, role *domain.RoleRecord) error
	Delete(ctx context.Context, companyID, id string) error
}

type roleRepositoryImpl struct {
	db *gorm.DB
}

// NewRoleRepository creates a new instance of RoleRepository
func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepositoryImpl{db: db}
}

func (r *roleRepositoryImpl) Create(ctx context.Context, role *domain.RoleRecord) error {
	return r.db.WithContext(ctx).Create(role).Error
}

func (r *roleRepositoryImpl) FindByID(ctx context.Context, companyID, id string) (*domain.RoleRecord, error) {
	var role domain.RoleRecord
	if err := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepositoryImpl) FindByCompany(ctx context.Context, companyID string) ([]domain.RoleRecord, error) {
	var roles []domain.RoleRecord
	if err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("name ASC").
		Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *roleRepositoryImpl) Update(ctx context.Context, role *domain.RoleRecord) error {
	result := r.db.WithContext(ctx).
		Model(&domain.RoleRecord{}).
		Where("id = ? AND company_id = ?", role.ID, role.CompanyID).
		Updates(map[string]interface{}{
			"name":        role.Name,
			"description": role.Description,
			"permissions": role.Permissions,
			"updated_at":  role.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *roleRepositoryImpl) Delete(ctx context.Context, companyID, id string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		Delete(&domain.RoleRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
