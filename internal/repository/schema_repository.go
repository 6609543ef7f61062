package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"crm-pipeline-api/internal/domain"
)

// SchemaRepository persists uploaded files, their inferred schemas and rows
type SchemaRepository interface {
	CreateImport(ctx context.Context, file *domain.UploadedFile, schema *domain.SchemaRecord, rows []domain.ImportedRow) error
	FindSchemasByCompany(ctx context.Context, companyID string) ([]domain.SchemaRecord, error)
	FindSchemaByTable(ctx context.Context, companyID, tableName string) (*domain.SchemaRecord, error)
	UpdateSchemas(ctx context.Context, schemas []domain.SchemaRecord) error
	FindFileByID(ctx context.Context, companyID string, fileID uuid.UUID) (*domain.UploadedFile, error)
	FindFilesByCompany(ctx context.Context, companyID string) ([]domain.UploadedFile, error)
	DeleteFile(ctx context.Context, companyID string, fileID uuid.UUID) error
	CountRows(ctx context.Context, fileID uuid.UUID) (int64, error)
	DeleteOrphanRows(ctx context.Context) (int64, error)
}

type schemaRepositoryImpl struct {
	db *gorm.DB
}

// NewSchemaRepository creates a new instance of SchemaRepository
func NewSchemaRepository(db *gorm.DB) SchemaRepository {
	return &schemaRepositoryImpl{db: db}
}

// CreateImport stores the file record, its schema and all rows in one transaction
func (r *schemaRepositoryImpl) CreateImport(ctx context.Context, file *domain.UploadedFile, schema *domain.SchemaRecord, rows []domain.ImportedRow) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(file).Error; err != nil {
			return err
		}
		schema.FileID = file.ID
		if err := tx.Create(schema).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			rows[i].FileID = file.ID
		}
		return tx.CreateInBatches(rows, 500).Error
	})
}

func (r *schemaRepositoryImpl) FindSchemasByCompany(ctx context.Context, companyID string) ([]domain.SchemaRecord, error) {
	var schemas []domain.SchemaRecord
	if err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at ASC, table_name ASC").
		Find(&schemas).Error; err != nil {
		return nil, err
	}
	return schemas, nil
}

// FindSchemaByTable returns gorm.ErrRecordNotFound when the company has no such table
func (r *schemaRepositoryImpl) FindSchemaByTable(ctx context.Context, companyID, tableName string) (*domain.SchemaRecord, error) {
	var schema domain.SchemaRecord
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND table_name = ?", companyID, tableName).
		First(&schema).Error; err != nil {
		return nil, err
	}
	return &schema, nil
}

// UpdateSchemas rewrites the column definitions of existing schema records
func (r *schemaRepositoryImpl) UpdateSchemas(ctx context.Context, schemas []domain.SchemaRecord) error {
	if len(schemas) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, s := range schemas {
			if err := tx.Model(&domain.SchemaRecord{}).
				Where("id = ?", s.ID).
				Updates(map[string]interface{}{
					"columns":    s.Columns,
					"updated_at": time.Now().UTC(),
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *schemaRepositoryImpl) FindFileByID(ctx context.Context, companyID string, fileID uuid.UUID) (*domain.UploadedFile, error) {
	var file domain.UploadedFile
	if err := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", fileID, companyID).
		First(&file).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *schemaRepositoryImpl) FindFilesByCompany(ctx context.Context, companyID string) ([]domain.UploadedFile, error) {
	var files []domain.UploadedFile
	if err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at ASC").
		Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// DeleteFile removes a file record together with its schema and rows
func (r *schemaRepositoryImpl) DeleteFile(ctx context.Context, companyID string, fileID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND company_id = ?", fileID, companyID).Delete(&domain.UploadedFile{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("file_id = ?", fileID).Delete(&domain.SchemaRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("file_id = ?", fileID).Delete(&domain.ImportedRow{}).Error
	})
}

func (r *schemaRepositoryImpl) CountRows(ctx context.Context, fileID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.ImportedRow{}).
		Where("file_id = ?", fileID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteOrphanRows removes imported rows and schemas whose file record is gone
func (r *schemaRepositoryImpl) DeleteOrphanRows(ctx context.Context) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		files := func() *gorm.DB { return tx.Model(&domain.UploadedFile{}).Select("id") }

		result := tx.Where("file_id NOT IN (?)", files()).Delete(&domain.ImportedRow{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected

		return tx.Where("file_id NOT IN (?)", files()).Delete(&domain.SchemaRecord{}).Error
	})
	return deleted, err
}
