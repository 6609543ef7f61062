package service

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"crm-pipeline-api/internal/client"
	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/storage"
)

// MockPipelineRepository is a mock implementation of PipelineRepository
type MockPipelineRepository struct {
	CreateFunc           func(ctx context.Context, pipeline *domain.PipelineRecord) error
	FindByIDFunc         func(ctx context.Context, companyID, id string) (*domain.PipelineRecord, error)
	FindByEntityTypeFunc func(ctx context.Context, companyID, entityType string) (*domain.PipelineRecord, error)
	FindByCompanyFunc    func(ctx context.Context, companyID string) ([]domain.PipelineRecord, error)
	FindAllFunc          func(ctx context.Context) ([]domain.PipelineRecord, error)
	UpdateFunc           func(ctx context.Context, pipeline *domain.PipelineRecord) error
	DeleteFunc           func(ctx context.Context, companyID, id string) error
}

func (m *MockPipelineRepository) Create(ctx context.Context, pipeline *domain.PipelineRecord) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, pipeline)
	}
	return nil
}

func (m *MockPipelineRepository) FindByID(ctx context.Context, companyID, id string) (*domain.PipelineRecord, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, companyID, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockPipelineRepository) FindByEntityType(ctx context.Context, companyID, entityType string) (*domain.PipelineRecord, error) {
	if m.FindByEntityTypeFunc != nil {
		return m.FindByEntityTypeFunc(ctx, companyID, entityType)
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockPipelineRepository) FindByCompany(ctx context.Context, companyID string) ([]domain.PipelineRecord, error) {
	if m.FindByCompanyFunc != nil {
		return m.FindByCompanyFunc(ctx, companyID)
	}
	return nil, nil
}

func (m *MockPipelineRepository) FindAll(ctx context.Context) ([]domain.PipelineRecord, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc(ctx)
	}
	return nil, nil
}

func (m *MockPipelineRepository) Update(ctx context.Context, pipeline *domain.PipelineRecord) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, pipeline)
	}
	return nil
}

func (m *MockPipelineRepository) Delete(ctx context.Context, companyID, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, companyID, id)
	}
	return nil
}

// MockRoleRepository is a mock implementation of RoleRepository
type MockRoleRepository struct {
	CreateFunc        func(ctx context.Context, role *domain.RoleRecord) error
	FindByIDFunc      func(ctx context.Context, companyID, id string) (*domain.RoleRecord, error)
	FindByCompanyFunc func(ctx context.Context, companyID string) ([]domain.RoleRecord, error)
	UpdateFunc        func(ctx context.Context, role *domain.RoleRecord) error
	DeleteFunc        func(ctx context.Context, companyID, id string) error
}

func (m *MockRoleRepository) Create(ctx context.Context, role *domain.RoleRecord) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, role)
	}
	return nil
}

func (m *MockRoleRepository) FindByID(ctx context.Context, companyID, id string) (*domain.RoleRecord, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, companyID, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockRoleRepository) FindByCompany(ctx context.Context, companyID string) ([]domain.RoleRecord, error) {
	if m.FindByCompanyFunc != nil {
		return m.FindByCompanyFunc(ctx, companyID)
	}
	return nil, nil
}

func (m *MockRoleRepository) Update(ctx context.Context, role *domain.RoleRecord) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, role)
	}
	return nil
}

func (m *MockRoleRepository) Delete(ctx context.Context, companyID, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, companyID, id)
	}
	return nil
}

// MockNotificationClient records the events it is asked to send
type MockNotificationClient struct {
	Sent []client.NotificationEvent
	Err  error
}

func (m *MockNotificationClient) SendNotification(ctx context.Context, event client.NotificationEvent) error {
	m.Sent = append(m.Sent, event)
	return m.Err
}

func (m *MockNotificationClient) SendBulkNotifications(ctx context.Context, events []client.NotificationEvent) error {
	m.Sent = append(m.Sent, events...)
	return m.Err
}

// MockRefinementClient is a mock implementation of RefinementClient
type MockRefinementClient struct {
	RefineFunc func(ctx context.Context, schemas []domain.TableSchema) ([]domain.TableSchema, error)
}

func (m *MockRefinementClient) Refine(ctx context.Context, schemas []domain.TableSchema) ([]domain.TableSchema, error) {
	if m.RefineFunc != nil {
		return m.RefineFunc(ctx, schemas)
	}
	return schemas, nil
}

// MockAdapter is a storage.Adapter whose methods fail unless overridden
type MockAdapter struct {
	Err          error
	GetByIDFunc  func(ctx context.Context, entityType, id string) (*domain.CRMEntity, error)
	GetStatsFunc func(ctx context.Context, entityType string) (*storage.Stats, error)
	TestConnFunc func(ctx context.Context) error
}

func (m *MockAdapter) TestConnection(ctx context.Context) error {
	if m.TestConnFunc != nil {
		return m.TestConnFunc(ctx)
	}
	return m.Err
}

func (m *MockAdapter) GetAll(ctx context.Context, entityType string, filters storage.Filters) (*storage.Page, error) {
	return nil, m.Err
}

func (m *MockAdapter) GetByID(ctx context.Context, entityType, id string) (*domain.CRMEntity, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, entityType, id)
	}
	return nil, m.Err
}

func (m *MockAdapter) Create(ctx context.Context, entityType string, input storage.EntityInput) (*domain.CRMEntity, error) {
	return nil, m.Err
}

func (m *MockAdapter) Update(ctx context.Context, entityType, id string, patch storage.EntityPatch) (*domain.CRMEntity, error) {
	return nil, m.Err
}

func (m *MockAdapter) Delete(ctx context.Context, entityType, id string) error {
	return m.Err
}

func (m *MockAdapter) MoveStage(ctx context.Context, entityType, id, stage string) (*domain.CRMEntity, error) {
	return nil, m.Err
}

func (m *MockAdapter) GetByStage(ctx context.Context, entityType, stage string) ([]domain.CRMEntity, error) {
	return nil, m.Err
}

func (m *MockAdapter) GetStats(ctx context.Context, entityType string) (*storage.Stats, error) {
	if m.GetStatsFunc != nil {
		return m.GetStatsFunc(ctx, entityType)
	}
	return nil, m.Err
}

// MockSchemaRepository is a mock implementation of SchemaRepository
type MockSchemaRepository struct {
	CreateImportFunc         func(ctx context.Context, file *domain.UploadedFile, schema *domain.SchemaRecord, rows []domain.ImportedRow) error
	FindSchemasByCompanyFunc func(ctx context.Context, companyID string) ([]domain.SchemaRecord, error)
	FindSchemaByTableFunc    func(ctx context.Context, companyID, tableName string) (*domain.SchemaRecord, error)
	UpdateSchemasFunc        func(ctx context.Context, schemas []domain.SchemaRecord) error
	DeleteFileFunc           func(ctx context.Context, companyID string, fileID uuid.UUID) error
}

func (m *MockSchemaRepository) CreateImport(ctx context.Context, file *domain.UploadedFile, schema *domain.SchemaRecord, rows []domain.ImportedRow) error {
	if m.CreateImportFunc != nil {
		return m.CreateImportFunc(ctx, file, schema, rows)
	}
	return nil
}

func (m *MockSchemaRepository) FindSchemasByCompany(ctx context.Context, companyID string) ([]domain.SchemaRecord, error) {
	if m.FindSchemasByCompanyFunc != nil {
		return m.FindSchemasByCompanyFunc(ctx, companyID)
	}
	return nil, nil
}

func (m *MockSchemaRepository) FindSchemaByTable(ctx context.Context, companyID, tableName string) (*domain.SchemaRecord, error) {
	if m.FindSchemaByTableFunc != nil {
		return m.FindSchemaByTableFunc(ctx, companyID, tableName)
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockSchemaRepository) UpdateSchemas(ctx context.Context, schemas []domain.SchemaRecord) error {
	if m.UpdateSchemasFunc != nil {
		return m.UpdateSchemasFunc(ctx, schemas)
	}
	return nil
}

func (m *MockSchemaRepository) FindFileByID(ctx context.Context, companyID string, fileID uuid.UUID) (*domain.UploadedFile, error) {
	return nil, gorm.ErrRecordNotFound
}

func (m *MockSchemaRepository) FindFilesByCompany(ctx context.Context, companyID string) ([]domain.UploadedFile, error) {
	return nil, nil
}

func (m *MockSchemaRepository) DeleteFile(ctx context.Context, companyID string, fileID uuid.UUID) error {
	if m.DeleteFileFunc != nil {
		return m.DeleteFileFunc(ctx, companyID, fileID)
	}
	return nil
}

func (m *MockSchemaRepository) CountRows(ctx context.Context, fileID uuid.UUID) (int64, error) {
	return 0, nil
}

func (m *MockSchemaRepository) DeleteOrphanRows(ctx context.Context) (int64, error) {
	return 0, nil
}
