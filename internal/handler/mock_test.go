package handler

import (
	"context"

	"github.com/google/uuid"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/schema"
	"crm-pipeline-api/internal/service"
	"crm-pipeline-api/internal/storage"
)

// MockEntityService is a mock implementation of EntityService
type MockEntityService struct {
	ListFunc       func(ctx context.Context, user domain.User, pipelineID string, filters storage.Filters) (*storage.Page, error)
	GetFunc        func(ctx context.Context, user domain.User, pipelineID, id string) (*domain.CRMEntity, error)
	CreateFunc     func(ctx context.Context, user domain.User, pipelineID string, input storage.EntityInput) (*domain.CRMEntity, error)
	UpdateFunc     func(ctx context.Context, user domain.User, pipelineID, id string, patch storage.EntityPatch) (*domain.CRMEntity, error)
	DeleteFunc     func(ctx context.Context, user domain.User, pipelineID, id string) error
	MoveStageFunc  func(ctx context.Context, user domain.User, pipelineID, id, stage string) (*domain.CRMEntity, error)
	GetByStageFunc func(ctx context.Context, user domain.User, pipelineID, stage string) ([]domain.CRMEntity, error)
	GetStatsFunc   func(ctx context.Context, user domain.User, pipelineID string) (*storage.Stats, error)
	HealthFunc     func(ctx context.Context, companyID string) error
}

func (m *MockEntityService) List(ctx context.Context, user domain.User, pipelineID string, filters storage.Filters) (*storage.Page, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, user, pipelineID, filters)
	}
	return &storage.Page{Items: []domain.CRMEntity{}}, nil
}

func (m *MockEntityService) Get(ctx context.Context, user domain.User, pipelineID, id string) (*domain.CRMEntity, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, user, pipelineID, id)
	}
	return &domain.CRMEntity{ID: id}, nil
}

func (m *MockEntityService) Create(ctx context.Context, user domain.User, pipelineID string, input storage.EntityInput) (*domain.CRMEntity, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user, pipelineID, input)
	}
	return &domain.CRMEntity{ID: "e1", Stage: input.Stage, Data: input.Data}, nil
}

func (m *MockEntityService) Update(ctx context.Context, user domain.User, pipelineID, id string, patch storage.EntityPatch) (*domain.CRMEntity, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, user, pipelineID, id, patch)
	}
	return &domain.CRMEntity{ID: id}, nil
}

func (m *MockEntityService) Delete(ctx context.Context, user domain.User, pipelineID, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, user, pipelineID, id)
	}
	return nil
}

func (m *MockEntityService) MoveStage(ctx context.Context, user domain.User, pipelineID, id, stage string) (*domain.CRMEntity, error) {
	if m.MoveStageFunc != nil {
		return m.MoveStageFunc(ctx, user, pipelineID, id, stage)
	}
	return &domain.CRMEntity{ID: id, Stage: stage}, nil
}

func (m *MockEntityService) GetByStage(ctx context.Context, user domain.User, pipelineID, stage string) ([]domain.CRMEntity, error) {
	if m.GetByStageFunc != nil {
		return m.GetByStageFunc(ctx, user, pipelineID, stage)
	}
	return []domain.CRMEntity{}, nil
}

func (m *MockEntityService) GetStats(ctx context.Context, user domain.User, pipelineID string) (*storage.Stats, error) {
	if m.GetStatsFunc != nil {
		return m.GetStatsFunc(ctx, user, pipelineID)
	}
	return &storage.Stats{ByStage: map[string]int{}}, nil
}

func (m *MockEntityService) Health(ctx context.Context, companyID string) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx, companyID)
	}
	return nil
}

// MockPipelineService is a mock implementation of PipelineService
type MockPipelineService struct {
	CreatePipelineFunc func(ctx context.Context, user domain.User, cfg domain.PipelineConfig) (*domain.PipelineConfig, error)
	GetPipelineFunc    func(ctx context.Context, user domain.User, pipelineID string) (*domain.PipelineConfig, error)
	ListPipelinesFunc  func(ctx context.Context, user domain.User) ([]domain.PipelineConfig, error)
	UpdatePipelineFunc func(ctx context.Context, user domain.User, pipelineID string, cfg domain.PipelineConfig) (*domain.PipelineConfig, error)
	DeletePipelineFunc func(ctx context.Context, user domain.User, pipelineID string) error
}

func (m *MockPipelineService) CreatePipeline(ctx context.Context, user domain.User, cfg domain.PipelineConfig) (*domain.PipelineConfig, error) {
	if m.CreatePipelineFunc != nil {
		return m.CreatePipelineFunc(ctx, user, cfg)
	}
	return &cfg, nil
}

func (m *MockPipelineService) GetPipeline(ctx context.Context, user domain.User, pipelineID string) (*domain.PipelineConfig, error) {
	if m.GetPipelineFunc != nil {
		return m.GetPipelineFunc(ctx, user, pipelineID)
	}
	return &domain.PipelineConfig{ID: pipelineID}, nil
}

func (m *MockPipelineService) ListPipelines(ctx context.Context, user domain.User) ([]domain.PipelineConfig, error) {
	if m.ListPipelinesFunc != nil {
		return m.ListPipelinesFunc(ctx, user)
	}
	return []domain.PipelineConfig{}, nil
}

func (m *MockPipelineService) UpdatePipeline(ctx context.Context, user domain.User, pipelineID string, cfg domain.PipelineConfig) (*domain.PipelineConfig, error) {
	if m.UpdatePipelineFunc != nil {
		return m.UpdatePipelineFunc(ctx, user, pipelineID, cfg)
	}
	return &cfg, nil
}

func (m *MockPipelineService) DeletePipeline(ctx context.Context, user domain.User, pipelineID string) error {
	if m.DeletePipelineFunc != nil {
		return m.DeletePipelineFunc(ctx, user, pipelineID)
	}
	return nil
}

// MockRoleService is a mock implementation of RoleService
type MockRoleService struct {
	ListRolesFunc  func(ctx context.Context, user domain.User) ([]domain.RoleDefinition, error)
	CreateRoleFunc func(ctx context.Context, user domain.User, role domain.RoleDefinition) (*domain.RoleDefinition, error)
	UpdateRoleFunc func(ctx context.Context, user domain.User, roleID string, role domain.RoleDefinition) (*domain.RoleDefinition, error)
	DeleteRoleFunc func(ctx context.Context, user domain.User, roleID string) error
}

func (m *MockRoleService) ListRoles(ctx context.Context, user domain.User) ([]domain.RoleDefinition, error) {
	if m.ListRolesFunc != nil {
		return m.ListRolesFunc(ctx, user)
	}
	return []domain.RoleDefinition{}, nil
}

func (m *MockRoleService) CreateRole(ctx context.Context, user domain.User, role domain.RoleDefinition) (*domain.RoleDefinition, error) {
	if m.CreateRoleFunc != nil {
		return m.CreateRoleFunc(ctx, user, role)
	}
	return &role, nil
}

func (m *MockRoleService) UpdateRole(ctx context.Context, user domain.User, roleID string, role domain.RoleDefinition) (*domain.RoleDefinition, error) {
	if m.UpdateRoleFunc != nil {
		return m.UpdateRoleFunc(ctx, user, roleID, role)
	}
	role.ID = roleID
	return &role, nil
}

func (m *MockRoleService) DeleteRole(ctx context.Context, user domain.User, roleID string) error {
	if m.DeleteRoleFunc != nil {
		return m.DeleteRoleFunc(ctx, user, roleID)
	}
	return nil
}

// MockSchemaService is a mock implementation of SchemaService
type MockSchemaService struct {
	ImportFileFunc  func(ctx context.Context, user domain.User, fileName string, rows [][]string, opts schema.BuildOptions) (*service.ImportResult, error)
	ListSchemasFunc func(ctx context.Context, user domain.User) ([]domain.TableSchema, error)
	ListFilesFunc   func(ctx context.Context, user domain.User) ([]domain.UploadedFile, error)
	DeleteFileFunc  func(ctx context.Context, user domain.User, fileID uuid.UUID) error
	RefineFunc      func(ctx context.Context, user domain.User) ([]domain.TableSchema, error)
}

func (m *MockSchemaService) ImportFile(ctx context.Context, user domain.User, fileName string, rows [][]string, opts schema.BuildOptions) (*service.ImportResult, error) {
	if m.ImportFileFunc != nil {
		return m.ImportFileFunc(ctx, user, fileName, rows, opts)
	}
	return &service.ImportResult{}, nil
}

func (m *MockSchemaService) ListSchemas(ctx context.Context, user domain.User) ([]domain.TableSchema, error) {
	if m.ListSchemasFunc != nil {
		return m.ListSchemasFunc(ctx, user)
	}
	return []domain.TableSchema{}, nil
}

func (m *MockSchemaService) ListFiles(ctx context.Context, user domain.User) ([]domain.UploadedFile, error) {
	if m.ListFilesFunc != nil {
		return m.ListFilesFunc(ctx, user)
	}
	return []domain.UploadedFile{}, nil
}

func (m *MockSchemaService) DeleteFile(ctx context.Context, user domain.User, fileID uuid.UUID) error {
	if m.DeleteFileFunc != nil {
		return m.DeleteFileFunc(ctx, user, fileID)
	}
	return nil
}

func (m *MockSchemaService) Refine(ctx context.Context, user domain.User) ([]domain.TableSchema, error) {
	if m.RefineFunc != nil {
		return m.RefineFunc(ctx, user)
	}
	return []domain.TableSchema{}, nil
}
