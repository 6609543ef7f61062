package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/response"
	"crm-pipeline-api/internal/storage"
	"crm-pipeline-api/internal/storage/kv"
)

func TestPipelineService_CreateRequiresManager(t *testing.T) {
	var created *domain.PipelineRecord
	repo := &MockPipelineRepository{
		CreateFunc: func(ctx context.Context, p *domain.PipelineRecord) error {
			created = p
			return nil
		},
	}
	svc := NewPipelineService(repo, roleRepoFor(), storage.EmbeddedFactory(kv.NewMemoryStore(), zap.NewNop(), nil), nil, zap.NewNop())
	cfg := studentsPipeline()
	cfg.ID = ""

	_, err := svc.CreatePipeline(context.Background(), salesUser, cfg)
	assert.True(t, response.IsForbidden(err))
	assert.Nil(t, created)

	out, err := svc.CreatePipeline(context.Background(), adminUser, cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, out.ID)
	assert.Equal(t, testCompany, out.CompanyID)
	require.NotNil(t, created)
	assert.Equal(t, out.ID, created.ID)
}

func TestPipelineService_CreateValidatesAndRejectsDuplicates(t *testing.T) {
	repo := &MockPipelineRepository{
		FindByEntityTypeFunc: func(ctx context.Context, companyID, entityType string) (*domain.PipelineRecord, error) {
			if entityType == "students" {
				return pipelineToRecord(studentsPipeline())
			}
			return nil, errNotFoundForTest()
		},
	}
	svc := NewPipelineService(repo, roleRepoFor(), nil, nil, zap.NewNop())

	_, err := svc.CreatePipeline(context.Background(), adminUser, studentsPipeline())
	assert.Equal(t, response.ErrCodeAlreadyExists, response.CodeOf(err))

	bad := studentsPipeline()
	bad.EntityType = "tutors"
	bad.Stages = nil
	_, err = svc.CreatePipeline(context.Background(), adminUser, bad)
	assert.True(t, response.IsValidation(err))
}

func TestPipelineService_GetHidesFinancialFields(t *testing.T) {
	svc := NewPipelineService(pipelineRepoFor(studentsPipeline()), roleRepoFor(customRoles()...), nil, nil, zap.NewNop())
	ctx := context.Background()

	cfg, err := svc.GetPipeline(ctx, supportUser, "p-students")
	require.NoError(t, err)
	for _, f := range cfg.Fields {
		assert.NotEqual(t, "fee", f.Name)
	}
	assert.Len(t, cfg.Fields, 2)

	cfg, err = svc.GetPipeline(ctx, salesUser, "p-students")
	require.NoError(t, err)
	assert.Len(t, cfg.Fields, 3)

	_, err = svc.GetPipeline(ctx, teamUser, "p-students")
	assert.True(t, response.IsForbidden(err))

	_, err = svc.GetPipeline(ctx, adminUser, "p-unknown")
	assert.True(t, response.IsNotFound(err))
}

func TestPipelineService_ListOnlyAccessible(t *testing.T) {
	other := studentsPipeline()
	other.ID = "p-tutors"
	other.EntityType = "tutors"
	svc := NewPipelineService(pipelineRepoFor(studentsPipeline(), other), roleRepoFor(customRoles()...), nil, nil, zap.NewNop())
	ctx := context.Background()

	list, err := svc.ListPipelines(ctx, limitedUser)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p-students", list[0].ID)

	list, err = svc.ListPipelines(ctx, adminUser)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = svc.ListPipelines(ctx, teamUser)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPipelineService_UpdateKeepsEntityType(t *testing.T) {
	var updated *domain.PipelineRecord
	repo := pipelineRepoFor(studentsPipeline())
	repo.UpdateFunc = func(ctx context.Context, p *domain.PipelineRecord) error {
		updated = p
		return nil
	}
	svc := NewPipelineService(repo, roleRepoFor(), nil, nil, zap.NewNop())
	ctx := context.Background()

	change := studentsPipeline()
	change.EntityType = "learners"
	_, err := svc.UpdatePipeline(ctx, adminUser, "p-students", change)
	assert.True(t, response.IsValidation(err))

	rename := studentsPipeline()
	rename.EntityType = ""
	rename.Name = "Learners"
	out, err := svc.UpdatePipeline(ctx, adminUser, "p-students", rename)
	require.NoError(t, err)
	assert.Equal(t, "students", out.EntityType)
	require.NotNil(t, updated)
	assert.Equal(t, "Learners", updated.Name)
}

func TestPipelineService_DeleteRefusedWhileEntitiesExist(t *testing.T) {
	var deleted bool
	repo := pipelineRepoFor(studentsPipeline())
	repo.DeleteFunc = func(ctx context.Context, companyID, id string) error {
		deleted = true
		return nil
	}
	count := 3
	adapter := &MockAdapter{
		GetStatsFunc: func(ctx context.Context, entityType string) (*storage.Stats, error) {
			return &storage.Stats{Total: count, ByStage: map[string]int{"new": count}}, nil
		},
	}
	factory := func(companyID string) storage.Adapter { return adapter }
	svc := NewPipelineService(repo, roleRepoFor(), factory, nil, zap.NewNop())
	ctx := context.Background()

	err := svc.DeletePipeline(ctx, adminUser, "p-students")
	assert.True(t, response.IsValidation(err))
	assert.False(t, deleted)

	count = 0
	require.NoError(t, svc.DeletePipeline(ctx, adminUser, "p-students"))
	assert.True(t, deleted)

	adapter.GetStatsFunc = nil
	adapter.Err = &storage.TransportError{Op: "stats", Err: assert.AnError}
	err = svc.DeletePipeline(ctx, adminUser, "p-students")
	assert.True(t, response.IsTransport(err))
}
