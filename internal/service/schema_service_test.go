package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/repository"
	"crm-pipeline-api/internal/response"
	"crm-pipeline-api/internal/schema"
)

func setupSchemaRepo(t *testing.T) repository.SchemaRepository {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.UploadedFile{}, &domain.SchemaRecord{}, &domain.ImportedRow{}))
	return repository.NewSchemaRepository(db)
}

func leadsRows() [][]string {
	return [][]string{
		{"id", "Name", "Tutor ID", "amount"},
		{"1", "Ada", "7", "12.50"},
		{"2", "Bob", "8", "3"},
	}
}

func tutorsRows() [][]string {
	return [][]string{
		{"id", "name"},
		{"7", "Grace"},
		{"8", "Alan"},
	}
}

func column(t *testing.T, s domain.TableSchema, name string) domain.ColumnDefinition {
	t.Helper()
	for _, c := range s.Columns {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("column %q not found in %s", name, s.TableName)
	return domain.ColumnDefinition{}
}

func TestSchemaService_ImportResolvesAcrossFiles(t *testing.T) {
	repo := setupSchemaRepo(t)
	svc := NewSchemaService(repo, roleRepoFor(), &MockRefinementClient{}, nil, zap.NewNop())
	ctx := context.Background()

	res, err := svc.ImportFile(ctx, adminUser, "leads.csv", leadsRows(), schema.BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, "leads", res.Schema.TableName)
	assert.Equal(t, 2, res.Schema.RowCount)
	assert.False(t, column(t, res.Schema, "tutor_id").IsForeignKey, "no tutors table yet")

	count, err := repo.CountRows(ctx, res.File.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	_, err = svc.ImportFile(ctx, adminUser, "tutors.csv", tutorsRows(), schema.BuildOptions{})
	require.NoError(t, err)

	schemas, err := svc.ListSchemas(ctx, adminUser)
	require.NoError(t, err)
	require.Len(t, schemas, 2)
	fk := column(t, schemas[0], "tutor_id")
	assert.True(t, fk.IsForeignKey)
	require.NotNil(t, fk.References)
	assert.Equal(t, domain.ColumnReference{Table: "tutors", Column: "id"}, *fk.References)
}

func TestSchemaService_DuplicateTable(t *testing.T) {
	svc := NewSchemaService(setupSchemaRepo(t), roleRepoFor(), &MockRefinementClient{}, nil, zap.NewNop())
	ctx := context.Background()

	_, err := svc.ImportFile(ctx, adminUser, "leads.csv", leadsRows(), schema.BuildOptions{})
	require.NoError(t, err)

	_, err = svc.ImportFile(ctx, adminUser, "Leads.xlsx", leadsRows(), schema.BuildOptions{})
	assert.Equal(t, response.ErrCodeAlreadyExists, response.CodeOf(err))

	other := domain.User{ID: "u2", CompanyID: "globex", Role: domain.RoleAdmin}
	_, err = svc.ImportFile(ctx, other, "leads.csv", leadsRows(), schema.BuildOptions{})
	assert.NoError(t, err, "table names are scoped per company")
}

func TestSchemaService_RequiresManagePipelines(t *testing.T) {
	svc := NewSchemaService(&MockSchemaRepository{}, roleRepoFor(), &MockRefinementClient{}, nil, zap.NewNop())

	_, err := svc.ImportFile(context.Background(), salesUser, "leads.csv", leadsRows(), schema.BuildOptions{})
	assert.True(t, response.IsForbidden(err))

	_, err = svc.Refine(context.Background(), supportUser)
	assert.True(t, response.IsForbidden(err))
}

func TestSchemaService_DeleteFile(t *testing.T) {
	repo := setupSchemaRepo(t)
	svc := NewSchemaService(repo, roleRepoFor(), &MockRefinementClient{}, nil, zap.NewNop())
	ctx := context.Background()

	res, err := svc.ImportFile(ctx, adminUser, "leads.csv", leadsRows(), schema.BuildOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteFile(ctx, adminUser, res.File.ID))

	schemas, err := svc.ListSchemas(ctx, adminUser)
	require.NoError(t, err)
	assert.Empty(t, schemas)

	err = svc.DeleteFile(ctx, adminUser, res.File.ID)
	assert.True(t, response.IsNotFound(err))
}

func TestSchemaService_DeleteFileClearsReferencesToIt(t *testing.T) {
	repo := setupSchemaRepo(t)
	svc := NewSchemaService(repo, roleRepoFor(), &MockRefinementClient{}, nil, zap.NewNop())
	ctx := context.Background()

	_, err := svc.ImportFile(ctx, adminUser, "leads.csv", leadsRows(), schema.BuildOptions{})
	require.NoError(t, err)
	tutors, err := svc.ImportFile(ctx, adminUser, "tutors.csv", tutorsRows(), schema.BuildOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteFile(ctx, adminUser, tutors.File.ID))

	schemas, err := svc.ListSchemas(ctx, adminUser)
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	fk := column(t, schemas[0], "tutor_id")
	assert.False(t, fk.IsForeignKey)
	assert.Nil(t, fk.References)

	_, err = svc.ImportFile(ctx, adminUser, "tutors.csv", tutorsRows(), schema.BuildOptions{})
	require.NoError(t, err)
	schemas, err = svc.ListSchemas(ctx, adminUser)
	require.NoError(t, err)
	assert.True(t, column(t, schemas[0], "tutor_id").IsForeignKey, "re-importing the table restores the key")
}

func TestSchemaService_Refine(t *testing.T) {
	repo := setupSchemaRepo(t)
	refiner := &MockRefinementClient{
		RefineFunc: func(ctx context.Context, schemas []domain.TableSchema) ([]domain.TableSchema, error) {
			out := make([]domain.TableSchema, len(schemas))
			for i, s := range schemas {
				out[i] = s.Clone()
				out[i].RowCount = 999
				for c := range out[i].Columns {
					if out[i].Columns[c].Name == "amount" {
						out[i].Columns[c].Type = domain.ColumnTypeText
					}
				}
			}
			return out, nil
		},
	}
	svc := NewSchemaService(repo, roleRepoFor(), refiner, nil, zap.NewNop())
	ctx := context.Background()

	_, err := svc.ImportFile(ctx, adminUser, "leads.csv", leadsRows(), schema.BuildOptions{})
	require.NoError(t, err)

	refined, err := svc.Refine(ctx, adminUser)
	require.NoError(t, err)
	require.Len(t, refined, 1)
	assert.Equal(t, domain.ColumnTypeText, column(t, refined[0], "amount").Type)
	assert.Equal(t, 2, refined[0].RowCount, "row counts always come from the stored schema")

	stored, err := svc.ListSchemas(ctx, adminUser)
	require.NoError(t, err)
	assert.Equal(t, domain.ColumnTypeText, column(t, stored[0], "amount").Type)
}

func TestSchemaService_RefineErrors(t *testing.T) {
	repo := setupSchemaRepo(t)
	failing := &MockRefinementClient{
		RefineFunc: func(ctx context.Context, schemas []domain.TableSchema) ([]domain.TableSchema, error) {
			return nil, errors.New("503 from model")
		},
	}
	svc := NewSchemaService(repo, roleRepoFor(), failing, nil, zap.NewNop())
	ctx := context.Background()

	refined, err := svc.Refine(ctx, adminUser)
	require.NoError(t, err, "nothing to refine")
	assert.Empty(t, refined)

	_, err = svc.ImportFile(ctx, adminUser, "leads.csv", leadsRows(), schema.BuildOptions{})
	require.NoError(t, err)

	_, err = svc.Refine(ctx, adminUser)
	assert.True(t, response.IsTransport(err))
}
