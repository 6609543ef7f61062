package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"crm-pipeline-api/internal/client"
	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/metrics"
	"crm-pipeline-api/internal/permission"
	"crm-pipeline-api/internal/repository"
	"crm-pipeline-api/internal/response"
	"crm-pipeline-api/internal/schema"
)

// ImportResult is the outcome of one file import
type ImportResult struct {
	File   domain.UploadedFile `json:"file"`
	Schema domain.TableSchema  `json:"schema"`
}

// SchemaService imports tabular files and maintains the company's schema set
type SchemaService interface {
	ImportFile(ctx context.Context, user domain.User, fileName string, rows [][]string, opts schema.BuildOptions) (*ImportResult, error)
	ListSchemas(ctx context.Context, user domain.User) ([]domain.TableSchema, error)
	ListFiles(ctx context.Context, user domain.User) ([]domain.UploadedFile, error)
	DeleteFile(ctx context.Context, user domain.User, fileID uuid.UUID) error
	Refine(ctx context.Context, user domain.User) ([]domain.TableSchema, error)
}

type schemaServiceImpl struct {
	access     accessLoader
	schemaRepo repository.SchemaRepository
	refinement client.RefinementClient
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewSchemaService creates a new instance of SchemaService
func NewSchemaService(
	schemaRepo repository.SchemaRepository,
	roleRepo repository.RoleRepository,
	refinement client.RefinementClient,
	m *metrics.Metrics,
	logger *zap.Logger,
) SchemaService {
	return &schemaServiceImpl{
		access: accessLoader{
			roleRepo: roleRepo,
			metrics:  m,
			logger:   logger,
		},
		schemaRepo: schemaRepo,
		refinement: refinement,
		metrics:    m,
		logger:     logger,
	}
}

// requireImporter guards every write to the schema set
func (s *schemaServiceImpl) requireImporter(ctx context.Context, user domain.User) error {
	eval, err := s.access.evaluator(ctx, user)
	if err != nil {
		return err
	}
	if !eval.HasCapability(permission.CapManagePipelines) {
		return s.access.deny(user, "manage_schemas", "company:"+user.CompanyID)
	}
	return nil
}

// ImportFile builds a schema from a parsed file (row 0 is the header), stores
// it with every data row and re-resolves relationships across the company's
// tables.
func (s *schemaServiceImpl) ImportFile(ctx context.Context, user domain.User, fileName string, rows [][]string, opts schema.BuildOptions) (result *ImportResult, err error) {
	if err := s.requireImporter(ctx, user); err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			s.metrics.RecordSchemaImport(false, nil)
		}
	}()

	if fileName == "" {
		return nil, response.NewValidationError("File name is required", "")
	}

	built := schema.BuildTableSchemaWithOptions(fileName, rows, opts)

	if _, err := s.schemaRepo.FindSchemaByTable(ctx, user.CompanyID, built.TableName); err == nil {
		return nil, response.NewAppError(response.ErrCodeAlreadyExists,
			fmt.Sprintf("Table %q already exists", built.TableName), "")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to check existing tables", err.Error())
	}

	file := &domain.UploadedFile{
		CompanyID: user.CompanyID,
		FileName:  fileName,
		Table:     built.TableName,
		RowCount:  built.RowCount,
	}
	record, err := schemaToRecord(user.CompanyID, built)
	if err != nil {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to encode schema", err.Error())
	}
	dataRows, err := importedRows(user.CompanyID, built, rows)
	if err != nil {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to encode rows", err.Error())
	}

	if err := s.schemaRepo.CreateImport(ctx, file, record, dataRows); err != nil {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to store import", err.Error())
	}

	resolved, err := s.reresolve(ctx, user.CompanyID)
	if err != nil {
		return nil, err
	}
	for _, t := range resolved {
		if t.TableName == built.TableName {
			built = t
			break
		}
	}

	types := make([]string, len(built.Columns))
	for i, col := range built.Columns {
		types[i] = string(col.Type)
	}
	s.metrics.RecordSchemaImport(true, types)

	s.logger.Info("File imported",
		zap.String("company_id", user.CompanyID),
		zap.String("file_id", file.ID.String()),
		zap.String("table_name", built.TableName),
		zap.Int("row_count", built.RowCount),
		zap.Int("column_count", len(built.Columns)),
	)
	return &ImportResult{File: *file, Schema: built}, nil
}

// importedRows turns data rows into column-keyed objects. Cells beyond the
// header are dropped; missing cells are stored as empty strings.
func importedRows(companyID string, t domain.TableSchema, rows [][]string) ([]domain.ImportedRow, error) {
	if len(rows) < 2 {
		return nil, nil
	}
	out := make([]domain.ImportedRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		obj := make(map[string]string, len(t.Columns))
		for c, col := range t.Columns {
			if c < len(row) {
				obj[col.Name] = row[c]
			} else {
				obj[col.Name] = ""
			}
		}
		data, err := json.Marshal(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ImportedRow{
			CompanyID: companyID,
			Table:     t.TableName,
			RowIndex:  i,
			Data:      data,
		})
	}
	return out, nil
}

// loadSchemas returns the company's schemas with their records, in import order
func (s *schemaServiceImpl) loadSchemas(ctx context.Context, companyID string) ([]domain.TableSchema, []domain.SchemaRecord, error) {
	records, err := s.schemaRepo.FindSchemasByCompany(ctx, companyID)
	if err != nil {
		return nil, nil, response.NewAppError(response.ErrCodeInternal, "Failed to load schemas", err.Error())
	}
	schemas := make([]domain.TableSchema, len(records))
	for i := range records {
		t, err := schemaFromRecord(&records[i])
		if err != nil {
			return nil, nil, response.NewAppError(response.ErrCodeInternal, "Failed to decode schema", err.Error())
		}
		schemas[i] = t
	}
	return schemas, records, nil
}

// reresolve drops references to tables that no longer exist, runs
// relationship resolution over the whole company schema set and persists every
// table whose columns changed
func (s *schemaServiceImpl) reresolve(ctx context.Context, companyID string) ([]domain.TableSchema, error) {
	schemas, records, err := s.loadSchemas(ctx, companyID)
	if err != nil {
		return nil, err
	}
	resolved := schema.ResolveRelationships(schema.DropDanglingReferences(schemas))
	if err := s.persistColumns(ctx, schemas, resolved, records); err != nil {
		return nil, err
	}
	return resolved, nil
}

func (s *schemaServiceImpl) persistColumns(ctx context.Context, before, after []domain.TableSchema, records []domain.SchemaRecord) error {
	var changed []domain.SchemaRecord
	newKeys := 0
	for i := range after {
		columns, err := json.Marshal(after[i].Columns)
		if err != nil {
			return response.NewAppError(response.ErrCodeInternal, "Failed to encode schema", err.Error())
		}
		if bytes.Equal(columns, records[i].Columns) {
			continue
		}
		newKeys += countForeignKeys(after[i]) - countForeignKeys(before[i])
		rec := records[i]
		rec.Columns = columns
		changed = append(changed, rec)
	}
	if len(changed) == 0 {
		return nil
	}

	if err := s.schemaRepo.UpdateSchemas(ctx, changed); err != nil {
		return response.NewAppError(response.ErrCodeInternal, "Failed to update schemas", err.Error())
	}
	if newKeys > 0 {
		s.metrics.AddForeignKeysResolved(newKeys)
	}
	return nil
}

func countForeignKeys(t domain.TableSchema) int {
	n := 0
	for _, col := range t.Columns {
		if col.IsForeignKey {
			n++
		}
	}
	return n
}

func (s *schemaServiceImpl) ListSchemas(ctx context.Context, user domain.User) ([]domain.TableSchema, error) {
	schemas, _, err := s.loadSchemas(ctx, user.CompanyID)
	return schemas, err
}

func (s *schemaServiceImpl) ListFiles(ctx context.Context, user domain.User) ([]domain.UploadedFile, error) {
	files, err := s.schemaRepo.FindFilesByCompany(ctx, user.CompanyID)
	if err != nil {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to list files", err.Error())
	}
	return files, nil
}

// DeleteFile removes a file with its schema and rows. Foreign keys other
// tables held to the deleted table are cleared and resolved again against the
// remaining set.
func (s *schemaServiceImpl) DeleteFile(ctx context.Context, user domain.User, fileID uuid.UUID) error {
	if err := s.requireImporter(ctx, user); err != nil {
		return err
	}

	if err := s.schemaRepo.DeleteFile(ctx, user.CompanyID, fileID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NewNotFoundError("File not found", "")
		}
		return response.NewAppError(response.ErrCodeInternal, "Failed to delete file", err.Error())
	}

	if _, err := s.reresolve(ctx, user.CompanyID); err != nil {
		return err
	}

	s.logger.Info("File deleted",
		zap.String("company_id", user.CompanyID),
		zap.String("file_id", fileID.String()),
	)
	return nil
}

// Refine asks the refinement service for better types and keys and merges the
// answer into the stored schemas
func (s *schemaServiceImpl) Refine(ctx context.Context, user domain.User) ([]domain.TableSchema, error) {
	if err := s.requireImporter(ctx, user); err != nil {
		return nil, err
	}

	schemas, records, err := s.loadSchemas(ctx, user.CompanyID)
	if err != nil {
		return nil, err
	}
	if len(schemas) == 0 {
		return schemas, nil
	}

	refined, err := s.refinement.Refine(ctx, schemas)
	if err != nil {
		if errors.Is(err, client.ErrRefinementUnavailable) {
			return nil, response.NewValidationError("Schema refinement is not configured", "")
		}
		return nil, response.NewTransportError("Schema refinement failed", err)
	}

	merged := schema.ResolveRelationships(schema.MergeRefinement(schemas, refined))
	if err := s.persistColumns(ctx, schemas, merged, records); err != nil {
		return nil, err
	}

	s.logger.Info("Schemas refined",
		zap.String("company_id", user.CompanyID),
		zap.Int("table_count", len(merged)),
	)
	return merged, nil
}
