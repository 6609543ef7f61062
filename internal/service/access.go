package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/metrics"
	"crm-pipeline-api/internal/permission"
	"crm-pipeline-api/internal/repository"
	"crm-pipeline-api/internal/response"
	"crm-pipeline-api/internal/storage"
)

// accessLoader loads the pipeline and role data every permission check needs.
// It keeps nothing between calls.
type accessLoader struct {
	pipelineRepo repository.PipelineRepository
	roleRepo     repository.RoleRepository
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// evaluator builds the per-request permission evaluator. Company roles are only
// loaded when the user is assigned a custom role.
func (l accessLoader) evaluator(ctx context.Context, user domain.User) (*permission.Evaluator, error) {
	if user.RoleID == "" {
		return permission.NewEvaluator(user, nil), nil
	}

	records, err := l.roleRepo.FindByCompany(ctx, user.CompanyID)
	if err != nil {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to load roles", err.Error())
	}
	roles := make([]domain.RoleDefinition, 0, len(records))
	for i := range records {
		role, err := roleFromRecord(&records[i])
		if err != nil {
			// a corrupt role must not grant anything
			l.logger.Warn("Skipping unreadable role",
				zap.String("role_id", records[i].ID),
				zap.String("company_id", user.CompanyID),
				zap.Error(err),
			)
			continue
		}
		roles = append(roles, role)
	}
	return permission.NewEvaluator(user, roles), nil
}

func (l accessLoader) loadPipeline(ctx context.Context, companyID, pipelineID string) (domain.PipelineConfig, error) {
	rec, err := l.pipelineRepo.FindByID(ctx, companyID, pipelineID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.PipelineConfig{}, response.NewNotFoundError("Pipeline not found", "")
		}
		return domain.PipelineConfig{}, response.NewAppError(response.ErrCodeInternal, "Failed to load pipeline", err.Error())
	}
	cfg, err := pipelineFromRecord(rec)
	if err != nil {
		return domain.PipelineConfig{}, response.NewAppError(response.ErrCodeInternal, "Failed to decode pipeline", err.Error())
	}
	return cfg, nil
}

func (l accessLoader) deny(user domain.User, action, resource string) error {
	l.metrics.IncrementPermissionDenied(action)
	l.logger.Warn("Permission denied",
		zap.String("user_id", user.ID),
		zap.String("company_id", user.CompanyID),
		zap.String("role", user.Role),
		zap.String("action", action),
		zap.String("resource", resource),
	)
	return response.NewForbiddenError("You do not have permission to perform this action", "")
}

// mapStorageError converts adapter errors into the service error taxonomy
func mapStorageError(err error, message string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrEntityNotFound):
		return response.NewNotFoundError("Entity not found", "")
	case storage.IsTransport(err):
		return response.NewTransportError("Storage backend unavailable", err)
	case errors.Is(err, storage.ErrInvalidInput):
		return response.NewValidationError(message, err.Error())
	default:
		return response.NewAppError(response.ErrCodeInternal, message, err.Error())
	}
}

func pipelineFromRecord(rec *domain.PipelineRecord) (domain.PipelineConfig, error) {
	cfg := domain.PipelineConfig{
		ID:         rec.ID,
		CompanyID:  rec.CompanyID,
		EntityType: rec.EntityType,
		Name:       rec.Name,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	if len(rec.Stages) > 0 {
		if err := json.Unmarshal(rec.Stages, &cfg.Stages); err != nil {
			return cfg, fmt.Errorf("stages: %w", err)
		}
	}
	if len(rec.Fields) > 0 {
		if err := json.Unmarshal(rec.Fields, &cfg.Fields); err != nil {
			return cfg, fmt.Errorf("fields: %w", err)
		}
	}
	if cfg.Stages == nil {
		cfg.Stages = []domain.StageDefinition{}
	}
	if cfg.Fields == nil {
		cfg.Fields = []domain.FieldDefinition{}
	}
	return cfg, nil
}

func pipelineToRecord(cfg domain.PipelineConfig) (*domain.PipelineRecord, error) {
	stages, err := json.Marshal(cfg.Stages)
	if err != nil {
		return nil, err
	}
	fields, err := json.Marshal(cfg.Fields)
	if err != nil {
		return nil, err
	}
	return &domain.PipelineRecord{
		ID:         cfg.ID,
		CompanyID:  cfg.CompanyID,
		EntityType: cfg.EntityType,
		Name:       cfg.Name,
		Stages:     stages,
		Fields:     fields,
		CreatedAt:  cfg.CreatedAt,
		UpdatedAt:  cfg.UpdatedAt,
	}, nil
}

func roleFromRecord(rec *domain.RoleRecord) (domain.RoleDefinition, error) {
	role := domain.RoleDefinition{
		ID:          rec.ID,
		CompanyID:   rec.CompanyID,
		Name:        rec.Name,
		Description: rec.Description,
	}
	if len(rec.Permissions) > 0 {
		if err := json.Unmarshal(rec.Permissions, &role.Permissions); err != nil {
			return role, err
		}
	}
	return role, nil
}

func roleToRecord(role domain.RoleDefinition) (*domain.RoleRecord, error) {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return nil, err
	}
	return &domain.RoleRecord{
		ID:          role.ID,
		CompanyID:   role.CompanyID,
		Name:        role.Name,
		Description: role.Description,
		Permissions: perms,
	}, nil
}

func schemaFromRecord(rec *domain.SchemaRecord) (domain.TableSchema, error) {
	s := domain.TableSchema{
		TableName:  rec.Name,
		RowCount:   rec.RowCount,
		Columns:    []domain.ColumnDefinition{},
		SampleRows: [][]string{},
	}
	if len(rec.Columns) > 0 {
		if err := json.Unmarshal(rec.Columns, &s.Columns); err != nil {
			return s, fmt.Errorf("columns: %w", err)
		}
	}
	if len(rec.SampleRows) > 0 {
		if err := json.Unmarshal(rec.SampleRows, &s.SampleRows); err != nil {
			return s, fmt.Errorf("sample rows: %w", err)
		}
	}
	return s, nil
}

func schemaToRecord(companyID string, s domain.TableSchema) (*domain.SchemaRecord, error) {
	columns, err := json.Marshal(s.Columns)
	if err != nil {
		return nil, err
	}
	samples, err := json.Marshal(s.SampleRows)
	if err != nil {
		return nil, err
	}
	return &domain.SchemaRecord{
		CompanyID:  companyID,
		Name:       s.TableName,
		Columns:    columns,
		RowCount:   s.RowCount,
		SampleRows: samples,
	}, nil
}
