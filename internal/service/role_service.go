package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/metrics"
	"crm-pipeline-api/internal/permission"
	"crm-pipeline-api/internal/repository"
	"crm-pipeline-api/internal/response"
)

// RoleService manages the custom roles of a company
type RoleService interface {
	ListRoles(ctx context.Context, user domain.User) ([]domain.RoleDefinition, error)
	CreateRole(ctx context.Context, user domain.User, role domain.RoleDefinition) (*domain.RoleDefinition, error)
	UpdateRole(ctx context.Context, user domain.User, roleID string, role domain.RoleDefinition) (*domain.RoleDefinition, error)
	DeleteRole(ctx context.Context, user domain.User, roleID string) error
}

type roleServiceImpl struct {
	access   accessLoader
	roleRepo repository.RoleRepository
	logger   *zap.Logger
}

// NewRoleService creates a new instance of RoleService
func NewRoleService(roleRepo repository.RoleRepository, m *metrics.Metrics, logger *zap.Logger) RoleService {
	return &roleServiceImpl{
		access: accessLoader{
			roleRepo: roleRepo,
			metrics:  m,
			logger:   logger,
		},
		roleRepo: roleRepo,
		logger:   logger,
	}
}

func (s *roleServiceImpl) requireUserManager(ctx context.Context, user domain.User) error {
	eval, err := s.access.evaluator(ctx, user)
	if err != nil {
		return err
	}
	if !eval.HasCapability(permission.CapManageUsers) {
		return s.access.deny(user, "manage_users", "company:"+user.CompanyID)
	}
	return nil
}

func (s *roleServiceImpl) ListRoles(ctx context.Context, user domain.User) ([]domain.RoleDefinition, error) {
	if err := s.requireUserManager(ctx, user); err != nil {
		return nil, err
	}

	records, err := s.roleRepo.FindByCompany(ctx, user.CompanyID)
	if err != nil {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to list roles", err.Error())
	}
	out := make([]domain.RoleDefinition, 0, len(records))
	for i := range records {
		role, err := roleFromRecord(&records[i])
		if err != nil {
			return nil, response.NewAppError(response.ErrCodeInternal, "Failed to decode role", err.Error())
		}
		out = append(out, role)
	}
	return out, nil
}

func (s *roleServiceImpl) CreateRole(ctx context.Context, user domain.User, role domain.RoleDefinition) (*domain.RoleDefinition, error) {
	if err := s.requireUserManager(ctx, user); err != nil {
		return nil, err
	}

	if role.ID == "" {
		role.ID = uuid.New().String()
	}
	role.CompanyID = user.CompanyID
	if err := validateRole(role); err != nil {
		return nil, err
	}

	if _, err := s.roleRepo.FindByID(ctx, user.CompanyID, role.ID); err == nil {
		return nil, response.NewAppError(response.ErrCodeAlreadyExists, "A role with this id already exists", "")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to check role", err.Error())
	}

	rec, err := roleToRecord(role)
	if err != nil {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to encode role", err.Error())
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if err := s.roleRepo.Create(ctx, rec); err != nil {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to create role", err.Error())
	}

	s.logger.Info("Role created",
		zap.String("company_id", role.CompanyID),
		zap.String("role_id", role.ID),
		zap.String("actor_id", user.ID),
	)
	return &role, nil
}

func (s *roleServiceImpl) UpdateRole(ctx context.Context, user domain.User, roleID string, role domain.RoleDefinition) (*domain.RoleDefinition, error) {
	if err := s.requireUserManager(ctx, user); err != nil {
		return nil, err
	}

	role.ID = roleID
	role.CompanyID = user.CompanyID
	if err := validateRole(role); err != nil {
		return nil, err
	}

	rec, err := roleToRecord(role)
	if err != nil {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to encode role", err.Error())
	}
	rec.UpdatedAt = time.Now().UTC()
	if err := s.roleRepo.Update(ctx, rec); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFoundError("Role not found", "")
		}
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to update role", err.Error())
	}

	s.logger.Info("Role updated",
		zap.String("company_id", role.CompanyID),
		zap.String("role_id", role.ID),
		zap.String("actor_id", user.ID),
	)
	return &role, nil
}

// DeleteRole removes a custom role. Users still pointing at it fall back to
// their built-in role on their next request.
func (s *roleServiceImpl) DeleteRole(ctx context.Context, user domain.User, roleID string) error {
	if err := s.requireUserManager(ctx, user); err != nil {
		return err
	}
	if err := s.roleRepo.Delete(ctx, user.CompanyID, roleID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NewNotFoundError("Role not found", "")
		}
		return response.NewAppError(response.ErrCodeInternal, "Failed to delete role", err.Error())
	}

	s.logger.Info("Role deleted",
		zap.String("company_id", user.CompanyID),
		zap.String("role_id", roleID),
		zap.String("actor_id", user.ID),
	)
	return nil
}

func validateRole(role domain.RoleDefinition) error {
	if strings.TrimSpace(role.Name) == "" {
		return response.NewValidationError("Role name is required", "")
	}
	if permission.IsBuiltinRole(role.ID) {
		return response.NewValidationError(fmt.Sprintf("Role id %q is reserved", role.ID), "")
	}
	for pipelineID, access := range role.Permissions.PipelineAccess {
		switch access.Level {
		case domain.AccessNone, domain.AccessView, domain.AccessEdit, domain.AccessFull:
		default:
			return response.NewValidationError(
				fmt.Sprintf("Invalid access level %q for pipeline %q", access.Level, pipelineID), "")
		}
	}
	return nil
}
