// Package permission evaluates role-based access to pipelines, stages, fields
// and entity actions.
//
// Every function is pure. Unknown roles resolve to the team role and missing
// pipeline entries resolve to no access, so ambiguity always denies.
package permission

import (
	"crm-pipeline-api/internal/domain"
)

// ResolvePermissions returns the effective permission set of user. A custom
// role referenced by RoleID wins when it exists for the user's company;
// otherwise the built-in table for user.Role applies, with team as the fallback.
func ResolvePermissions(user domain.User, roles []domain.RoleDefinition) domain.RolePermissions {
	if user.RoleID != "" {
		for _, r := range roles {
			if r.ID != user.RoleID {
				continue
			}
			if r.CompanyID != "" && r.CompanyID != user.CompanyID {
				continue
			}
			return copyPermissions(r.Permissions)
		}
	}
	return BuiltinPermissions(user.Role)
}

// CanAccessPipeline reports whether user may see the pipeline at all
func CanAccessPipeline(user domain.User, pipelineID string, roles []domain.RoleDefinition) bool {
	return NewEvaluator(user, roles).CanAccessPipeline(pipelineID)
}

// AccessLevel returns the effective level on a pipeline; none when no entry applies
func AccessLevel(user domain.User, pipelineID string, roles []domain.RoleDefinition) domain.AccessLevel {
	return NewEvaluator(user, roles).AccessLevel(pipelineID)
}

// CanPerformAction reports whether user may create, edit, delete or move
// entities of the pipeline. Delete on edit level fails closed.
func CanPerformAction(user domain.User, pipelineID string, action Action, roles []domain.RoleDefinition) bool {
	return NewEvaluator(user, roles).CanPerformAction(pipelineID, action)
}

// HasCapability checks one global capability such as canManagePipelines
func HasCapability(user domain.User, c Capability, roles []domain.RoleDefinition) bool {
	return NewEvaluator(user, roles).HasCapability(c)
}

// FilterFieldsForRole drops financial fields unless the role can view them.
// fields is not modified.
func FilterFieldsForRole(fields []domain.FieldDefinition, user domain.User, roles []domain.RoleDefinition) []domain.FieldDefinition {
	return NewEvaluator(user, roles).FilterFields(fields)
}

// FilterDataForRole returns copies of records without the values of hidden
// financial fields
func FilterDataForRole(records []domain.CRMEntity, fields []domain.FieldDefinition, user domain.User, roles []domain.RoleDefinition) []domain.CRMEntity {
	return NewEvaluator(user, roles).FilterData(records, fields)
}

// VisibleStages lists the stage ids of cfg the user may read, in display order
func VisibleStages(user domain.User, cfg domain.PipelineConfig, roles []domain.RoleDefinition) []string {
	return NewEvaluator(user, roles).VisibleStages(cfg)
}

// CanViewStage reports whether entities in stageID are readable by user
func CanViewStage(user domain.User, cfg domain.PipelineConfig, stageID string, roles []domain.RoleDefinition) bool {
	return NewEvaluator(user, roles).CanViewStage(cfg, stageID)
}
