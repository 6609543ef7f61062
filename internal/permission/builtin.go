package permission

import (
	"crm-pipeline-api/internal/domain"
)

// AllPipelines is the PipelineAccess key that applies to every pipeline
// without an entry of its own
const AllPipelines = "*"

func boolPtr(b bool) *bool { return &b }

// builtinRoles is the fixed permission table for role names a user can carry
// without a custom role. Entries are never handed out directly; see
// BuiltinPermissions.
var builtinRoles = map[string]domain.RolePermissions{
	domain.RoleAdmin: {
		CanViewAllData:       true,
		CanEditAllData:       true,
		CanDeleteRecords:     true,
		CanViewFinancialData: true,
		CanManageUsers:       true,
		CanManagePipelines:   true,
		CanExportData:        true,
		CanViewReports:       true,
	},
	domain.RoleDev: {
		CanViewAllData:       true,
		CanEditAllData:       true,
		CanDeleteRecords:     true,
		CanViewFinancialData: true,
		CanManageUsers:       true,
		CanManagePipelines:   true,
		CanExportData:        true,
		CanViewReports:       true,
	},
	domain.RoleManagement: {
		CanViewAllData:       true,
		CanEditAllData:       true,
		CanDeleteRecords:     true,
		CanViewFinancialData: true,
		CanManageUsers:       true,
		CanExportData:        true,
		CanViewReports:       true,
	},
	domain.RoleSales: {
		CanViewFinancialData: true,
		CanViewReports:       true,
		PipelineAccess: map[string]domain.PipelineAccess{
			AllPipelines: {Level: domain.AccessEdit, CanDelete: boolPtr(false)},
		},
	},
	domain.RoleSupport: {
		PipelineAccess: map[string]domain.PipelineAccess{
			AllPipelines: {Level: domain.AccessView},
		},
	},
	domain.RoleTeam: {},
}

// IsBuiltinRole reports whether name is one of the fixed role names
func IsBuiltinRole(name string) bool {
	_, ok := builtinRoles[name]
	return ok
}

// BuiltinPermissions returns a copy of the built-in permission set for name.
// Unknown names get the team set.
func BuiltinPermissions(name string) domain.RolePermissions {
	perms, ok := builtinRoles[name]
	if !ok {
		perms = builtinRoles[domain.RoleTeam]
	}
	return copyPermissions(perms)
}

func copyPermissions(p domain.RolePermissions) domain.RolePermissions {
	out := p
	if p.PipelineAccess != nil {
		out.PipelineAccess = make(map[string]domain.PipelineAccess, len(p.PipelineAccess))
		for k, v := range p.PipelineAccess {
			out.PipelineAccess[k] = copyAccess(v)
		}
	}
	return out
}

func copyAccess(a domain.PipelineAccess) domain.PipelineAccess {
	out := a
	if a.CanCreate != nil {
		out.CanCreate = boolPtr(*a.CanCreate)
	}
	if a.CanDelete != nil {
		out.CanDelete = boolPtr(*a.CanDelete)
	}
	if a.CanMoveStages != nil {
		out.CanMoveStages = boolPtr(*a.CanMoveStages)
	}
	if a.VisibleStages != nil {
		out.VisibleStages = append([]string(nil), a.VisibleStages...)
	}
	return out
}
