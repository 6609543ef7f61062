package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Built-in role names
const (
	RoleAdmin      = "admin"
	RoleDev        = "dev"
	RoleManagement = "management"
	RoleSales      = "sales"
	RoleSupport    = "support"
	RoleTeam       = "team"
)

// AccessLevel is the per-pipeline access grade
type AccessLevel string

const (
	AccessNone AccessLevel = "none"
	AccessView AccessLevel = "view"
	AccessEdit AccessLevel = "edit"
	AccessFull AccessLevel = "full"
)

// PipelineAccess configures a role's access to one pipeline.
// Nil flags mean "not configured"; how a nil flag resolves depends on the action.
type PipelineAccess struct {
	Level         AccessLevel `json:"level"`
	CanCreate     *bool       `json:"canCreate,omitempty"`
	CanDelete     *bool       `json:"canDelete,omitempty"`
	CanMoveStages *bool       `json:"canMoveStages,omitempty"`
	VisibleStages []string    `json:"visibleStages,omitempty"`
}

// RolePermissions is the capability set of a role
type RolePermissions struct {
	CanViewAllData       bool                      `json:"canViewAllData"`
	CanEditAllData       bool                      `json:"canEditAllData"`
	CanDeleteRecords     bool                      `json:"canDeleteRecords"`
	CanViewFinancialData bool                      `json:"canViewFinancialData"`
	CanManageUsers       bool                      `json:"canManageUsers"`
	CanManagePipelines   bool                      `json:"canManagePipelines"`
	CanExportData        bool                      `json:"canExportData"`
	CanViewReports       bool                      `json:"canViewReports"`
	PipelineAccess       map[string]PipelineAccess `json:"pipelineAccess,omitempty"`
}

// RoleDefinition is a company-defined custom role
type RoleDefinition struct {
	ID          string          `json:"id"`
	CompanyID   string          `json:"companyId"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Permissions RolePermissions `json:"permissions"`
}

// User is the already-authenticated caller supplied by the auth layer
type User struct {
	ID        string `json:"id"`
	CompanyID string `json:"companyId"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	RoleID    string `json:"roleId,omitempty"`
}

// Company is a tenant
type Company struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoleRecord is the persisted form of a RoleDefinition
type RoleRecord struct {
	ID          string         `gorm:"type:varchar(100);primaryKey" json:"id"`
	CompanyID   string         `gorm:"type:varchar(100);not null;index:idx_role_records_company_id" json:"companyId"`
	Name        string         `gorm:"type:varchar(100);not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Permissions datatypes.JSON `gorm:"type:jsonb" json:"permissions"`
	CreatedAt   time.Time      `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updatedAt"`
}

// TableName specifies the table name for RoleRecord
func (RoleRecord) TableName() string {
	return "role_records"
}
