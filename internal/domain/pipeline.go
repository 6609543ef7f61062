package domain

import (
	"time"

	"gorm.io/datatypes"
)

// FieldType represents the type of a pipeline field
type FieldType string

const (
	FieldTypeText        FieldType = "text"
	FieldTypeTextarea    FieldType = "textarea"
	FieldTypeNumber      FieldType = "number"
	FieldTypeCurrency    FieldType = "currency"
	FieldTypeDate        FieldType = "date"
	FieldTypeBoolean     FieldType = "boolean"
	FieldTypeEmail       FieldType = "email"
	FieldTypePhone       FieldType = "phone"
	FieldTypeURL         FieldType = "url"
	FieldTypeSelect      FieldType = "select"
	FieldTypeMultiSelect FieldType = "multiselect"
	FieldTypeRelation    FieldType = "relation"
)

// IsValid reports whether t is one of the known field types
func (t FieldType) IsValid() bool {
	switch t {
	case FieldTypeText, FieldTypeTextarea, FieldTypeNumber, FieldTypeCurrency, FieldTypeDate,
		FieldTypeBoolean, FieldTypeEmail, FieldTypePhone, FieldTypeURL, FieldTypeSelect,
		FieldTypeMultiSelect, FieldTypeRelation:
		return true
	default:
		return false
	}
}

// HasOptions reports whether values of t are picked from FieldDefinition.Options
func (t FieldType) HasOptions() bool {
	return t == FieldTypeSelect || t == FieldTypeMultiSelect
}

// AutoActionType names what happens when an entity enters a stage
type AutoActionType string

const (
	AutoActionNotify AutoActionType = "notify"
)

// AutoAction is an action triggered when an entity moves into a stage
type AutoAction struct {
	Type   AutoActionType         `json:"type"`
	Config map[string]interface{} `json:"config,omitempty"`
}

// StageDefinition is one step of a pipeline workflow
type StageDefinition struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Color              string       `json:"color"`
	Order              int          `json:"order"`
	AllowedTransitions []string     `json:"allowedTransitions,omitempty"`
	AutoActions        []AutoAction `json:"autoActions,omitempty"`
}

// FieldDefinition is one typed attribute of a pipeline entity
type FieldDefinition struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Type           FieldType `json:"type"`
	Label          string    `json:"label"`
	Required       bool      `json:"required"`
	IsFinancial    bool      `json:"isFinancial"`
	Searchable     bool      `json:"searchable"`
	Sortable       bool      `json:"sortable"`
	Visible        bool      `json:"visible"`
	Options        []string  `json:"options,omitempty"`
	RelationTarget string    `json:"relationTarget,omitempty"`
	Order          int       `json:"order"`
}

// PipelineConfig describes a tenant-defined entity type
type PipelineConfig struct {
	ID         string            `json:"id"`
	CompanyID  string            `json:"companyId"`
	EntityType string            `json:"entityType"`
	Name       string            `json:"name"`
	Stages     []StageDefinition `json:"stages"`
	Fields     []FieldDefinition `json:"fields"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// PipelineRecord is the persisted form of a PipelineConfig
type PipelineRecord struct {
	ID         string         `gorm:"type:varchar(100);primaryKey" json:"id"`
	CompanyID  string         `gorm:"type:varchar(100);not null;index:idx_pipeline_records_company_id;uniqueIndex:uq_pipeline_records_company_entity,priority:1" json:"companyId"`
	EntityType string         `gorm:"type:varchar(100);not null;uniqueIndex:uq_pipeline_records_company_entity,priority:2" json:"entityType"`
	Name       string         `gorm:"type:varchar(255);not null" json:"name"`
	Stages     datatypes.JSON `gorm:"type:jsonb" json:"stages"`
	Fields     datatypes.JSON `gorm:"type:jsonb" json:"fields"`
	CreatedAt  time.Time      `gorm:"not null" json:"createdAt"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updatedAt"`
}

// TableName specifies the table name for PipelineRecord
func (PipelineRecord) TableName() string {
	return "pipeline_records"
}
