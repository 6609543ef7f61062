package domain

import (
	"time"

	"gorm.io/datatypes"
)

// CRMEntity is one record of a pipeline's entity type
type CRMEntity struct {
	ID        string                 `json:"id"`
	Stage     string                 `json:"stage"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
	Data      map[string]interface{} `json:"data"`
}

// Clone returns a copy whose Data map can be modified independently
func (e CRMEntity) Clone() CRMEntity {
	out := e
	if e.Data != nil {
		out.Data = make(map[string]interface{}, len(e.Data))
		for k, v := range e.Data {
			out.Data[k] = v
		}
	}
	return out
}

// EntityRecord is the relational storage row of a CRMEntity
type EntityRecord struct {
	ID         string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	CompanyID  string         `gorm:"type:varchar(100);primaryKey;index:idx_entity_records_scope,priority:1" json:"companyId"`
	EntityType string         `gorm:"type:varchar(100);primaryKey;index:idx_entity_records_scope,priority:2" json:"entityType"`
	Stage      string         `gorm:"type:varchar(100);not null;index:idx_entity_records_stage" json:"stage"`
	Data       datatypes.JSON `gorm:"type:jsonb" json:"data"`
	CreatedAt  time.Time      `gorm:"not null" json:"createdAt"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updatedAt"`
}

// TableName specifies the table name for EntityRecord
func (EntityRecord) TableName() string {
	return "entity_records"
}
