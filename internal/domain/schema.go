package domain

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ColumnType is the inferred storage type of an imported column
type ColumnType string

const (
	ColumnTypeUUID    ColumnType = "UUID"
	ColumnTypeInteger ColumnType = "INTEGER"
	ColumnTypeDecimal ColumnType = "DECIMAL"
	ColumnTypeBoolean ColumnType = "BOOLEAN"
	ColumnTypeDate    ColumnType = "DATE"
	ColumnTypeVarchar ColumnType = "VARCHAR"
	ColumnTypeText    ColumnType = "TEXT"
)

// IsValid reports whether t is one of the known column types
func (t ColumnType) IsValid() bool {
	switch t {
	case ColumnTypeUUID, ColumnTypeInteger, ColumnTypeDecimal, ColumnTypeBoolean,
		ColumnTypeDate, ColumnTypeVarchar, ColumnTypeText:
		return true
	default:
		return false
	}
}

// ColumnReference points a foreign key column at its target
type ColumnReference struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// ColumnDefinition describes one column of an imported table
type ColumnDefinition struct {
	Name         string           `json:"name"`
	Type         ColumnType       `json:"type"`
	IsPrimaryKey bool             `json:"isPrimaryKey"`
	IsForeignKey bool             `json:"isForeignKey"`
	References   *ColumnReference `json:"references,omitempty"`
	SampleValue  string           `json:"sampleValue"`
}

// TableSchema is the inferred definition of one uploaded file.
// SampleRows holds at most MaxSampleRows raw data rows, never the full dataset.
type TableSchema struct {
	TableName  string             `json:"tableName"`
	Columns    []ColumnDefinition `json:"columns"`
	RowCount   int                `json:"rowCount"`
	SampleRows [][]string         `json:"sampleRows"`
}

// MaxSampleRows caps TableSchema.SampleRows
const MaxSampleRows = 5

// Clone returns a deep copy of the schema
func (s TableSchema) Clone() TableSchema {
	out := TableSchema{
		TableName: s.TableName,
		RowCount:  s.RowCount,
	}
	if s.Columns != nil {
		out.Columns = make([]ColumnDefinition, len(s.Columns))
		for i, col := range s.Columns {
			out.Columns[i] = col
			if col.References != nil {
				ref := *col.References
				out.Columns[i].References = &ref
			}
		}
	}
	if s.SampleRows != nil {
		out.SampleRows = make([][]string, len(s.SampleRows))
		for i, row := range s.SampleRows {
			out.SampleRows[i] = append([]string(nil), row...)
		}
	}
	return out
}

// PrimaryKey returns the primary key column, if any
func (s TableSchema) PrimaryKey() (ColumnDefinition, bool) {
	for _, col := range s.Columns {
		if col.IsPrimaryKey {
			return col, true
		}
	}
	return ColumnDefinition{}, false
}

// UploadedFile is the file record that owns one table schema and its rows
type UploadedFile struct {
	BaseModel
	CompanyID string `gorm:"type:varchar(100);not null;index:idx_uploaded_files_company_id" json:"companyId"`
	FileName  string `gorm:"type:varchar(255);not null" json:"fileName"`
	Table     string `gorm:"column:table_name;type:varchar(255);not null" json:"tableName"`
	RowCount  int    `gorm:"not null;default:0" json:"rowCount"`
}

// TableName specifies the table name for UploadedFile
func (UploadedFile) TableName() string {
	return "uploaded_files"
}

// SchemaRecord is the persisted form of a TableSchema
type SchemaRecord struct {
	BaseModel
	CompanyID  string         `gorm:"type:varchar(100);not null;uniqueIndex:uq_schema_records_company_table,priority:1" json:"companyId"`
	FileID     uuid.UUID      `gorm:"type:uuid;not null;index:idx_schema_records_file_id" json:"fileId"`
	Name       string         `gorm:"column:table_name;type:varchar(255);not null;uniqueIndex:uq_schema_records_company_table,priority:2" json:"tableName"`
	Columns    datatypes.JSON `gorm:"type:jsonb" json:"columns"`
	RowCount   int            `gorm:"not null;default:0" json:"rowCount"`
	SampleRows datatypes.JSON `gorm:"type:jsonb" json:"sampleRows"`
}

// TableName specifies the table name for SchemaRecord
func (SchemaRecord) TableName() string {
	return "schema_records"
}

// ImportedRow is one stored data row of an uploaded file
type ImportedRow struct {
	BaseModel
	CompanyID string         `gorm:"type:varchar(100);not null;index:idx_imported_rows_company_table,priority:1" json:"companyId"`
	FileID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_imported_rows_file_id" json:"fileId"`
	Table     string         `gorm:"column:table_name;type:varchar(255);not null;index:idx_imported_rows_company_table,priority:2" json:"tableName"`
	RowIndex  int            `gorm:"not null" json:"rowIndex"`
	Data      datatypes.JSON `gorm:"type:jsonb" json:"data"`
}

// TableName specifies the table name for ImportedRow
func (ImportedRow) TableName() string {
	return "imported_rows"
}
