package dto

import (
	"crm-pipeline-api/internal/domain"
)

// ImportSchemaRequest carries a parsed file. Rows[0] is the header row.
type ImportSchemaRequest struct {
	FileName      string     `json:"fileName" binding:"required"`
	Rows          [][]string `json:"rows" binding:"required"`
	InferFromRows int        `json:"inferFromRows" binding:"omitempty,min=0"`
}

// SchemaListResponse is every schema and file of the caller's company
type SchemaListResponse struct {
	Schemas []domain.TableSchema  `json:"schemas"`
	Files   []domain.UploadedFile `json:"files"`
}

// MoveStageRequest names the target stage of a move
type MoveStageRequest struct {
	Stage string `json:"stage" binding:"required"`
}

// HealthResponse reports storage reachability
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend,omitempty"`
}
