package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/dto"
	"crm-pipeline-api/internal/response"
	"crm-pipeline-api/internal/schema"
	"crm-pipeline-api/internal/service"
)

func setupSchemaRouter(svc *MockSchemaService) *gin.Engine {
	h := NewSchemaHandler(svc, zap.NewNop())
	r := newTestRouter(&testUser)
	r.GET("/schemas", h.ListSchemas)
	r.POST("/schemas/import", h.ImportFile)
	r.POST("/schemas/refine", h.Refine)
	r.DELETE("/schemas/files/:fileId", h.DeleteFile)
	return r
}

func TestSchemaHandler_ImportFile(t *testing.T) {
	var gotName string
	var gotRows [][]string
	var gotOpts schema.BuildOptions
	svc := &MockSchemaService{
		ImportFileFunc: func(ctx context.Context, user domain.User, fileName string, rows [][]string, opts schema.BuildOptions) (*service.ImportResult, error) {
			gotName, gotRows, gotOpts = fileName, rows, opts
			return &service.ImportResult{
				File:   domain.UploadedFile{BaseModel: domain.BaseModel{ID: uuid.New()}, FileName: fileName, Table: "leads"},
				Schema: domain.TableSchema{TableName: "leads", RowCount: len(rows) - 1},
			}, nil
		},
	}
	r := setupSchemaRouter(svc)

	req := dto.ImportSchemaRequest{
		FileName:      "Leads.csv",
		Rows:          [][]string{{"id", "name"}, {"1", "Ada"}},
		InferFromRows: 10,
	}
	w := performRequest(r, http.MethodPost, "/schemas/import", req)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Leads.csv", gotName)
	assert.Equal(t, req.Rows, gotRows)
	assert.Equal(t, 10, gotOpts.InferFromRows)

	var result service.ImportResult
	decodeData(t, w, &result)
	assert.Equal(t, "leads", result.Schema.TableName)
	assert.Equal(t, 1, result.Schema.RowCount)

	w = performRequest(r, http.MethodPost, "/schemas/import", map[string]interface{}{"rows": [][]string{{"id"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "fileName is required")

	svc.ImportFileFunc = func(ctx context.Context, user domain.User, fileName string, rows [][]string, opts schema.BuildOptions) (*service.ImportResult, error) {
		return nil, response.NewAppError(response.ErrCodeAlreadyExists, "Table already exists", "leads")
	}
	w = performRequest(r, http.MethodPost, "/schemas/import", req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSchemaHandler_ListSchemas(t *testing.T) {
	svc := &MockSchemaService{
		ListSchemasFunc: func(ctx context.Context, user domain.User) ([]domain.TableSchema, error) {
			return []domain.TableSchema{{TableName: "leads"}, {TableName: "tutors"}}, nil
		},
	}
	w := performRequest(setupSchemaRouter(svc), http.MethodGet, "/schemas", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list dto.SchemaListResponse
	decodeData(t, w, &list)
	assert.Len(t, list.Schemas, 2)
	assert.Empty(t, list.Files)
}

func TestSchemaHandler_DeleteFile(t *testing.T) {
	id := uuid.New()
	var got uuid.UUID
	svc := &MockSchemaService{
		DeleteFileFunc: func(ctx context.Context, user domain.User, fileID uuid.UUID) error {
			got = fileID
			return nil
		},
	}
	r := setupSchemaRouter(svc)

	w := performRequest(r, http.MethodDelete, "/schemas/files/"+id.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, id, got)

	w = performRequest(r, http.MethodDelete, "/schemas/files/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSchemaHandler_RefineUnavailable(t *testing.T) {
	svc := &MockSchemaService{
		RefineFunc: func(ctx context.Context, user domain.User) ([]domain.TableSchema, error) {
			return nil, response.NewTransportError("Refinement failed", errors.New("503"))
		},
	}
	w := performRequest(setupSchemaRouter(svc), http.MethodPost, "/schemas/refine", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
