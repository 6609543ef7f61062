// Package storage defines the entity persistence contract and its backends.
//
// Every Adapter is bound to one company at construction. Filtering, sorting
// and pagination semantics live in ApplyQuery so all backends answer GetAll
// identically.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-pipeline-api/internal/domain"
)

const (
	// DefaultStage is used when Create is called without a stage
	DefaultStage = "new"
	// DefaultLimit is the page size when Filters.Limit is not positive
	DefaultLimit = 50
	// MaxLimit caps Filters.Limit
	MaxLimit = 1000
)

// ErrEntityNotFound is returned when the id does not exist for the entity type
var ErrEntityNotFound = errors.New("entity not found")

// ErrInvalidInput is returned when a backend refuses a request as malformed
var ErrInvalidInput = errors.New("invalid storage request")

// TransportError is an I/O or network failure talking to a backend.
// Adapters never retry; callers decide.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("storage transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is, or wraps, a *TransportError
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// SortOrder is asc or desc
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// DateRange bounds a date field; both bounds are inclusive and optional.
// Field may be createdAt, updatedAt or any data field.
type DateRange struct {
	Field string     `json:"field"`
	From  *time.Time `json:"from,omitempty"`
	To    *time.Time `json:"to,omitempty"`
}

// Filters selects one page of entities
type Filters struct {
	Search string `json:"search,omitempty"`
	// SearchExclude names data fields Search does not look at
	SearchExclude []string   `json:"searchExclude,omitempty"`
	Stages        []string   `json:"stages,omitempty"`
	DateRange     *DateRange `json:"dateRange,omitempty"`
	SortBy        string     `json:"sortBy,omitempty"`
	SortOrder     SortOrder  `json:"sortOrder,omitempty"`
	Page          int        `json:"page,omitempty"`
	Limit         int        `json:"limit,omitempty"`
}

// Page is one page of GetAll results
type Page struct {
	Items      []domain.CRMEntity `json:"items"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
	TotalPages int                `json:"totalPages"`
}

// Stats counts the entities of one entity type
type Stats struct {
	Total   int            `json:"total"`
	ByStage map[string]int `json:"byStage"`
}

// EntityInput is the payload of Create
type EntityInput struct {
	Stage string                 `json:"stage,omitempty"`
	Data  map[string]interface{} `json:"data"`
}

// EntityPatch is a partial update. Data keys are merged into the stored data;
// a nil value removes the key.
type EntityPatch struct {
	Stage *string                `json:"stage,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// Adapter is the persistence contract the entity service is written against
type Adapter interface {
	TestConnection(ctx context.Context) error
	GetAll(ctx context.Context, entityType string, filters Filters) (*Page, error)
	GetByID(ctx context.Context, entityType, id string) (*domain.CRMEntity, error)
	Create(ctx context.Context, entityType string, input EntityInput) (*domain.CRMEntity, error)
	Update(ctx context.Context, entityType, id string, patch EntityPatch) (*domain.CRMEntity, error)
	Delete(ctx context.Context, entityType, id string) error
	MoveStage(ctx context.Context, entityType, id, stage string) (*domain.CRMEntity, error)
	GetByStage(ctx context.Context, entityType, stage string) ([]domain.CRMEntity, error)
	GetStats(ctx context.Context, entityType string) (*Stats, error)
}

// Factory returns the adapter of one company
type Factory func(companyID string) Adapter

// now is the clock used for entity timestamps
var now = func() time.Time { return time.Now().UTC() }

func newEntity(id string, input EntityInput) domain.CRMEntity {
	ts := now()
	stage := input.Stage
	if stage == "" {
		stage = DefaultStage
	}
	data := make(map[string]interface{}, len(input.Data))
	for k, v := range input.Data {
		data[k] = v
	}
	return domain.CRMEntity{
		ID:        id,
		Stage:     stage,
		CreatedAt: ts,
		UpdatedAt: ts,
		Data:      data,
	}
}

// applyPatch returns the merged entity; the input is not modified
func applyPatch(e domain.CRMEntity, patch EntityPatch) domain.CRMEntity {
	out := e.Clone()
	if out.Data == nil {
		out.Data = make(map[string]interface{}, len(patch.Data))
	}
	for k, v := range patch.Data {
		if v == nil {
			delete(out.Data, k)
			continue
		}
		out.Data[k] = v
	}
	if patch.Stage != nil && *patch.Stage != "" {
		out.Stage = *patch.Stage
	}
	out.UpdatedAt = now()
	return out
}

func statsOf(entities []domain.CRMEntity) *Stats {
	st := &Stats{Total: len(entities), ByStage: make(map[string]int)}
	for _, e := range entities {
		st.ByStage[e.Stage]++
	}
	return st
}

func filterStage(entities []domain.CRMEntity, stage string) []domain.CRMEntity {
	out := make([]domain.CRMEntity, 0)
	for _, e := range defaultOrder(entities) {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}
