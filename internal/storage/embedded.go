package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/metrics"
	"crm-pipeline-api/internal/storage/kv"
)

const backendEmbedded = "embedded"

// EmbeddedAdapter keeps entities as JSON documents in a kv.Store, one
// collection per company and entity type.
//
// Update and MoveStage read, merge and write without a lock or version check.
// Two concurrent updates of one entity both succeed and the later write wins;
// the earlier patch is lost.
type EmbeddedAdapter struct {
	store     kv.Store
	companyID string
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewEmbeddedAdapter binds store to one company
func NewEmbeddedAdapter(store kv.Store, companyID string, logger *zap.Logger, m *metrics.Metrics) *EmbeddedAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddedAdapter{store: store, companyID: companyID, logger: logger, metrics: m}
}

// EmbeddedFactory shares one store between all companies
func EmbeddedFactory(store kv.Store, logger *zap.Logger, m *metrics.Metrics) Factory {
	return func(companyID string) Adapter {
		return NewEmbeddedAdapter(store, companyID, logger, m)
	}
}

// collection names the store collection of one (company, entity type) pair.
// The company id is length-prefixed so no pair of ids can produce the same
// name.
func (a *EmbeddedAdapter) collection(entityType string) string {
	return collectionName(a.companyID, entityType)
}

func collectionName(companyID, entityType string) string {
	return strconv.Itoa(len(companyID)) + ":" + companyID + ":" + entityType
}

func (a *EmbeddedAdapter) TestConnection(ctx context.Context) (err error) {
	defer func(start time.Time) { observe(a.metrics, backendEmbedded, "test_connection", start, err) }(time.Now())

	if pingErr := a.store.Ping(ctx); pingErr != nil {
		return &TransportError{Op: "ping", Err: pingErr}
	}
	return nil
}

func (a *EmbeddedAdapter) loadAll(ctx context.Context, entityType string) ([]domain.CRMEntity, error) {
	raw, err := a.store.List(ctx, a.collection(entityType))
	if err != nil {
		return nil, &TransportError{Op: "list", Err: err}
	}
	out := make([]domain.CRMEntity, 0, len(raw))
	for _, b := range raw {
		var e domain.CRMEntity
		if err := json.Unmarshal(b, &e); err != nil {
			a.logger.Warn("Skipping undecodable entity",
				zap.String("company_id", a.companyID),
				zap.String("entity_type", entityType),
				zap.Error(err),
			)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (a *EmbeddedAdapter) load(ctx context.Context, entityType, id string) (*domain.CRMEntity, error) {
	b, err := a.store.Get(ctx, a.collection(entityType), id)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, &TransportError{Op: "get", Err: err}
	}
	var e domain.CRMEntity
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode entity %s: %w", id, err)
	}
	return &e, nil
}

func (a *EmbeddedAdapter) save(ctx context.Context, entityType string, e domain.CRMEntity) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entity %s: %w", e.ID, err)
	}
	if err := a.store.Put(ctx, a.collection(entityType), e.ID, b); err != nil {
		return &TransportError{Op: "put", Err: err}
	}
	return nil
}

func (a *EmbeddedAdapter) GetAll(ctx context.Context, entityType string, filters Filters) (page *Page, err error) {
	defer func(start time.Time) { observe(a.metrics, backendEmbedded, "get_all", start, err) }(time.Now())

	all, err := a.loadAll(ctx, entityType)
	if err != nil {
		return nil, err
	}
	return ApplyQuery(all, filters), nil
}

func (a *EmbeddedAdapter) GetByID(ctx context.Context, entityType, id string) (e *domain.CRMEntity, err error) {
	defer func(start time.Time) { observe(a.metrics, backendEmbedded, "get_by_id", start, err) }(time.Now())
	return a.load(ctx, entityType, id)
}

func (a *EmbeddedAdapter) Create(ctx context.Context, entityType string, input EntityInput) (e *domain.CRMEntity, err error) {
	defer func(start time.Time) { observe(a.metrics, backendEmbedded, "create", start, err) }(time.Now())

	entity := newEntity(uuid.NewString(), input)
	if err := a.save(ctx, entityType, entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

func (a *EmbeddedAdapter) Update(ctx context.Context, entityType, id string, patch EntityPatch) (e *domain.CRMEntity, err error) {
	defer func(start time.Time) { observe(a.metrics, backendEmbedded, "update", start, err) }(time.Now())

	current, err := a.load(ctx, entityType, id)
	if err != nil {
		return nil, err
	}
	merged := applyPatch(*current, patch)
	if err := a.save(ctx, entityType, merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

func (a *EmbeddedAdapter) Delete(ctx context.Context, entityType, id string) (err error) {
	defer func(start time.Time) { observe(a.metrics, backendEmbedded, "delete", start, err) }(time.Now())

	err = a.store.Delete(ctx, a.collection(entityType), id)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return ErrEntityNotFound
	}
	if err != nil {
		return &TransportError{Op: "delete", Err: err}
	}
	return nil
}

func (a *EmbeddedAdapter) MoveStage(ctx context.Context, entityType, id, stage string) (*domain.CRMEntity, error) {
	return a.Update(ctx, entityType, id, EntityPatch{Stage: &stage})
}

func (a *EmbeddedAdapter) GetByStage(ctx context.Context, entityType, stage string) (out []domain.CRMEntity, err error) {
	defer func(start time.Time) { observe(a.metrics, backendEmbedded, "get_by_stage", start, err) }(time.Now())

	all, err := a.loadAll(ctx, entityType)
	if err != nil {
		return nil, err
	}
	return filterStage(all, stage), nil
}

func (a *EmbeddedAdapter) GetStats(ctx context.Context, entityType string) (st *Stats, err error) {
	defer func(start time.Time) { observe(a.metrics, backendEmbedded, "get_stats", start, err) }(time.Now())

	all, err := a.loadAll(ctx, entityType)
	if err != nil {
		return nil, err
	}
	return statsOf(all), nil
}
