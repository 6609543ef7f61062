package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/metrics"
)

const backendRelational = "relational"

// RelationalAdapter stores entities as rows of entity_records with the data
// map in a JSON column. Filtering happens in ApplyQuery after the company's
// rows of one entity type are loaded, so results match the other backends.
type RelationalAdapter struct {
	db        *gorm.DB
	companyID string
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewRelationalAdapter(db *gorm.DB, companyID string, logger *zap.Logger, m *metrics.Metrics) *RelationalAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelationalAdapter{db: db, companyID: companyID, logger: logger, metrics: m}
}

func RelationalFactory(db *gorm.DB, logger *zap.Logger, m *metrics.Metrics) Factory {
	return func(companyID string) Adapter {
		return NewRelationalAdapter(db, companyID, logger, m)
	}
}

func (a *RelationalAdapter) scope(ctx context.Context, entityType string) *gorm.DB {
	return a.db.WithContext(ctx).
		Model(&domain.EntityRecord{}).
		Where("company_id = ? AND entity_type = ?", a.companyID, entityType)
}

func (a *RelationalAdapter) toRecord(entityType string, e domain.CRMEntity) (*domain.EntityRecord, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("encode entity %s: %w", e.ID, err)
	}
	return &domain.EntityRecord{
		ID:         e.ID,
		CompanyID:  a.companyID,
		EntityType: entityType,
		Stage:      e.Stage,
		Data:       datatypes.JSON(data),
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}, nil
}

func toEntity(rec domain.EntityRecord) (domain.CRMEntity, error) {
	e := domain.CRMEntity{
		ID:        rec.ID,
		Stage:     rec.Stage,
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
		Data:      map[string]interface{}{},
	}
	if len(rec.Data) > 0 {
		if err := json.Unmarshal(rec.Data, &e.Data); err != nil {
			return e, fmt.Errorf("decode entity %s: %w", rec.ID, err)
		}
		if e.Data == nil {
			e.Data = map[string]interface{}{}
		}
	}
	return e, nil
}

func (a *RelationalAdapter) toEntities(records []domain.EntityRecord) []domain.CRMEntity {
	out := make([]domain.CRMEntity, 0, len(records))
	for _, rec := range records {
		e, err := toEntity(rec)
		if err != nil {
			a.logger.Warn("Skipping undecodable entity row",
				zap.String("company_id", a.companyID),
				zap.String("entity_id", rec.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, e)
	}
	return out
}

func (a *RelationalAdapter) TestConnection(ctx context.Context) (err error) {
	defer func(start time.Time) { observe(a.metrics, backendRelational, "test_connection", start, err) }(time.Now())

	sqlDB, dbErr := a.db.DB()
	if dbErr != nil {
		return &TransportError{Op: "ping", Err: dbErr}
	}
	if pingErr := sqlDB.PingContext(ctx); pingErr != nil {
		return &TransportError{Op: "ping", Err: pingErr}
	}
	return nil
}

func (a *RelationalAdapter) GetAll(ctx context.Context, entityType string, filters Filters) (page *Page, err error) {
	defer func(start time.Time) { observe(a.metrics, backendRelational, "get_all", start, err) }(time.Now())

	var records []domain.EntityRecord
	if err := a.scope(ctx, entityType).Find(&records).Error; err != nil {
		return nil, &TransportError{Op: "get_all", Err: err}
	}
	return ApplyQuery(a.toEntities(records), filters), nil
}

func (a *RelationalAdapter) GetByID(ctx context.Context, entityType, id string) (e *domain.CRMEntity, err error) {
	defer func(start time.Time) { observe(a.metrics, backendRelational, "get_by_id", start, err) }(time.Now())
	return a.find(a.scope(ctx, entityType), id)
}

func (a *RelationalAdapter) find(tx *gorm.DB, id string) (*domain.CRMEntity, error) {
	var rec domain.EntityRecord
	if err := tx.Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntityNotFound
		}
		return nil, &TransportError{Op: "get_by_id", Err: err}
	}
	e, err := toEntity(rec)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (a *RelationalAdapter) Create(ctx context.Context, entityType string, input EntityInput) (e *domain.CRMEntity, err error) {
	defer func(start time.Time) { observe(a.metrics, backendRelational, "create", start, err) }(time.Now())

	entity := newEntity(uuid.NewString(), input)
	rec, err := a.toRecord(entityType, entity)
	if err != nil {
		return nil, err
	}
	if err := a.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, &TransportError{Op: "create", Err: err}
	}
	return &entity, nil
}

func (a *RelationalAdapter) Update(ctx context.Context, entityType, id string, patch EntityPatch) (e *domain.CRMEntity, err error) {
	defer func(start time.Time) { observe(a.metrics, backendRelational, "update", start, err) }(time.Now())

	var merged domain.CRMEntity
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := a.find(tx.Model(&domain.EntityRecord{}).
			Where("company_id = ? AND entity_type = ?", a.companyID, entityType), id)
		if err != nil {
			return err
		}
		merged = applyPatch(*current, patch)
		rec, err := a.toRecord(entityType, merged)
		if err != nil {
			return err
		}
		if err := tx.Model(&domain.EntityRecord{}).
			Where("company_id = ? AND entity_type = ? AND id = ?", a.companyID, entityType, id).
			Updates(map[string]interface{}{
				"stage":      rec.Stage,
				"data":       rec.Data,
				"updated_at": rec.UpdatedAt,
			}).Error; err != nil {
			return &TransportError{Op: "update", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

func (a *RelationalAdapter) Delete(ctx context.Context, entityType, id string) (err error) {
	defer func(start time.Time) { observe(a.metrics, backendRelational, "delete", start, err) }(time.Now())

	result := a.db.WithContext(ctx).
		Where("company_id = ? AND entity_type = ? AND id = ?", a.companyID, entityType, id).
		Delete(&domain.EntityRecord{})
	if result.Error != nil {
		return &TransportError{Op: "delete", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return ErrEntityNotFound
	}
	return nil
}

func (a *RelationalAdapter) MoveStage(ctx context.Context, entityType, id, stage string) (*domain.CRMEntity, error) {
	return a.Update(ctx, entityType, id, EntityPatch{Stage: &stage})
}

func (a *RelationalAdapter) GetByStage(ctx context.Context, entityType, stage string) (out []domain.CRMEntity, err error) {
	defer func(start time.Time) { observe(a.metrics, backendRelational, "get_by_stage", start, err) }(time.Now())

	var records []domain.EntityRecord
	if err := a.scope(ctx, entityType).Where("stage = ?", stage).Find(&records).Error; err != nil {
		return nil, &TransportError{Op: "get_by_stage", Err: err}
	}
	return defaultOrder(a.toEntities(records)), nil
}

type stageCount struct {
	Stage string
	Count int
}

func (a *RelationalAdapter) GetStats(ctx context.Context, entityType string) (st *Stats, err error) {
	defer func(start time.Time) { observe(a.metrics, backendRelational, "get_stats", start, err) }(time.Now())

	var rows []stageCount
	if err := a.scope(ctx, entityType).
		Select("stage, COUNT(*) AS count").
		Group("stage").
		Scan(&rows).Error; err != nil {
		return nil, &TransportError{Op: "get_stats", Err: err}
	}

	st = &Stats{ByStage: make(map[string]int, len(rows))}
	for _, r := range rows {
		st.ByStage[r.Stage] = r.Count
		st.Total += r.Count
	}
	return st, nil
}
