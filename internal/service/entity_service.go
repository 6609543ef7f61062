package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"crm-pipeline-api/internal/client"
	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/metrics"
	"crm-pipeline-api/internal/permission"
	"crm-pipeline-api/internal/pipeline"
	"crm-pipeline-api/internal/repository"
	"crm-pipeline-api/internal/response"
	"crm-pipeline-api/internal/storage"
)

// EntityService is the permission-aware entry point for pipeline entities.
// Every call resolves the caller's permissions afresh.
type EntityService interface {
	List(ctx context.Context, user domain.User, pipelineID string, filters storage.Filters) (*storage.Page, error)
	Get(ctx context.Context, user domain.User, pipelineID, id string) (*domain.CRMEntity, error)
	Create(ctx context.Context, user domain.User, pipelineID string, input storage.EntityInput) (*domain.CRMEntity, error)
	Update(ctx context.Context, user domain.User, pipelineID, id string, patch storage.EntityPatch) (*domain.CRMEntity, error)
	Delete(ctx context.Context, user domain.User, pipelineID, id string) error
	MoveStage(ctx context.Context, user domain.User, pipelineID, id, stage string) (*domain.CRMEntity, error)
	GetByStage(ctx context.Context, user domain.User, pipelineID, stage string) ([]domain.CRMEntity, error)
	GetStats(ctx context.Context, user domain.User, pipelineID string) (*storage.Stats, error)
	Health(ctx context.Context, companyID string) error
}

type entityServiceImpl struct {
	access       accessLoader
	stores       storage.Factory
	notification client.NotificationClient
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewEntityService creates a new instance of EntityService
func NewEntityService(
	stores storage.Factory,
	pipelineRepo repository.PipelineRepository,
	roleRepo repository.RoleRepository,
	notification client.NotificationClient,
	m *metrics.Metrics,
	logger *zap.Logger,
) EntityService {
	return &entityServiceImpl{
		access: accessLoader{
			pipelineRepo: pipelineRepo,
			roleRepo:     roleRepo,
			metrics:      m,
			logger:       logger,
		},
		stores:       stores,
		notification: notification,
		metrics:      m,
		logger:       logger,
	}
}

// entityScope is what one request works with once access to a pipeline is granted
type entityScope struct {
	user  domain.User
	cfg   domain.PipelineConfig
	eval  *permission.Evaluator
	store storage.Adapter
}

func (s *entityServiceImpl) scope(ctx context.Context, user domain.User, pipelineID string) (*entityScope, error) {
	cfg, err := s.access.loadPipeline(ctx, user.CompanyID, pipelineID)
	if err != nil {
		return nil, err
	}
	eval, err := s.access.evaluator(ctx, user)
	if err != nil {
		return nil, err
	}
	if !eval.CanAccessPipeline(cfg.ID) {
		return nil, s.access.deny(user, "view", "pipeline:"+cfg.ID)
	}
	return &entityScope{user: user, cfg: cfg, eval: eval, store: s.stores(user.CompanyID)}, nil
}

// scopeFor is scope plus an action check
func (s *entityServiceImpl) scopeFor(ctx context.Context, user domain.User, pipelineID string, action permission.Action) (*entityScope, error) {
	sc, err := s.scope(ctx, user, pipelineID)
	if err != nil {
		return nil, err
	}
	if !sc.eval.CanPerformAction(sc.cfg.ID, action) {
		return nil, s.access.deny(user, string(action), "pipeline:"+sc.cfg.ID)
	}
	return sc, nil
}

func (s *entityServiceImpl) List(ctx context.Context, user domain.User, pipelineID string, filters storage.Filters) (*storage.Page, error) {
	sc, err := s.scope(ctx, user, pipelineID)
	if err != nil {
		return nil, err
	}

	if filters, err = s.hideFinancialFilters(sc, filters); err != nil {
		return nil, err
	}

	stages, restricted := s.readableStages(sc, filters.Stages)
	if restricted && len(stages) == 0 {
		return storage.ApplyQuery(nil, filters), nil
	}
	filters.Stages = stages

	page, err := sc.store.GetAll(ctx, sc.cfg.EntityType, filters)
	if err != nil {
		return nil, mapStorageError(err, "Failed to list entities")
	}
	page.Items = sc.eval.FilterData(page.Items, sc.cfg.Fields)
	return page, nil
}

// hideFinancialFilters stops users without financial visibility from
// learning hidden values through which records match or how they order
func (s *entityServiceImpl) hideFinancialFilters(sc *entityScope, filters storage.Filters) (storage.Filters, error) {
	if sc.eval.CanViewFinancialData() {
		return filters, nil
	}
	financial := pipeline.FinancialFieldNames(sc.cfg.Fields)
	if len(financial) == 0 {
		return filters, nil
	}
	if _, ok := financial[filters.SortBy]; ok {
		return filters, s.access.deny(sc.user, "sort_financial", "field:"+filters.SortBy)
	}
	if r := filters.DateRange; r != nil {
		if _, ok := financial[r.Field]; ok {
			return filters, s.access.deny(sc.user, "filter_financial", "field:"+r.Field)
		}
	}

	exclude := make([]string, 0, len(filters.SearchExclude)+len(financial))
	exclude = append(exclude, filters.SearchExclude...)
	for name := range financial {
		exclude = append(exclude, name)
	}
	sort.Strings(exclude)
	filters.SearchExclude = exclude
	return filters, nil
}

// readableStages narrows a requested stage filter to what the user may read.
// restricted is false when no narrowing applies and the request goes through
// unchanged.
func (s *entityServiceImpl) readableStages(sc *entityScope, requested []string) ([]string, bool) {
	if sc.eval.HasFullAccess() {
		return requested, false
	}
	visible := sc.eval.VisibleStages(sc.cfg)
	if len(requested) == 0 {
		return visible, true
	}

	allowed := make(map[string]struct{}, len(visible))
	for _, id := range visible {
		allowed[id] = struct{}{}
	}
	out := make([]string, 0, len(requested))
	for _, id := range requested {
		if _, ok := allowed[id]; ok {
			out = append(out, id)
		}
	}
	return out, true
}

func (s *entityServiceImpl) Get(ctx context.Context, user domain.User, pipelineID, id string) (*domain.CRMEntity, error) {
	sc, err := s.scope(ctx, user, pipelineID)
	if err != nil {
		return nil, err
	}
	entity, err := s.readable(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	filtered := sc.eval.FilterEntity(*entity, sc.cfg.Fields)
	return &filtered, nil
}

// readable fetches an entity and checks that its stage is visible
func (s *entityServiceImpl) readable(ctx context.Context, sc *entityScope, id string) (*domain.CRMEntity, error) {
	entity, err := sc.store.GetByID(ctx, sc.cfg.EntityType, id)
	if err != nil {
		return nil, mapStorageError(err, "Failed to get entity")
	}
	if !sc.eval.CanViewStage(sc.cfg, entity.Stage) {
		return nil, s.access.deny(sc.user, "view", "stage:"+entity.Stage)
	}
	return entity, nil
}

func (s *entityServiceImpl) Create(ctx context.Context, user domain.User, pipelineID string, input storage.EntityInput) (*domain.CRMEntity, error) {
	sc, err := s.scopeFor(ctx, user, pipelineID, permission.ActionCreate)
	if err != nil {
		return nil, err
	}

	if input.Stage == "" {
		stage, ok := pipeline.DefaultStage(sc.cfg)
		if !ok {
			return nil, response.NewValidationError("Pipeline has no stages", "")
		}
		input.Stage = stage
	}
	if !pipeline.HasStage(sc.cfg, input.Stage) {
		return nil, response.NewValidationError(fmt.Sprintf("Unknown stage %q", input.Stage), "")
	}
	if !sc.eval.CanViewStage(sc.cfg, input.Stage) {
		return nil, s.access.deny(user, string(permission.ActionCreate), "stage:"+input.Stage)
	}
	if err := s.checkFinancialWrite(sc, input.Data); err != nil {
		return nil, err
	}
	if missing := pipeline.MissingRequired(sc.cfg, input.Data); len(missing) > 0 {
		return nil, response.NewValidationError("Missing required fields: "+strings.Join(missing, ", "), "")
	}

	entity, err := sc.store.Create(ctx, sc.cfg.EntityType, input)
	if err != nil {
		return nil, mapStorageError(err, "Failed to create entity")
	}

	s.metrics.IncrementEntityCreated(sc.cfg.EntityType)
	s.logger.Info("Entity created",
		zap.String("company_id", user.CompanyID),
		zap.String("pipeline_id", sc.cfg.ID),
		zap.String("entity_id", entity.ID),
		zap.String("stage", entity.Stage),
	)

	filtered := sc.eval.FilterEntity(*entity, sc.cfg.Fields)
	return &filtered, nil
}

func (s *entityServiceImpl) Update(ctx context.Context, user domain.User, pipelineID, id string, patch storage.EntityPatch) (*domain.CRMEntity, error) {
	sc, err := s.scopeFor(ctx, user, pipelineID, permission.ActionEdit)
	if err != nil {
		return nil, err
	}
	if err := s.checkFinancialWrite(sc, patch.Data); err != nil {
		return nil, err
	}
	if blank := pipeline.BlankRequired(sc.cfg, patch.Data); len(blank) > 0 {
		return nil, response.NewValidationError("Required fields cannot be cleared: "+strings.Join(blank, ", "), "")
	}

	current, err := s.readable(ctx, sc, id)
	if err != nil {
		return nil, err
	}

	moving := patch.Stage != nil && *patch.Stage != current.Stage
	if moving {
		if err := s.checkMove(sc, current.Stage, *patch.Stage); err != nil {
			return nil, err
		}
	}

	entity, err := sc.store.Update(ctx, sc.cfg.EntityType, id, patch)
	if err != nil {
		return nil, mapStorageError(err, "Failed to update entity")
	}
	if moving {
		s.afterMove(ctx, sc, current.Stage, entity)
	}

	filtered := sc.eval.FilterEntity(*entity, sc.cfg.Fields)
	return &filtered, nil
}

func (s *entityServiceImpl) Delete(ctx context.Context, user domain.User, pipelineID, id string) error {
	sc, err := s.scopeFor(ctx, user, pipelineID, permission.ActionDelete)
	if err != nil {
		return err
	}
	if _, err := s.readable(ctx, sc, id); err != nil {
		return err
	}
	if err := sc.store.Delete(ctx, sc.cfg.EntityType, id); err != nil {
		return mapStorageError(err, "Failed to delete entity")
	}

	s.logger.Info("Entity deleted",
		zap.String("company_id", user.CompanyID),
		zap.String("pipeline_id", sc.cfg.ID),
		zap.String("entity_id", id),
	)
	return nil
}

func (s *entityServiceImpl) MoveStage(ctx context.Context, user domain.User, pipelineID, id, stage string) (*domain.CRMEntity, error) {
	sc, err := s.scope(ctx, user, pipelineID)
	if err != nil {
		return nil, err
	}

	current, err := s.readable(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkMove(sc, current.Stage, stage); err != nil {
		return nil, err
	}

	entity, err := sc.store.MoveStage(ctx, sc.cfg.EntityType, id, stage)
	if err != nil {
		return nil, mapStorageError(err, "Failed to move entity")
	}
	if current.Stage != stage {
		s.afterMove(ctx, sc, current.Stage, entity)
	}

	filtered := sc.eval.FilterEntity(*entity, sc.cfg.Fields)
	return &filtered, nil
}

// checkMove validates a stage change from one stage to another
func (s *entityServiceImpl) checkMove(sc *entityScope, from, to string) error {
	if !sc.eval.CanPerformAction(sc.cfg.ID, permission.ActionMove) {
		return s.access.deny(sc.user, string(permission.ActionMove), "pipeline:"+sc.cfg.ID)
	}
	if !pipeline.HasStage(sc.cfg, to) {
		return response.NewValidationError(fmt.Sprintf("Unknown stage %q", to), "")
	}
	if !sc.eval.CanViewStage(sc.cfg, to) {
		return s.access.deny(sc.user, string(permission.ActionMove), "stage:"+to)
	}
	if !pipeline.CanTransition(sc.cfg, from, to) {
		return response.NewValidationError(fmt.Sprintf("Transition from %q to %q is not allowed", from, to), "")
	}
	return nil
}

// afterMove runs the target stage's auto-actions. Notification failures are
// logged by the client and never fail the move.
func (s *entityServiceImpl) afterMove(ctx context.Context, sc *entityScope, from string, entity *domain.CRMEntity) {
	s.metrics.IncrementStageTransition(sc.cfg.EntityType)
	s.logger.Info("Entity moved",
		zap.String("company_id", sc.user.CompanyID),
		zap.String("pipeline_id", sc.cfg.ID),
		zap.String("entity_id", entity.ID),
		zap.String("from_stage", from),
		zap.String("to_stage", entity.Stage),
	)

	target, ok := pipeline.FindStage(sc.cfg, entity.Stage)
	if !ok {
		return
	}

	var events []client.NotificationEvent
	for _, action := range target.AutoActions {
		if action.Type != domain.AutoActionNotify {
			continue
		}
		events = append(events, client.NotificationEvent{
			Type:       client.NotificationStageEntered,
			CompanyID:  sc.user.CompanyID,
			ActorID:    sc.user.ID,
			PipelineID: sc.cfg.ID,
			EntityType: sc.cfg.EntityType,
			EntityID:   entity.ID,
			FromStage:  from,
			Stage:      entity.Stage,
			Recipients: stringList(action.Config["recipients"]),
			Message:    stringValue(action.Config["message"]),
		})
	}
	if len(events) == 0 {
		return
	}
	if err := s.notification.SendBulkNotifications(ctx, events); err != nil {
		s.logger.Warn("Failed to send stage notifications",
			zap.String("entity_id", entity.ID),
			zap.Error(err),
		)
	}
}

// checkFinancialWrite rejects writes to financial fields by users who cannot
// see them
func (s *entityServiceImpl) checkFinancialWrite(sc *entityScope, data map[string]interface{}) error {
	if len(data) == 0 || sc.eval.CanViewFinancialData() {
		return nil
	}
	financial := pipeline.FinancialFieldNames(sc.cfg.Fields)
	var touched []string
	for name := range data {
		if _, ok := financial[name]; ok {
			touched = append(touched, name)
		}
	}
	if len(touched) == 0 {
		return nil
	}
	sort.Strings(touched)
	return s.access.deny(sc.user, "write_financial", "fields:"+strings.Join(touched, ","))
}

func (s *entityServiceImpl) GetByStage(ctx context.Context, user domain.User, pipelineID, stage string) ([]domain.CRMEntity, error) {
	sc, err := s.scope(ctx, user, pipelineID)
	if err != nil {
		return nil, err
	}
	if !sc.eval.CanViewStage(sc.cfg, stage) {
		return nil, s.access.deny(user, "view", "stage:"+stage)
	}

	entities, err := sc.store.GetByStage(ctx, sc.cfg.EntityType, stage)
	if err != nil {
		return nil, mapStorageError(err, "Failed to list entities by stage")
	}
	return sc.eval.FilterData(entities, sc.cfg.Fields), nil
}

// GetStats counts entities per stage. Users with restricted stage visibility
// only see counts of the stages they can read.
func (s *entityServiceImpl) GetStats(ctx context.Context, user domain.User, pipelineID string) (*storage.Stats, error) {
	sc, err := s.scope(ctx, user, pipelineID)
	if err != nil {
		return nil, err
	}

	stats, err := sc.store.GetStats(ctx, sc.cfg.EntityType)
	if err != nil {
		return nil, mapStorageError(err, "Failed to get entity stats")
	}
	if sc.eval.HasFullAccess() {
		return stats, nil
	}

	out := &storage.Stats{ByStage: make(map[string]int)}
	for _, id := range sc.eval.VisibleStages(sc.cfg) {
		if n, ok := stats.ByStage[id]; ok {
			out.ByStage[id] = n
			out.Total += n
		}
	}
	return out, nil
}

func (s *entityServiceImpl) Health(ctx context.Context, companyID string) error {
	if err := s.stores(companyID).TestConnection(ctx); err != nil {
		return mapStorageError(err, "Storage health check failed")
	}
	return nil
}

func stringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func stringList(v interface{}) []string {
	switch val := v.(type) {
	case []string:
		return append([]string(nil), val...)
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	default:
		return nil
	}
}
