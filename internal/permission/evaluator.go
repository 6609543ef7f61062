package permission

import (
	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/pipeline"
)

// Action is a mutating operation on pipeline entities
type Action string

const (
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionMove   Action = "move"
)

// Capability names one global boolean of RolePermissions
type Capability string

const (
	CapViewAllData       Capability = "canViewAllData"
	CapEditAllData       Capability = "canEditAllData"
	CapDeleteRecords     Capability = "canDeleteRecords"
	CapViewFinancialData Capability = "canViewFinancialData"
	CapManageUsers       Capability = "canManageUsers"
	CapManagePipelines   Capability = "canManagePipelines"
	CapExportData        Capability = "canExportData"
	CapViewReports       Capability = "canViewReports"
)

// Evaluator answers permission questions for one user. It resolves the
// permission set once at construction and must not outlive the request it was
// built for: role assignments can change between requests.
type Evaluator struct {
	user  domain.User
	perms domain.RolePermissions
	super bool
}

// NewEvaluator resolves the user's permissions against the company's roles
func NewEvaluator(user domain.User, roles []domain.RoleDefinition) *Evaluator {
	return &Evaluator{
		user:  user,
		perms: ResolvePermissions(user, roles),
		super: user.Role == domain.RoleAdmin || user.Role == domain.RoleDev,
	}
}

func (e *Evaluator) User() domain.User { return e.user }

// Permissions returns a copy of the resolved permission set
func (e *Evaluator) Permissions() domain.RolePermissions {
	return copyPermissions(e.perms)
}

func (e *Evaluator) IsSuperUser() bool { return e.super }

// HasCapability reports a global capability. Admin and dev hold every known
// capability; unknown names are always denied.
func (e *Evaluator) HasCapability(c Capability) bool {
	var granted bool
	switch c {
	case CapViewAllData:
		granted = e.perms.CanViewAllData
	case CapEditAllData:
		granted = e.perms.CanEditAllData
	case CapDeleteRecords:
		granted = e.perms.CanDeleteRecords
	case CapViewFinancialData:
		granted = e.perms.CanViewFinancialData
	case CapManageUsers:
		granted = e.perms.CanManageUsers
	case CapManagePipelines:
		granted = e.perms.CanManagePipelines
	case CapExportData:
		granted = e.perms.CanExportData
	case CapViewReports:
		granted = e.perms.CanViewReports
	default:
		return false
	}
	return granted || e.super
}

func (e *Evaluator) fullAccess() bool {
	return e.super || e.perms.CanViewAllData
}

// HasFullAccess reports whether the user sees every pipeline and stage,
// including stages a pipeline no longer defines
func (e *Evaluator) HasFullAccess() bool { return e.fullAccess() }

func (e *Evaluator) pipelineAccess(pipelineID string) (domain.PipelineAccess, bool) {
	if a, ok := e.perms.PipelineAccess[pipelineID]; ok {
		return a, true
	}
	a, ok := e.perms.PipelineAccess[AllPipelines]
	return a, ok
}

// AccessLevel is full for admin, dev and canViewAllData; otherwise the
// configured level, or none when nothing is configured
func (e *Evaluator) AccessLevel(pipelineID string) domain.AccessLevel {
	if e.fullAccess() {
		return domain.AccessFull
	}
	a, ok := e.pipelineAccess(pipelineID)
	if !ok {
		return domain.AccessNone
	}
	switch a.Level {
	case domain.AccessView, domain.AccessEdit, domain.AccessFull:
		return a.Level
	default:
		return domain.AccessNone
	}
}

func (e *Evaluator) CanAccessPipeline(pipelineID string) bool {
	return e.AccessLevel(pipelineID) != domain.AccessNone
}

// CanPerformAction decides a mutating action. Only the edit level consults the
// per-pipeline flags: create and move are allowed unless explicitly disabled,
// delete is denied unless explicitly enabled or granted by canDeleteRecords.
// An explicit canDelete=false always wins on the edit level.
func (e *Evaluator) CanPerformAction(pipelineID string, action Action) bool {
	switch action {
	case ActionCreate, ActionEdit, ActionDelete, ActionMove:
	default:
		return false
	}

	switch e.AccessLevel(pipelineID) {
	case domain.AccessFull:
		return true
	case domain.AccessEdit:
	default:
		return false
	}

	a, _ := e.pipelineAccess(pipelineID)
	switch action {
	case ActionCreate:
		return a.CanCreate == nil || *a.CanCreate
	case ActionMove:
		return a.CanMoveStages == nil || *a.CanMoveStages
	case ActionDelete:
		if a.CanDelete != nil {
			return *a.CanDelete
		}
		return e.perms.CanDeleteRecords
	default:
		return true
	}
}

func (e *Evaluator) CanViewFinancialData() bool {
	return e.HasCapability(CapViewFinancialData)
}

// FilterFields drops financial fields unless the user may see them.
// The input slice is not modified.
func (e *Evaluator) FilterFields(fields []domain.FieldDefinition) []domain.FieldDefinition {
	out := make([]domain.FieldDefinition, 0, len(fields))
	viewFinancial := e.CanViewFinancialData()
	for _, f := range fields {
		if f.IsFinancial && !viewFinancial {
			continue
		}
		out = append(out, f)
	}
	return out
}

// FilterData returns copies of records with financial values removed by
// field name. Keys that match no field are kept.
func (e *Evaluator) FilterData(records []domain.CRMEntity, fields []domain.FieldDefinition) []domain.CRMEntity {
	out := make([]domain.CRMEntity, len(records))
	var hidden map[string]struct{}
	if !e.CanViewFinancialData() {
		hidden = pipeline.FinancialFieldNames(fields)
	}
	for i, rec := range records {
		out[i] = e.filterEntity(rec, hidden)
	}
	return out
}

// FilterEntity is FilterData for a single record
func (e *Evaluator) FilterEntity(record domain.CRMEntity, fields []domain.FieldDefinition) domain.CRMEntity {
	return e.FilterData([]domain.CRMEntity{record}, fields)[0]
}

func (e *Evaluator) filterEntity(rec domain.CRMEntity, hidden map[string]struct{}) domain.CRMEntity {
	c := rec.Clone()
	for name := range hidden {
		delete(c.Data, name)
	}
	return c
}

// VisibleStages lists the stage ids the user may read in display order.
// A visibleStages list on the pipeline entry narrows the set; ids in it that the
// pipeline no longer has are ignored.
func (e *Evaluator) VisibleStages(cfg domain.PipelineConfig) []string {
	level := e.AccessLevel(cfg.ID)
	if level == domain.AccessNone {
		return []string{}
	}

	var allow map[string]struct{}
	if !e.fullAccess() {
		if a, ok := e.pipelineAccess(cfg.ID); ok && len(a.VisibleStages) > 0 {
			allow = make(map[string]struct{}, len(a.VisibleStages))
			for _, id := range a.VisibleStages {
				allow[id] = struct{}{}
			}
		}
	}

	stages := pipeline.SortedStages(cfg)
	out := make([]string, 0, len(stages))
	for _, st := range stages {
		if allow != nil {
			if _, ok := allow[st.ID]; !ok {
				continue
			}
		}
		out = append(out, st.ID)
	}
	return out
}

// CanViewStage reports whether entities in stageID are readable. Stages the
// pipeline does not define are only visible with full access, so entities left
// behind by a removed stage stay reachable for administrators.
func (e *Evaluator) CanViewStage(cfg domain.PipelineConfig, stageID string) bool {
	if e.AccessLevel(cfg.ID) == domain.AccessNone {
		return false
	}
	if e.fullAccess() {
		return true
	}
	for _, id := range e.VisibleStages(cfg) {
		if id == stageID {
			return true
		}
	}
	return false
}
