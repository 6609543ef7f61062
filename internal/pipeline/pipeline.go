// Package pipeline holds the rules of a tenant-defined pipeline configuration:
// structural validation, display ordering and stage transitions.
package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/response"
)

// ReservedEntityPrefix marks path segments the store protocol keeps for
// itself, such as its health route
const ReservedEntityPrefix = "_"

// Validate checks the structural invariants of a pipeline configuration
func Validate(cfg domain.PipelineConfig) error {
	if strings.TrimSpace(cfg.EntityType) == "" {
		return response.NewValidationError("Entity type is required", "")
	}
	if strings.HasPrefix(cfg.EntityType, ReservedEntityPrefix) {
		return response.NewValidationError("Entity type must not start with "+ReservedEntityPrefix, cfg.EntityType)
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return response.NewValidationError("Pipeline name is required", "")
	}
	if len(cfg.Stages) == 0 {
		return response.NewValidationError("Pipeline must have at least one stage", cfg.EntityType)
	}

	stageIDs := make(map[string]struct{}, len(cfg.Stages))
	stageNames := make(map[string]struct{}, len(cfg.Stages))
	for _, st := range cfg.Stages {
		if strings.TrimSpace(st.ID) == "" || strings.TrimSpace(st.Name) == "" {
			return response.NewValidationError("Stage id and name are required", "")
		}
		if _, dup := stageIDs[st.ID]; dup {
			return response.NewValidationError("Duplicate stage id", st.ID)
		}
		if _, dup := stageNames[st.Name]; dup {
			return response.NewValidationError("Duplicate stage name", st.Name)
		}
		stageIDs[st.ID] = struct{}{}
		stageNames[st.Name] = struct{}{}
	}

	for _, st := range cfg.Stages {
		for _, target := range st.AllowedTransitions {
			if _, ok := stageIDs[target]; !ok {
				return response.NewValidationError("Transition to unknown stage",
					fmt.Sprintf("%s -> %s", st.ID, target))
			}
		}
		for _, action := range st.AutoActions {
			if action.Type != domain.AutoActionNotify {
				return response.NewValidationError("Unsupported auto action", string(action.Type))
			}
		}
	}

	fieldIDs := make(map[string]struct{}, len(cfg.Fields))
	fieldNames := make(map[string]struct{}, len(cfg.Fields))
	for _, f := range cfg.Fields {
		if strings.TrimSpace(f.ID) == "" || strings.TrimSpace(f.Name) == "" {
			return response.NewValidationError("Field id and name are required", "")
		}
		if _, dup := fieldIDs[f.ID]; dup {
			return response.NewValidationError("Duplicate field id", f.ID)
		}
		if _, dup := fieldNames[f.Name]; dup {
			return response.NewValidationError("Duplicate field name", f.Name)
		}
		fieldIDs[f.ID] = struct{}{}
		fieldNames[f.Name] = struct{}{}

		if !f.Type.IsValid() {
			return response.NewValidationError("Invalid field type", fmt.Sprintf("%s: %q", f.Name, f.Type))
		}
		if f.Type.HasOptions() && len(f.Options) == 0 {
			return response.NewValidationError("Select fields need at least one option", f.Name)
		}
		if f.Type == domain.FieldTypeRelation && strings.TrimSpace(f.RelationTarget) == "" {
			return response.NewValidationError("Relation fields need a target", f.Name)
		}
	}

	return nil
}

// SortedStages returns the stages in display order. Equal orders keep their
// configured position.
func SortedStages(cfg domain.PipelineConfig) []domain.StageDefinition {
	out := append([]domain.StageDefinition(nil), cfg.Stages...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// SortedFields returns the fields in display order, stable like SortedStages
func SortedFields(cfg domain.PipelineConfig) []domain.FieldDefinition {
	out := append([]domain.FieldDefinition(nil), cfg.Fields...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// DefaultStage is the stage new entities start in
func DefaultStage(cfg domain.PipelineConfig) (string, bool) {
	stages := SortedStages(cfg)
	if len(stages) == 0 {
		return "", false
	}
	return stages[0].ID, true
}

func FindStage(cfg domain.PipelineConfig, stageID string) (domain.StageDefinition, bool) {
	for _, st := range cfg.Stages {
		if st.ID == stageID {
			return st, true
		}
	}
	return domain.StageDefinition{}, false
}

func HasStage(cfg domain.PipelineConfig, stageID string) bool {
	_, ok := FindStage(cfg, stageID)
	return ok
}

// CanTransition reports whether an entity may move from one stage to another.
// The target must exist. A source stage that is no longer configured, or one
// without AllowedTransitions, places no restriction.
func CanTransition(cfg domain.PipelineConfig, from, to string) bool {
	if !HasStage(cfg, to) {
		return false
	}
	if from == to {
		return true
	}
	src, ok := FindStage(cfg, from)
	if !ok || len(src.AllowedTransitions) == 0 {
		return true
	}
	for _, id := range src.AllowedTransitions {
		if id == to {
			return true
		}
	}
	return false
}

func FieldByName(cfg domain.PipelineConfig, name string) (domain.FieldDefinition, bool) {
	for _, f := range cfg.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return domain.FieldDefinition{}, false
}

// MissingRequired lists required fields that are absent or blank in data, in
// display order
func MissingRequired(cfg domain.PipelineConfig, data map[string]interface{}) []string {
	var missing []string
	for _, f := range SortedFields(cfg) {
		if !f.Required {
			continue
		}
		v, ok := data[f.Name]
		if !ok || isBlank(v) {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// BlankRequired lists required fields that a partial patch tries to clear
func BlankRequired(cfg domain.PipelineConfig, patch map[string]interface{}) []string {
	var blank []string
	for _, f := range SortedFields(cfg) {
		if !f.Required {
			continue
		}
		if v, ok := patch[f.Name]; ok && isBlank(v) {
			blank = append(blank, f.Name)
		}
	}
	return blank
}

// FinancialFieldNames returns the names of fields flagged as financial
func FinancialFieldNames(fields []domain.FieldDefinition) map[string]struct{} {
	names := make(map[string]struct{})
	for _, f := range fields {
		if f.IsFinancial {
			names[f.Name] = struct{}{}
		}
	}
	return names
}

func isBlank(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}
