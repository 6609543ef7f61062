package schema

import (
	"crm-pipeline-api/internal/domain"
)

// MergeRefinement folds an externally refined schema set back into the
// originals. Only column types and key fields are taken from refined;
// table names, column order, row counts, sample rows and sample values always
// come from original. Refined tables or columns with no original counterpart
// are ignored, as are unknown column types.
//
// The result still satisfies the table invariants: at most one primary key
// (the first one wins) and no column referencing itself.
func MergeRefinement(original, refined []domain.TableSchema) []domain.TableSchema {
	byTable := make(map[string]domain.TableSchema, len(refined))
	for _, t := range refined {
		if _, dup := byTable[t.TableName]; !dup {
			byTable[t.TableName] = t
		}
	}

	out := make([]domain.TableSchema, len(original))
	for i, orig := range original {
		merged := orig.Clone()
		if ref, ok := byTable[orig.TableName]; ok {
			mergeColumns(&merged, ref)
		}
		enforceKeyInvariants(&merged)
		out[i] = merged
	}
	return out
}

func mergeColumns(dst *domain.TableSchema, ref domain.TableSchema) {
	cols := make(map[string]domain.ColumnDefinition, len(ref.Columns))
	for _, c := range ref.Columns {
		if _, dup := cols[c.Name]; !dup {
			cols[c.Name] = c
		}
	}

	for i := range dst.Columns {
		rc, ok := cols[dst.Columns[i].Name]
		if !ok {
			continue
		}
		col := &dst.Columns[i]
		if rc.Type.IsValid() {
			col.Type = rc.Type
		}
		col.IsPrimaryKey = rc.IsPrimaryKey
		col.IsForeignKey = rc.IsForeignKey
		col.References = nil
		if rc.IsForeignKey && rc.References != nil {
			r := *rc.References
			col.References = &r
		}
		if col.IsForeignKey && col.References == nil {
			col.IsForeignKey = false
		}
	}
}

func enforceKeyInvariants(t *domain.TableSchema) {
	hasPK := false
	for i := range t.Columns {
		col := &t.Columns[i]
		if col.IsPrimaryKey {
			if hasPK {
				col.IsPrimaryKey = false
			}
			hasPK = true
		}
		if col.References != nil &&
			col.References.Table == t.TableName && col.References.Column == col.Name {
			col.IsForeignKey = false
			col.References = nil
		}
	}
}
