package schema

import (
	"github.com/jinzhu/inflection"

	"crm-pipeline-api/internal/domain"
)

// ResolveRelationships marks foreign keys across a tenant's table set and
// returns new schemas; the input slice and everything it points to is left
// untouched, so concurrent callers may share inputs.
//
// A non-primary-key column references another table's primary key when its
// name equals that key's name, or equals "{table}_id" for the target table's
// plural or singular name. When several tables match, the first in input order
// wins. Columns that already carry a reference keep it.
func ResolveRelationships(schemas []domain.TableSchema) []domain.TableSchema {
	out := make([]domain.TableSchema, len(schemas))
	for i, s := range schemas {
		out[i] = s.Clone()
	}

	for ti := range out {
		table := &out[ti]
		for ci := range table.Columns {
			col := &table.Columns[ci]
			if col.IsPrimaryKey || col.References != nil {
				continue
			}
			if ref, ok := findReference(col.Name, ti, schemas); ok {
				col.IsForeignKey = true
				col.References = &ref
			}
		}
	}

	return out
}

// DropDanglingReferences returns copies of schemas in which foreign keys that
// point at a table missing from the set are cleared. Run it before
// ResolveRelationships after a table is removed, so the freed columns can be
// matched again.
func DropDanglingReferences(schemas []domain.TableSchema) []domain.TableSchema {
	present := make(map[string]struct{}, len(schemas))
	for _, s := range schemas {
		present[s.TableName] = struct{}{}
	}

	out := make([]domain.TableSchema, len(schemas))
	for i, s := range schemas {
		out[i] = s.Clone()
		for ci := range out[i].Columns {
			col := &out[i].Columns[ci]
			if col.References == nil {
				continue
			}
			if _, ok := present[col.References.Table]; !ok {
				col.References = nil
				col.IsForeignKey = false
			}
		}
	}
	return out
}

// findReference scans every table except self, in order, for a primary key
// the column name points at.
func findReference(column string, self int, schemas []domain.TableSchema) (domain.ColumnReference, bool) {
	for ti, target := range schemas {
		if ti == self {
			continue
		}
		for _, pk := range target.Columns {
			if !pk.IsPrimaryKey {
				continue
			}
			if matchesKey(column, target.TableName, pk.Name) {
				return domain.ColumnReference{Table: target.TableName, Column: pk.Name}, true
			}
		}
	}
	return domain.ColumnReference{}, false
}

func matchesKey(column, targetTable, pkName string) bool {
	if column == pkName || column == targetTable+"_id" {
		return true
	}
	singular := inflection.Singular(targetTable)
	return singular != targetTable && column == singular+"_id"
}
