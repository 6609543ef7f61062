package schema

import (
	"fmt"

	"crm-pipeline-api/internal/domain"
)

// defaultTableName is used when a file name normalizes to nothing
const defaultTableName = "untitled"

// BuildOptions tunes schema building
type BuildOptions struct {
	// InferFromRows is how many data rows feed type inference. Zero or one
	// keeps the first-row behaviour; larger values take the majority type.
	InferFromRows int
}

// BuildTableSchema turns a parsed file (row 0 is the header) into a table
// schema using first-row type inference.
func BuildTableSchema(fileName string, rows [][]string) domain.TableSchema {
	return BuildTableSchemaWithOptions(fileName, rows, BuildOptions{})
}

// BuildTableSchemaWithOptions is BuildTableSchema with tunable inference
func BuildTableSchemaWithOptions(fileName string, rows [][]string, opts BuildOptions) domain.TableSchema {
	tableName := NormalizeTableName(fileName)
	if tableName == "" {
		tableName = defaultTableName
	}

	out := domain.TableSchema{
		TableName:  tableName,
		Columns:    []domain.ColumnDefinition{},
		SampleRows: [][]string{},
	}
	if len(rows) == 0 {
		return out
	}

	header := rows[0]
	data := rows[1:]
	out.RowCount = len(data)

	sampleN := len(data)
	if sampleN > domain.MaxSampleRows {
		sampleN = domain.MaxSampleRows
	}
	for _, row := range data[:sampleN] {
		out.SampleRows = append(out.SampleRows, append([]string(nil), row...))
	}

	names := columnNames(header)
	hasPK := false
	for i, name := range names {
		sample := cell(data, 0, i)
		col := domain.ColumnDefinition{
			Name:        name,
			Type:        inferColumn(data, i, opts.InferFromRows),
			SampleValue: sample,
		}
		if !hasPK && isPrimaryKeyName(name, tableName) {
			col.IsPrimaryKey = true
			hasPK = true
		}
		out.Columns = append(out.Columns, col)
	}

	return out
}

// isPrimaryKeyName is the naming heuristic: "id" or "{table}_id"
func isPrimaryKeyName(column, table string) bool {
	return column == "id" || column == table+"_id"
}

func inferColumn(data [][]string, col, sampleRows int) domain.ColumnType {
	if sampleRows <= 1 {
		return InferType(cell(data, 0, col))
	}
	values := make([]string, 0, sampleRows)
	for r := 0; r < len(data) && r < sampleRows; r++ {
		values = append(values, cell(data, r, col))
	}
	return InferMajorityType(values)
}

// cell returns data[row][col], or "" when the row is short or absent
func cell(data [][]string, row, col int) string {
	if row >= len(data) || col >= len(data[row]) {
		return ""
	}
	return data[row][col]
}

// columnNames normalizes headers, names blank ones column_<n> and suffixes
// duplicates with the first free _<n>, so names stay unique within the table
// even when a header already looks like a suffixed duplicate.
func columnNames(header []string) []string {
	names := make([]string, len(header))
	used := make(map[string]struct{}, len(header))
	next := make(map[string]int, len(header))
	for i, h := range header {
		base := NormalizeIdentifier(h)
		if base == "" {
			base = fmt.Sprintf("column_%d", i+1)
		}
		name := base
		if _, taken := used[name]; taken {
			n := max(next[base], 2)
			for {
				name = fmt.Sprintf("%s_%d", base, n)
				if _, taken := used[name]; !taken {
					break
				}
				n++
			}
			next[base] = n + 1
		}
		used[name] = struct{}{}
		names[i] = name
	}
	return names
}
