// Package schema turns uploaded tabular data into typed table definitions
// and discovers foreign keys between them.
//
// Nothing in this package returns an error: malformed uploads are the normal
// case, so every function degrades to a safe default instead.
package schema

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"crm-pipeline-api/internal/domain"
)

// maxVarcharLength is the longest value still classified as VARCHAR
const maxVarcharLength = 255

var (
	uuidPattern    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	integerPattern = regexp.MustCompile(`^-?\d+$`)
	decimalPattern = regexp.MustCompile(`^-?\d+\.\d+$`)
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000Z07:00",
	"02.01.2006",
	"01/02/2006",
	"02/01/2006",
}

// InferType classifies a single cell value. Checks run in a fixed order and
// the first match wins: "1" is INTEGER, never BOOLEAN.
func InferType(value string) domain.ColumnType {
	v := strings.TrimSpace(value)
	if v == "" {
		return domain.ColumnTypeVarchar
	}

	switch {
	case uuidPattern.MatchString(v):
		return domain.ColumnTypeUUID
	case integerPattern.MatchString(v):
		return domain.ColumnTypeInteger
	case decimalPattern.MatchString(v):
		return domain.ColumnTypeDecimal
	case isBoolean(v):
		return domain.ColumnTypeBoolean
	case isDate(v):
		return domain.ColumnTypeDate
	case utf8.RuneCountInString(v) > maxVarcharLength:
		return domain.ColumnTypeText
	default:
		return domain.ColumnTypeVarchar
	}
}

func isBoolean(v string) bool {
	switch strings.ToLower(v) {
	case "true", "false", "yes", "no":
		return true
	default:
		return false
	}
}

func isDate(v string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// InferMajorityType classifies a column from several values and returns the
// most frequent non-empty type. Ties go to the type seen first.
// Empty input, or input of only empty strings, yields VARCHAR.
func InferMajorityType(values []string) domain.ColumnType {
	counts := make(map[domain.ColumnType]int)
	var order []domain.ColumnType
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		t := InferType(v)
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}

	best := domain.ColumnTypeVarchar
	bestN := 0
	for _, t := range order {
		if counts[t] > bestN {
			best = t
			bestN = counts[t]
		}
	}
	return best
}
