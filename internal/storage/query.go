package storage

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"crm-pipeline-api/internal/domain"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ApplyQuery filters, sorts and paginates entities. The input slice is not
// reordered.
//
// Without SortBy entities come back oldest first, then by id. With SortBy the
// sort is stable over that default order, so ties are deterministic.
func ApplyQuery(entities []domain.CRMEntity, f Filters) *Page {
	matched := make([]domain.CRMEntity, 0, len(entities))
	search := strings.ToLower(strings.TrimSpace(f.Search))
	excluded := make(map[string]struct{}, len(f.SearchExclude))
	for _, name := range f.SearchExclude {
		excluded[name] = struct{}{}
	}
	stages := make(map[string]struct{}, len(f.Stages))
	for _, s := range f.Stages {
		stages[s] = struct{}{}
	}

	for _, e := range entities {
		if len(stages) > 0 {
			if _, ok := stages[e.Stage]; !ok {
				continue
			}
		}
		if search != "" && !matchesSearch(e, search, excluded) {
			continue
		}
		if f.DateRange != nil && !inDateRange(e, *f.DateRange) {
			continue
		}
		matched = append(matched, e)
	}

	matched = defaultOrder(matched)
	if f.SortBy != "" {
		desc := strings.EqualFold(string(f.SortOrder), string(SortDesc))
		sort.SliceStable(matched, func(i, j int) bool {
			c := compareValues(fieldValue(matched[i], f.SortBy), fieldValue(matched[j], f.SortBy))
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	page, limit := normalizePaging(f.Page, f.Limit)
	total := len(matched)
	// page and limit come from query strings; keep the arithmetic in range
	start, end := total, total
	if page-1 <= total/limit {
		start = (page - 1) * limit
		if start > total {
			start = total
		}
		end = start + min(limit, total-start)
	}

	items := make([]domain.CRMEntity, 0, end-start)
	for _, e := range matched[start:end] {
		items = append(items, e.Clone())
	}

	return &Page{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	}
}

func normalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

func totalPages(total, limit int) int {
	if total == 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(limit)))
}

// defaultOrder returns a copy sorted by createdAt, then id
func defaultOrder(entities []domain.CRMEntity) []domain.CRMEntity {
	out := append([]domain.CRMEntity(nil), entities...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func matchesSearch(e domain.CRMEntity, needle string, excluded map[string]struct{}) bool {
	for k, v := range e.Data {
		if v == nil {
			continue
		}
		if _, skip := excluded[k]; skip {
			continue
		}
		if strings.Contains(strings.ToLower(fmt.Sprint(v)), needle) {
			return true
		}
	}
	return false
}

func inDateRange(e domain.CRMEntity, r DateRange) bool {
	if r.From == nil && r.To == nil {
		return true
	}
	t, ok := asTime(fieldValue(e, r.Field))
	if !ok {
		return false
	}
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// fieldValue resolves the entity attributes first, then data keys
func fieldValue(e domain.CRMEntity, field string) interface{} {
	switch field {
	case "id":
		return e.ID
	case "stage":
		return e.Stage
	case "createdAt":
		return e.CreatedAt
	case "updatedAt":
		return e.UpdatedAt
	}
	return e.Data[field]
}

func asTime(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		return ParseTime(val)
	default:
		return time.Time{}, false
	}
}

// ParseTime accepts RFC 3339 timestamps and plain dates
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDateBound parses a range bound. A plain date used as an upper bound
// covers the whole day.
func ParseDateBound(s string, upper bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if d, err := time.Parse("2006-01-02", s); err == nil {
		if upper {
			d = d.Add(24*time.Hour - time.Nanosecond)
		}
		return &d, nil
	}
	t, ok := ParseTime(s)
	if !ok {
		return nil, fmt.Errorf("invalid date %q", s)
	}
	return &t, nil
}

// compareValues orders nil first, then numbers numerically, times
// chronologically, booleans false before true, and everything else by its
// string form
func compareValues(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if fa, ok := asNumber(a); ok {
		if fb, ok := asNumber(b); ok {
			return compareFloat(fa, fb)
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
