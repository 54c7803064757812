package vectorstore

import (
	"fmt"
	"math"
	"sort"

	"realestate-rag/internal/domain"
)

type conditionKind int

const (
	matchValue conditionKind = iota
	matchAny
	matchRange
)

// condition is one normalised filter clause. value holds a string, bool or int64.
type condition struct {
	field string
	kind  conditionKind
	value any
	anyOf []string
	rng   domain.Range
}

// parseFilters normalises an opaque filter map. Conditions are sorted by
// field so backends receive them in a stable order.
func parseFilters(filters map[string]any) ([]condition, error) {
	fields := make([]string, 0, len(filters))
	for k := range filters {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	conds := make([]condition, 0, len(fields))
	for _, field := range fields {
		c, err := parseCondition(field, filters[field])
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}

func parseCondition(field string, v any) (condition, error) {
	c := condition{field: field}
	switch val := v.(type) {
	case string:
		c.kind, c.value = matchValue, val
	case bool:
		c.kind, c.value = matchValue, val
	case int:
		c.kind, c.value = matchValue, int64(val)
	case int32:
		c.kind, c.value = matchValue, int64(val)
	case int64:
		c.kind, c.value = matchValue, val
	case float32:
		return parseCondition(field, float64(val))
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			c.kind, c.value = matchValue, int64(val)
		} else {
			c.kind, c.rng = matchRange, domain.Range{Gte: &val, Lte: &val}
		}
	case []string:
		c.kind, c.anyOf = matchAny, val
	case []any:
		list := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return c, &domain.ValidationError{Field: "filters." + field, Message: "list values must be strings"}
			}
			list = append(list, s)
		}
		c.kind, c.anyOf = matchAny, list
	case domain.Range:
		c.kind, c.rng = matchRange, val
	case *domain.Range:
		if val == nil {
			return c, &domain.ValidationError{Field: "filters." + field, Message: "nil range"}
		}
		c.kind, c.rng = matchRange, *val
	case map[string]any:
		rng, err := parseRangeMap(field, val)
		if err != nil {
			return c, err
		}
		c.kind, c.rng = matchRange, rng
	default:
		return c, &domain.ValidationError{Field: "filters." + field, Message: fmt.Sprintf("unsupported value type %T", v)}
	}
	return c, nil
}

func parseRangeMap(field string, m map[string]any) (domain.Range, error) {
	var rng domain.Range
	if len(m) == 0 {
		return rng, &domain.ValidationError{Field: "filters." + field, Message: "empty range"}
	}
	for key, raw := range m {
		f, ok := toFloat(raw)
		if !ok {
			return rng, &domain.ValidationError{Field: "filters." + field + "." + key, Message: "range bound must be numeric"}
		}
		switch key {
		case "gt":
			rng.Gt = &f
		case "gte":
			rng.Gte = &f
		case "lt":
			rng.Lt = &f
		case "lte":
			rng.Lte = &f
		default:
			return rng, &domain.ValidationError{Field: "filters." + field + "." + key, Message: "unknown range bound"}
		}
	}
	return rng, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// matches reports whether a point's metadata satisfies every condition.
func matches(meta map[string]any, conds []condition) bool {
	for _, c := range conds {
		v, ok := meta[c.field]
		if !ok {
			return false
		}
		switch c.kind {
		case matchValue:
			if !valueEquals(v, c.value) {
				return false
			}
		case matchAny:
			s, ok := v.(string)
			if !ok || !contains(c.anyOf, s) {
				return false
			}
		case matchRange:
			f, ok := toFloat(v)
			if !ok || !inRange(f, c.rng) {
				return false
			}
		}
	}
	return true
}

func valueEquals(meta, want any) bool {
	switch w := want.(type) {
	case int64:
		f, ok := toFloat(meta)
		return ok && f == float64(w)
	default:
		return meta == want
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func inRange(f float64, r domain.Range) bool {
	if r.Gt != nil && !(f > *r.Gt) {
		return false
	}
	if r.Gte != nil && !(f >= *r.Gte) {
		return false
	}
	if r.Lt != nil && !(f < *r.Lt) {
		return false
	}
	if r.Lte != nil && !(f <= *r.Lte) {
		return false
	}
	return true
}
