package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"crud6-backend/internal/model"
	"crud6-backend/internal/schema"
)

const (
	defaultPerPage = 25
	maxPerPage     = 100
)

// ListPlan is a parsed list request.
type ListPlan struct {
	Query   model.Query
	Page    int
	PerPage int
}

// ParseListQuery parses filter[field], filter[field.op], search, sort, page
// and per_page. Only filterable fields filter and only sortable fields sort.
func ParseListQuery(c *fiber.Ctx, cfg *model.TableConfig) (*ListPlan, error) {
	s := cfg.Schema
	plan := &ListPlan{Page: 1, PerPage: defaultPerPage}

	keys := make([]string, 0)
	queries := c.Queries()
	for key := range queries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		field, op := parseFilterKey(key[7 : len(key)-1])
		f := s.Field(field)
		if f == nil || !f.Filterable || !cfg.HasColumn(field) {
			return nil, UnknownFieldError(fmt.Sprintf("Unknown filter field: %s", field))
		}
		if !model.ValidOp(op) {
			return nil, InvalidPayloadError(fmt.Sprintf("Unknown filter operator: %s", op))
		}
		value, err := coerceValue(cfg.Casts[field], queries[key], op)
		if err != nil {
			return nil, InvalidPayloadError(fmt.Sprintf("Invalid filter value for %s: %v", field, err))
		}
		plan.Query.Filters = append(plan.Query.Filters, model.Filter{Field: field, Op: op, Value: value})
	}

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		for _, f := range s.Fields {
			if f.Searchable && cfg.HasColumn(f.Name) && !contains(cfg.Hidden, f.Name) {
				plan.Query.SearchFields = append(plan.Query.SearchFields, f.Name)
			}
		}
		if len(plan.Query.SearchFields) > 0 {
			plan.Query.Search = search
		}
	}

	if sortParam := c.Query("sort"); sortParam != "" {
		for _, part := range strings.Split(sortParam, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			desc := strings.HasPrefix(part, "-")
			field := strings.TrimPrefix(part, "-")
			f := s.Field(field)
			if f == nil || !f.Sortable || !cfg.HasColumn(field) {
				return nil, UnknownFieldError(fmt.Sprintf("Unknown sort field: %s", field))
			}
			plan.Query.Sorts = append(plan.Query.Sorts, model.Sort{Field: field, Desc: desc})
		}
	} else {
		plan.Query.Sorts = defaultSorts(cfg)
	}

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			plan.Page = v
		}
	}
	if pp := c.Query("per_page"); pp != "" {
		if v, err := strconv.Atoi(pp); err == nil && v > 0 {
			plan.PerPage = min(v, maxPerPage)
		}
	}
	plan.Query.Limit = plan.PerPage
	plan.Query.Offset = (plan.Page - 1) * plan.PerPage
	return plan, nil
}

// defaultSorts reads the schema's default_sort, given as "-field", a list of
// those, or a {field: direction} object. Unknown columns are skipped.
func defaultSorts(cfg *model.TableConfig) []model.Sort {
	var sorts []model.Sort
	add := func(field string, desc bool) {
		if cfg.HasColumn(field) {
			sorts = append(sorts, model.Sort{Field: field, Desc: desc})
		}
	}
	switch v := cfg.Schema.DefaultSort.(type) {
	case string:
		add(strings.TrimPrefix(v, "-"), strings.HasPrefix(v, "-"))
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(strings.TrimPrefix(s, "-"), strings.HasPrefix(s, "-"))
			}
		}
	case map[string]any:
		fields := make([]string, 0, len(v))
		for field := range v {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			dir, _ := v[field].(string)
			add(field, strings.EqualFold(dir, "desc"))
		}
	}
	if len(sorts) == 0 {
		sorts = append(sorts, model.Sort{Field: cfg.PrimaryKey})
	}
	return sorts
}

// parseFilterKey splits "total.gte" into ("total", "gte") or "status" into ("status", "eq").
func parseFilterKey(key string) (string, string) {
	if field, op, ok := strings.Cut(key, "."); ok {
		return field, op
	}
	return key, model.OpEq
}

// coerceValue converts a query string value to the column's cast.
func coerceValue(cast model.Cast, val string, op string) (any, error) {
	switch op {
	case model.OpNull, model.OpNotNull:
		return nil, nil
	case model.OpIn, model.OpNotIn:
		parts := strings.Split(val, ",")
		coerced := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p == "" {
				continue
			}
			v, err := coerceSingleValue(cast, p)
			if err != nil {
				return nil, err
			}
			coerced = append(coerced, v)
		}
		return coerced, nil
	case model.OpLike:
		return val, nil
	}
	return coerceSingleValue(cast, val)
}

func coerceSingleValue(cast model.Cast, val string) (any, error) {
	switch cast {
	case model.CastInt:
		return strconv.ParseInt(val, 10, 64)
	case model.CastFloat:
		return strconv.ParseFloat(val, 64)
	case model.CastBool:
		return strconv.ParseBool(val)
	default:
		return val, nil
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

// schemaField returns the named field if it is a physical column of cfg.
func schemaField(cfg *model.TableConfig, name string) *schema.FieldSpec {
	if !cfg.HasColumn(name) {
		return nil
	}
	return cfg.Schema.Field(name)
}
