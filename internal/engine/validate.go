package engine

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"crud6-backend/internal/model"
	"crud6-backend/internal/schema"
	"crud6-backend/internal/store"
)

var patternCache sync.Map

// ValidateInput checks input against the schema's field rules and returns
// every violation. On create, required fields missing from input fail; on
// update only the submitted fields are checked. exceptID excludes the record
// being updated from unique checks.
func ValidateInput(ctx context.Context, q store.Querier, t *target, input map[string]any, isCreate bool, exceptID any) ([]ErrorDetail, error) {
	var errs []ErrorDetail
	add := func(field, rule, msg string) {
		errs = append(errs, ErrorDetail{Field: field, Rule: rule, Message: msg})
	}

	if isCreate {
		for _, f := range t.schema.Fields {
			if !f.Required || f.AutoIncrement || f.Default != nil || !f.VisibleIn(schema.ContextCreate) {
				continue
			}
			if v, ok := input[f.Name]; !ok || isBlank(v) {
				add(f.Name, "required", fmt.Sprintf("%s is required", label(f)))
			}
		}
	}

	fields := make([]string, 0, len(input))
	for name := range input {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	for _, name := range fields {
		f := t.schema.Field(name)
		if f == nil {
			continue
		}
		v := input[name]
		if isBlank(v) {
			if !isCreate && f.Required {
				add(name, "required", fmt.Sprintf("%s is required", label(f)))
			}
			continue
		}
		cast, err := t.cfg.CastInput(map[string]any{name: v})
		if err != nil {
			add(name, "type", fmt.Sprintf("%s must be a valid %s", label(f), f.Type))
			continue
		}
		v = cast[name]
		errs = append(errs, checkRules(f, v)...)
		if unique, _ := f.Validation["unique"].(bool); unique && t.cfg.HasColumn(name) {
			taken, err := t.repo.Exists(ctx, q, name, v, exceptID)
			if err != nil {
				return nil, err
			}
			if taken {
				add(name, "unique", fmt.Sprintf("%s is already taken", label(f)))
			}
		}
	}
	return errs, nil
}

func checkRules(f *schema.FieldSpec, v any) []ErrorDetail {
	var errs []ErrorDetail
	add := func(rule, msg string) {
		errs = append(errs, ErrorDetail{Field: f.Name, Rule: rule, Message: msg})
	}
	rules := make([]string, 0, len(f.Validation))
	for rule := range f.Validation {
		rules = append(rules, rule)
	}
	sort.Strings(rules)

	s, isString := v.(string)
	for _, rule := range rules {
		arg := f.Validation[rule]
		switch rule {
		case "length":
			bounds, _ := arg.(map[string]any)
			n := utf8.RuneCountInString(fmt.Sprint(v))
			if lo, ok := number(bounds["min"]); ok && float64(n) < lo {
				add(rule, fmt.Sprintf("%s must be at least %v characters", label(f), lo))
			}
			if hi, ok := number(bounds["max"]); ok && float64(n) > hi {
				add(rule, fmt.Sprintf("%s must be at most %v characters", label(f), hi))
			}
		case "range":
			bounds, _ := arg.(map[string]any)
			n, ok := number(v)
			if !ok {
				add(rule, fmt.Sprintf("%s must be a number", label(f)))
				continue
			}
			if lo, ok := number(bounds["min"]); ok && n < lo {
				add(rule, fmt.Sprintf("%s must be at least %v", label(f), lo))
			}
			if hi, ok := number(bounds["max"]); ok && n > hi {
				add(rule, fmt.Sprintf("%s must be at most %v", label(f), hi))
			}
		case "email":
			if !enabled(arg) {
				continue
			}
			if _, err := mail.ParseAddress(s); !isString || err != nil || strings.ContainsAny(s, "<> ") {
				add(rule, fmt.Sprintf("%s must be a valid email address", label(f)))
			}
		case "url":
			if !enabled(arg) {
				continue
			}
			if u, err := url.ParseRequestURI(s); !isString || err != nil || u.Scheme == "" || u.Host == "" {
				add(rule, fmt.Sprintf("%s must be a valid URL", label(f)))
			}
		case "regex", "pattern":
			expr := patternOf(arg)
			if expr == "" {
				continue
			}
			re, err := compilePattern(expr)
			if err != nil || !re.MatchString(fmt.Sprint(v)) {
				add(rule, fmt.Sprintf("%s has an invalid format", label(f)))
			}
		case "in":
			allowed, _ := arg.([]any)
			if len(allowed) > 0 && !containsValue(allowed, v) {
				add(rule, fmt.Sprintf("%s must be one of the allowed values", label(f)))
			}
		}
	}
	return errs
}

func compilePattern(expr string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(expr); ok {
		return re.(*regexp.Regexp), nil
	}
	body := expr
	// accept /.../flags delimiters
	if len(body) > 1 && body[0] == '/' {
		if end := strings.LastIndex(body, "/"); end > 0 {
			flags := body[end+1:]
			body = body[1:end]
			if strings.Contains(flags, "i") {
				body = "(?i)" + body
			}
		}
	}
	re, err := regexp.Compile(body)
	if err != nil {
		return nil, err
	}
	patternCache.Store(expr, re)
	return re, nil
}

func patternOf(arg any) string {
	switch v := arg.(type) {
	case string:
		return v
	case map[string]any:
		for _, k := range []string{"regex", "pattern", "value"} {
			if s, ok := v[k].(string); ok {
				return s
			}
		}
	}
	return ""
}

func enabled(arg any) bool {
	if b, ok := arg.(bool); ok {
		return b
	}
	return arg != nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func containsValue(list []any, v any) bool {
	want := fmt.Sprint(v)
	for _, item := range list {
		if fmt.Sprint(item) == want {
			return true
		}
	}
	return false
}

func label(f *schema.FieldSpec) string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// fillable keeps the input keys the table accepts from requests.
func fillable(cfg *model.TableConfig, body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		if cfg.IsFillable(k) {
			out[k] = v
		}
	}
	return out
}
