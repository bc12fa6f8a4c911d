package schema

import "strings"

// fieldPass rewrites one field's attribute map. Passes never fail; values
// they cannot interpret are left alone or replaced by a safe default.
type fieldPass func(name string, attrs map[string]any) map[string]any

// fieldPasses run in order over every field.
var fieldPasses = []fieldPass{
	foldSynonyms,
	normalizeLookup,
	normalizeVisibility,
	normalizeBooleanUI,
}

func normalizeField(name string, attrs map[string]any) map[string]any {
	attrs = cloneMap(attrs)
	if attrs == nil {
		attrs = map[string]any{}
	}
	for _, pass := range fieldPasses {
		attrs = pass(name, attrs)
	}
	return attrs
}

var typeAliases = map[string]string{
	"int":       "integer",
	"bigint":    "integer",
	"bool":      "boolean",
	"number":    "float",
	"double":    "float",
	"str":       "string",
	"varchar":   "string",
	"timestamp": "datetime",
}

// camelSynonyms are accepted spellings folded onto the canonical key. The
// first spelling present wins.
var camelSynonyms = [][2]string{
	{"autoIncrement", "auto_increment"},
	{"autoincrement", "auto_increment"},
	{"primaryKey", "primary"},
	{"primary_key", "primary"},
	{"showIn", "show_in"},
	{"visibleIn", "show_in"},
	{"visible_in", "show_in"},
	{"filterType", "filter_type"},
	{"fieldTemplate", "field_template"},
	{"lookupModel", "lookup_model"},
	{"lookupId", "lookup_id"},
	{"lookupDesc", "lookup_desc"},
	{"defaultValue", "default"},
}

func canonicalType(attrs map[string]any) string {
	t := strings.ToLower(asString(attrs["type"]))
	if alias, ok := typeAliases[t]; ok {
		t = alias
	}
	if t == "" {
		t = "string"
	}
	attrs["type"] = t
	return t
}

func isBooleanType(t string) bool {
	return t == "boolean" || strings.HasPrefix(t, "boolean-")
}

// foldSynonyms maps alternate spellings onto canonical keys: nested ui hints,
// references, camelCase names, validation shorthands and the
// required/nullable pair.
func foldSynonyms(_ string, attrs map[string]any) map[string]any {
	t := canonicalType(attrs)

	if ui, ok := asMap(attrs["ui"]); ok {
		delete(attrs, "ui")
		var widget string
		for k, v := range ui {
			switch k {
			case "widget":
				widget = strings.ToLower(asString(v))
			case "type":
				if asString(v) == "lookup" && t == "integer" {
					t = "smartlookup"
					attrs["type"] = t
				}
			default:
				setIfAbsent(attrs, k, cloneValue(v))
			}
		}
		if widget != "" {
			if isBooleanType(t) {
				attrs["ui"] = widget
			} else {
				setIfAbsent(attrs, "widget", widget)
			}
		}
	}

	if refs, ok := asMap(attrs["references"]); ok {
		delete(attrs, "references")
		lookup, _ := asMap(attrs["lookup"])
		if lookup == nil {
			lookup = map[string]any{}
		}
		if m := asString(refs["model"]); m != "" {
			setIfAbsent(lookup, "model", m)
		}
		if k := asString(refs["key"]); k != "" {
			setIfAbsent(lookup, "id", k)
		}
		if d := asString(refs["display"]); d != "" {
			setIfAbsent(lookup, "desc", d)
			if t != "smartlookup" {
				t = "smartlookup"
				attrs["type"] = t
			}
		}
		attrs["lookup"] = lookup
	}

	for _, pair := range camelSynonyms {
		moveKey(attrs, pair[0], pair[1])
	}

	foldValidation(attrs)

	_, hasRequired := attrs["required"]
	_, hasNullable := attrs["nullable"]
	switch {
	case hasRequired && !hasNullable:
		attrs["nullable"] = !asBool(attrs["required"], false)
	case hasNullable && !hasRequired:
		attrs["required"] = !asBool(attrs["nullable"], true)
	}
	return attrs
}

// foldValidation merges the unique, length and validate shorthands into the
// validation map.
func foldValidation(attrs map[string]any) {
	v, _ := asMap(attrs["validation"])
	if v == nil {
		v = map[string]any{}
	}
	if u, ok := attrs["unique"]; ok {
		delete(attrs, "unique")
		if asBool(u, false) {
			setIfAbsent(v, "unique", true)
		}
	}
	if l, ok := attrs["length"]; ok {
		delete(attrs, "length")
		switch lv := l.(type) {
		case map[string]any:
			setIfAbsent(v, "length", lv)
		default:
			if n, ok := asNumber(lv); ok {
				setIfAbsent(v, "length", map[string]any{"max": n})
			}
		}
	}
	if extra, ok := asMap(attrs["validate"]); ok {
		delete(attrs, "validate")
		for k, item := range extra {
			setIfAbsent(v, k, item)
		}
	}
	if n, ok := asNumber(v["length"]); ok {
		v["length"] = map[string]any{"max": n}
	}
	if req, ok := v["required"]; ok {
		if _, set := attrs["required"]; !set && asBool(req, false) {
			attrs["required"] = true
		}
	}
	if len(v) > 0 {
		attrs["validation"] = v
	} else {
		delete(attrs, "validation")
	}
}

// normalizeLookup resolves smartlookup targets. Flat lookup_* keys win over
// the nested lookup object, which wins over field-level model/id/desc.
// Missing keys default to id and name.
func normalizeLookup(_ string, attrs map[string]any) map[string]any {
	if asString(attrs["type"]) != "smartlookup" {
		return attrs
	}
	nested, _ := asMap(attrs["lookup"])
	pick := func(flat, key, def string) string {
		if s := asString(attrs[flat]); s != "" {
			return s
		}
		if s := asString(nested[key]); s != "" {
			return s
		}
		if s := asString(attrs[key]); s != "" {
			return s
		}
		return def
	}
	model := pick("lookup_model", "model", "")
	id := pick("lookup_id", "id", "id")
	desc := pick("lookup_desc", "desc", "name")
	delete(attrs, "model")
	delete(attrs, "id")
	delete(attrs, "desc")

	attrs["lookup_model"] = model
	attrs["lookup_id"] = id
	attrs["lookup_desc"] = desc
	attrs["lookup"] = map[string]any{"model": model, "id": id, "desc": desc}
	return attrs
}

// normalizeVisibility makes show_in the single source of truth for which
// contexts a field appears in and derives the legacy booleans from it.
func normalizeVisibility(_ string, attrs map[string]any) map[string]any {
	t := asString(attrs["type"])
	autoInc := asBool(attrs["auto_increment"], false) || asBool(attrs["primary"], false)
	readonly := asBool(attrs["readonly"], autoInc)

	var set []string
	if raw, ok := attrs["show_in"]; ok {
		set = expandShowIn(raw)
	} else {
		listable := asBool(attrs["listable"], t != "password")
		editable := asBool(attrs["editable"], true)
		viewable := asBool(attrs["viewable"], true)
		var contexts []string
		if listable {
			contexts = append(contexts, ContextList)
		}
		if editable && !readonly {
			contexts = append(contexts, ContextCreate, ContextEdit)
		}
		if viewable && t != "password" {
			contexts = append(contexts, ContextDetail)
		}
		set = expandShowIn(contexts)
	}

	has := make(map[string]bool, len(set))
	for _, c := range set {
		has[c] = true
	}
	attrs["show_in"] = stringsToAny(set)
	attrs["listable"] = has[ContextList]
	attrs["editable"] = has[ContextCreate] || has[ContextEdit]
	attrs["viewable"] = has[ContextDetail]
	attrs["readonly"] = readonly
	return attrs
}

// expandShowIn expands "form" into create and edit, drops unknown names and
// duplicates, and orders the result list, create, edit, detail.
func expandShowIn(v any) []string {
	want := make(map[string]bool)
	for _, c := range asStringList(v) {
		c = strings.ToLower(c)
		if c == ContextForm {
			want[ContextCreate] = true
			want[ContextEdit] = true
			continue
		}
		want[c] = true
	}
	out := make([]string, 0, len(visibilityOrder))
	for _, c := range visibilityOrder {
		if want[c] {
			out = append(out, c)
		}
	}
	return out
}

var booleanWidgets = map[string]string{
	"tgl":      "toggle",
	"toggle":   "toggle",
	"switch":   "toggle",
	"chk":      "checkbox",
	"checkbox": "checkbox",
	"sel":      "select",
	"select":   "select",
	"yn":       "select",
	"yesno":    "select",
}

// normalizeBooleanUI folds boolean-tgl style types onto boolean plus a ui
// widget. An explicit ui value wins; a bare boolean defaults to checkbox.
func normalizeBooleanUI(_ string, attrs map[string]any) map[string]any {
	t := asString(attrs["type"])
	if !isBooleanType(t) {
		return attrs
	}
	suffix := strings.TrimPrefix(strings.TrimPrefix(t, "boolean"), "-")
	attrs["type"] = "boolean"
	if ui := strings.ToLower(asString(attrs["ui"])); ui != "" {
		if w, ok := booleanWidgets[ui]; ok {
			attrs["ui"] = w
		} else {
			attrs["ui"] = ui
		}
		return attrs
	}
	if w, ok := booleanWidgets[suffix]; ok {
		attrs["ui"] = w
	} else {
		attrs["ui"] = "checkbox"
	}
	return attrs
}
