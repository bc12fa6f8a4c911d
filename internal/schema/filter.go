package schema

import "strings"

// Payload is a context-filtered schema.
type Payload map[string]any

// detailKeys are the schema-level keys carried into the detail projection.
var detailKeys = []string{"detail", "details", "actions", "relationships", "detail_editable", "render_mode", "title_field"}

// KnownContext reports whether name is a context Filter understands.
func KnownContext(name string) bool {
	switch name {
	case ContextList, ContextCreate, ContextEdit, ContextForm, ContextDetail, ContextMeta:
		return true
	}
	return false
}

// ParseContexts splits a comma separated context string, dropping blanks
// and duplicates.
func ParseContexts(raw string) []string {
	seen := map[string]bool{}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		c := strings.ToLower(strings.TrimSpace(part))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Filter projects a schema for a presentation context. An empty or "full"
// context returns the schema itself. A comma separated list combines
// projections under "contexts", even when only one known context is left
// after duplicates and unknown names are dropped. Unknown context names fail
// open to the full schema; in a list, the full schema is only returned when
// no name is known. A list naming "full" returns the full schema.
func Filter(s *Schema, context string) any {
	var known []string
	for _, c := range ParseContexts(context) {
		if c == ContextFull {
			return s
		}
		if KnownContext(c) {
			known = append(known, c)
		}
	}
	if len(known) == 0 {
		return s
	}
	return Compose(s, known, strings.Contains(context, ","))
}

// Compose builds the payload for known contexts. A single context is merged
// into the base metadata unless combined is set; otherwise every projection
// is keyed under "contexts".
func Compose(s *Schema, contexts []string, combined bool) Payload {
	p := BaseMetadata(s)
	if len(contexts) == 1 && !combined {
		for k, v := range Project(s, contexts[0]) {
			p[k] = v
		}
		return p
	}
	projections := make(map[string]any, len(contexts))
	for _, c := range contexts {
		projections[c] = Project(s, c)
	}
	p["contexts"] = projections
	return p
}

// BaseMetadata returns the keys shared by every projection.
func BaseMetadata(s *Schema) Payload {
	p := Payload{
		"model":       s.Model,
		"title":       s.Title,
		"primary_key": s.PrimaryKey,
		"permissions": copyPermissions(s.Permissions),
	}
	if s.Description != "" {
		p["description"] = s.Description
	}
	return p
}

// Project returns the context-specific part of a payload, without base
// metadata. Unknown contexts yield nil.
func Project(s *Schema, context string) Payload {
	switch context {
	case ContextList:
		p := Payload{"fields": projectFields(s, ContextList, listAttrs)}
		if s.DefaultSort != nil {
			p["default_sort"] = cloneValue(s.DefaultSort)
		}
		return p
	case ContextCreate:
		return Payload{"fields": projectFields(s, ContextCreate, formAttrs)}
	case ContextEdit:
		return Payload{"fields": projectFields(s, ContextEdit, formAttrs)}
	case ContextForm:
		return Payload{"fields": projectForm(s)}
	case ContextDetail:
		return projectDetail(s)
	case ContextMeta:
		return Payload{}
	}
	return nil
}

func projectFields(s *Schema, context string, attrs func(*FieldSpec) map[string]any) OrderedFields {
	out := OrderedFields{}
	for _, f := range s.Fields {
		if f.VisibleIn(context) {
			out = append(out, NamedAttrs{Name: f.Name, Attrs: attrs(f)})
		}
	}
	return out
}

// projectForm is the union of the create and edit projections in field
// order. Both use the same attribute set, so the create definition stands
// for fields in both.
func projectForm(s *Schema) OrderedFields {
	out := OrderedFields{}
	for _, f := range s.Fields {
		if f.VisibleIn(ContextCreate) || f.VisibleIn(ContextEdit) {
			out = append(out, NamedAttrs{Name: f.Name, Attrs: formAttrs(f)})
		}
	}
	return out
}

func projectDetail(s *Schema) Payload {
	fields := OrderedFields{}
	for _, f := range s.Fields {
		attrs := map[string]any{
			"type":     f.Type,
			"label":    f.Label,
			"readonly": f.Readonly,
			"editable": f.Editable,
		}
		if f.Description != "" {
			attrs["description"] = f.Description
		}
		if f.Default != nil {
			attrs["default"] = cloneValue(f.Default)
		}
		if f.FieldTemplate != "" {
			attrs["field_template"] = f.FieldTemplate
		}
		if f.Lookup != nil {
			attrs["lookup"] = lookupAttrs(f.Lookup)
		}
		fields = append(fields, NamedAttrs{Name: f.Name, Attrs: attrs})
	}
	p := Payload{"fields": fields}
	for _, key := range detailKeys {
		if v, ok := detailValue(s, key); ok {
			p[key] = v
		}
	}
	return p
}

func detailValue(s *Schema, key string) (any, bool) {
	switch key {
	case "detail":
		return s.Detail, s.Detail != nil
	case "details":
		return s.Details, len(s.Details) > 0
	case "actions":
		return s.Actions, len(s.Actions) > 0
	case "relationships":
		return s.Relationships, len(s.Relationships) > 0
	case "detail_editable":
		return s.DetailEditable, s.DetailEditable != nil
	case "render_mode":
		return s.RenderMode, s.RenderMode != ""
	case "title_field":
		return s.TitleField, s.TitleField != ""
	}
	return nil, false
}

func listAttrs(f *FieldSpec) map[string]any {
	attrs := map[string]any{
		"type":       f.Type,
		"label":      f.Label,
		"sortable":   f.Sortable,
		"filterable": f.Filterable,
		"searchable": f.Searchable,
	}
	if f.FilterType != "" {
		attrs["filter_type"] = f.FilterType
	}
	if f.Width != nil {
		attrs["width"] = cloneValue(f.Width)
	}
	if f.FieldTemplate != "" {
		attrs["field_template"] = f.FieldTemplate
	}
	if f.UI != "" {
		attrs["ui"] = f.UI
	}
	return attrs
}

func formAttrs(f *FieldSpec) map[string]any {
	attrs := map[string]any{
		"type":     f.Type,
		"label":    f.Label,
		"required": f.Required,
		"readonly": f.Readonly,
		"show_in":  stringsToAny(f.ShowIn),
	}
	if len(f.Validation) > 0 {
		attrs["validation"] = cloneMap(f.Validation)
	}
	if f.Placeholder != "" {
		attrs["placeholder"] = f.Placeholder
	}
	if f.Default != nil {
		attrs["default"] = cloneValue(f.Default)
	}
	if f.UI != "" {
		attrs["ui"] = f.UI
	}
	if f.Lookup != nil {
		attrs["lookup"] = lookupAttrs(f.Lookup)
		if f.Type == "smartlookup" {
			attrs["lookup_model"] = f.Lookup.Model
			attrs["lookup_id"] = f.Lookup.ID
			attrs["lookup_desc"] = f.Lookup.Desc
		}
	}
	return attrs
}

func copyPermissions(p map[string]string) map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
