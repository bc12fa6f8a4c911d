package schema

// knownFieldKeys are decoded into typed FieldSpec members.
var knownFieldKeys = map[string]bool{
	"type": true, "label": true, "description": true, "placeholder": true,
	"required": true, "nullable": true, "default": true,
	"auto_increment": true, "primary": true, "computed": true,
	"sortable": true, "filterable": true, "searchable": true,
	"filter_type": true, "readonly": true, "editable": true,
	"listable": true, "viewable": true, "show_in": true,
	"validation": true, "lookup": true, "lookup_model": true,
	"lookup_id": true, "lookup_desc": true, "ui": true, "width": true,
	"field_template": true,
}

// fieldFromAttrs decodes a normalized attribute map.
func fieldFromAttrs(name string, attrs map[string]any) *FieldSpec {
	f := &FieldSpec{
		Name:          name,
		Type:          asString(attrs["type"]),
		Label:         asString(attrs["label"]),
		Description:   asString(attrs["description"]),
		Placeholder:   asString(attrs["placeholder"]),
		Required:      asBool(attrs["required"], false),
		Default:       cloneValue(attrs["default"]),
		AutoIncrement: asBool(attrs["auto_increment"], false),
		Primary:       asBool(attrs["primary"], false),
		Computed:      asBool(attrs["computed"], false),
		Sortable:      asBool(attrs["sortable"], false),
		Filterable:    asBool(attrs["filterable"], false),
		Searchable:    asBool(attrs["searchable"], false),
		FilterType:    asString(attrs["filter_type"]),
		Readonly:      asBool(attrs["readonly"], false),
		Editable:      asBool(attrs["editable"], false),
		Listable:      asBool(attrs["listable"], false),
		Viewable:      asBool(attrs["viewable"], false),
		ShowIn:        asStringList(attrs["show_in"]),
		UI:            asString(attrs["ui"]),
		Width:         cloneValue(attrs["width"]),
		FieldTemplate: asString(attrs["field_template"]),
	}
	if f.Type == "" {
		f.Type = "string"
	}
	f.Nullable = asBool(attrs["nullable"], !f.Required)
	if v, ok := asMap(attrs["validation"]); ok && len(v) > 0 {
		f.Validation = cloneMap(v)
	}
	if f.Type == "smartlookup" {
		f.Lookup = &Lookup{
			Model: asString(attrs["lookup_model"]),
			ID:    asString(attrs["lookup_id"]),
			Desc:  asString(attrs["lookup_desc"]),
		}
	} else if l, ok := asMap(attrs["lookup"]); ok {
		f.Lookup = &Lookup{
			Model: asString(l["model"]),
			ID:    asString(l["id"]),
			Desc:  asString(l["desc"]),
		}
	}
	for k, v := range attrs {
		if knownFieldKeys[k] {
			continue
		}
		if f.Extra == nil {
			f.Extra = map[string]any{}
		}
		f.Extra[k] = cloneValue(v)
	}
	return f
}

// fieldAttrs encodes a field back to its canonical attribute map.
func fieldAttrs(f *FieldSpec) map[string]any {
	attrs := make(map[string]any, len(f.Extra)+16)
	for k, v := range f.Extra {
		attrs[k] = cloneValue(v)
	}
	attrs["type"] = f.Type
	attrs["label"] = f.Label
	attrs["required"] = f.Required
	attrs["nullable"] = f.Nullable
	attrs["readonly"] = f.Readonly
	attrs["editable"] = f.Editable
	attrs["listable"] = f.Listable
	attrs["viewable"] = f.Viewable
	attrs["show_in"] = stringsToAny(f.ShowIn)

	setString := func(key, v string) {
		if v != "" {
			attrs[key] = v
		}
	}
	setFlag := func(key string, v bool) {
		if v {
			attrs[key] = true
		}
	}
	setString("description", f.Description)
	setString("placeholder", f.Placeholder)
	setString("filter_type", f.FilterType)
	setString("ui", f.UI)
	setString("field_template", f.FieldTemplate)
	setFlag("auto_increment", f.AutoIncrement)
	setFlag("primary", f.Primary)
	setFlag("computed", f.Computed)
	setFlag("sortable", f.Sortable)
	setFlag("filterable", f.Filterable)
	setFlag("searchable", f.Searchable)
	if f.Default != nil {
		attrs["default"] = cloneValue(f.Default)
	}
	if f.Width != nil {
		attrs["width"] = cloneValue(f.Width)
	}
	if len(f.Validation) > 0 {
		attrs["validation"] = cloneMap(f.Validation)
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

func lookupAttrs(l *Lookup) map[string]any {
	return map[string]any{"model": l.Model, "id": l.ID, "desc": l.Desc}
}
