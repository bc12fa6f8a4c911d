package schema

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// topLevelSynonyms fold accepted top-level spellings onto canonical keys.
var topLevelSynonyms = [][2]string{
	{"primaryKey", "primary_key"},
	{"softDelete", "soft_delete"},
	{"soft_deletes", "soft_delete"},
	{"titleField", "title_field"},
	{"renderMode", "render_mode"},
	{"detailEditable", "detail_editable"},
	{"defaultSort", "default_sort"},
}

var relationshipSynonyms = [][2]string{
	{"pivotTable", "pivot_table"},
	{"foreignKey", "foreign_key"},
	{"relatedKey", "related_key"},
	{"firstPivotTable", "first_pivot_table"},
	{"firstForeignKey", "first_foreign_key"},
	{"firstRelatedKey", "first_related_key"},
	{"secondPivotTable", "second_pivot_table"},
	{"secondForeignKey", "second_foreign_key"},
	{"secondRelatedKey", "second_related_key"},
	{"onCreate", "on_create"},
	{"onUpdate", "on_update"},
	{"onDelete", "on_delete"},
}

var relationshipTypes = map[string]string{
	"many_to_many":            ManyToManyType,
	"manytomany":              ManyToManyType,
	"belongs_to_many":         ManyToManyType,
	"belongstomany":           ManyToManyType,
	"belongs_to_many_through": ManyToManyThroughType,
	"belongstomanythrough":    ManyToManyThroughType,
	"many_to_many_through":    ManyToManyThroughType,
}

var detailSynonyms = [][2]string{
	{"foreignKey", "foreign_key"},
	{"listFields", "list_fields"},
}

// typedTopLevel are the keys decoded into Schema fields; the rest go to Extra.
var typedTopLevel = map[string]bool{
	"model": true, "title": true, "description": true, "table": true,
	"primary_key": true, "timestamps": true, "soft_delete": true,
	"connection": true, "fields": true, "relationships": true,
	"details": true, "detail": true, "permissions": true, "actions": true,
	"default_sort": true, "title_field": true, "render_mode": true,
	"detail_editable": true,
}

// Normalize turns a raw schema into its canonical shape. It never fails:
// values it cannot interpret fall back to defaults and are reported through
// Schema.Issues. Normalize is idempotent,
// normalizing the JSON encoding of its output yields the same schema.
func Normalize(raw *RawSchema) *Schema {
	if raw == nil {
		raw = &RawSchema{}
	}
	top := cloneMap(raw.Attrs)
	if top == nil {
		top = map[string]any{}
	}
	for _, pair := range topLevelSynonyms {
		moveKey(top, pair[0], pair[1])
	}

	s := &Schema{
		Model:       asString(top["model"]),
		Description: asString(top["description"]),
		Table:       asString(top["table"]),
		PrimaryKey:  asString(top["primary_key"]),
		Timestamps:  asBool(top["timestamps"], true),
		SoftDelete:  asBool(top["soft_delete"], false),
		Connection:  asString(top["connection"]),
		TitleField:  asString(top["title_field"]),
		RenderMode:  asString(top["render_mode"]),
	}
	s.Title = asString(top["title"])
	if s.Title == "" {
		s.Title = s.Model
	}
	if v, ok := top["default_sort"]; ok && v != nil {
		s.DefaultSort = v
	}
	if v, ok := top["detail_editable"]; ok && v != nil {
		s.DetailEditable = v
	}

	var pkFromFields string
	for _, rf := range raw.Fields {
		if rf.Name == "" {
			continue
		}
		attrs := normalizeField(rf.Name, rf.Attrs)
		if asString(attrs["label"]) == "" {
			attrs["label"] = humanize(rf.Name)
		}
		f := fieldFromAttrs(rf.Name, attrs)
		if f.Primary && pkFromFields == "" {
			pkFromFields = f.Name
		}
		s.Fields = append(s.Fields, f)
	}
	if s.PrimaryKey == "" {
		s.PrimaryKey = pkFromFields
	}
	if s.PrimaryKey == "" {
		s.PrimaryKey = "id"
	}

	s.Permissions = normalizePermissions(top["permissions"], s.Model)
	s.Relationships, s.issues = normalizeRelationships(top["relationships"])
	s.Detail, s.Details = normalizeDetails(top["detail"], top["details"])
	s.Actions = normalizeActions(top["actions"])

	for k, v := range top {
		if typedTopLevel[k] {
			continue
		}
		if s.Extra == nil {
			s.Extra = map[string]any{}
		}
		s.Extra[k] = v
	}
	return s
}

func normalizePermissions(v any, model string) map[string]string {
	perms := map[string]string{}
	if m, ok := asMap(v); ok {
		for k, p := range m {
			if ps := asString(p); ps != "" {
				perms[k] = ps
			}
		}
	}
	for _, action := range permissionActions {
		if _, ok := perms[action]; !ok {
			perms[action] = action + "." + model
		}
	}
	return perms
}

var attachSynonyms = [][2]string{
	{"relatedId", "related_id"},
	{"relatedID", "related_id"},
	{"pivotData", "pivot_data"},
}

// relationshipEvents maps the action keys onto RelationshipActions.
var relationshipEvents = []string{"on_create", "on_update", "on_delete"}

func normalizeRelationships(v any) ([]RelationshipSpec, []Issue) {
	items, _ := v.([]any)
	var out []RelationshipSpec
	var issues []Issue
	for i, item := range items {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		m = cloneMap(m)
		for _, pair := range relationshipSynonyms {
			moveKey(m, pair[0], pair[1])
		}
		path := relationshipPath(m, i)

		var actions *RelationshipActions
		if raw, present := m["actions"]; present {
			delete(m, "actions")
			var found []Issue
			actions, found = normalizeRelationshipActions(raw, path+".actions")
			issues = append(issues, found...)
		}

		var spec RelationshipSpec
		issues = append(issues, decodeLenient(m, &spec, func() any { return &RelationshipSpec{} }, path)...)
		spec.Actions = actions
		key := strings.ToLower(strings.ReplaceAll(spec.Type, "-", "_"))
		if t, ok := relationshipTypes[key]; ok {
			spec.Type = t
		} else if t, ok := relationshipTypes[strings.ReplaceAll(key, "_", "")]; ok {
			spec.Type = t
		}
		if spec.Name == "" {
			spec.Name = spec.Model
		}
		if spec.Name == "" {
			continue
		}
		out = append(out, spec)
	}
	return out, issues
}

func relationshipPath(m map[string]any, index int) string {
	name := asString(m["name"])
	if name == "" {
		name = asString(m["model"])
	}
	if name == "" {
		return fmt.Sprintf("relationships[%d]", index)
	}
	return "relationships." + name
}

func normalizeRelationshipActions(v any, path string) (*RelationshipActions, []Issue) {
	if v == nil {
		return nil, nil
	}
	m, ok := asMap(v)
	if !ok {
		return nil, []Issue{{Path: path, Reason: "expected an object"}}
	}
	for _, pair := range relationshipSynonyms {
		moveKey(m, pair[0], pair[1])
	}
	var issues []Issue
	sets := make(map[string]*ActionSet, len(relationshipEvents))
	for _, event := range relationshipEvents {
		raw, present := m[event]
		if !present || raw == nil {
			continue
		}
		set, found := normalizeActionSet(raw, path+"."+event)
		issues = append(issues, found...)
		if set != nil {
			sets[event] = set
		}
	}
	if len(sets) == 0 {
		return nil, issues
	}
	return &RelationshipActions{
		OnCreate: sets["on_create"],
		OnUpdate: sets["on_update"],
		OnDelete: sets["on_delete"],
	}, issues
}

func normalizeActionSet(v any, path string) (*ActionSet, []Issue) {
	m, ok := asMap(v)
	if !ok {
		return nil, []Issue{{Path: path, Reason: "expected an object"}}
	}
	if items, ok := m["attach"].([]any); ok {
		for _, item := range items {
			if am, ok := asMap(item); ok {
				for _, pair := range attachSynonyms {
					moveKey(am, pair[0], pair[1])
				}
			}
		}
	}
	var set ActionSet
	issues := decodeLenient(m, &set, func() any { return &ActionSet{} }, path)
	for i, a := range set.Attach {
		if a.RelatedID == nil {
			issues = append(issues, Issue{Path: fmt.Sprintf("%s.attach[%d]", path, i), Reason: "related_id is required", Fatal: true})
		}
	}
	if set.Detach != nil && !set.Detach.All && len(set.Detach.IDs) == 0 {
		set.Detach = nil
	}
	return &set, issues
}

func normalizeDetails(single, list any) (*DetailSpec, []DetailSpec) {
	decode := func(v any) (DetailSpec, bool) {
		m, ok := asMap(v)
		if !ok {
			return DetailSpec{}, false
		}
		m = cloneMap(m)
		for _, pair := range detailSynonyms {
			moveKey(m, pair[0], pair[1])
		}
		if lf, ok := m["list_fields"]; ok {
			m["list_fields"] = stringsToAny(asStringList(lf))
		}
		var d DetailSpec
		if !decodeVia(m, &d) || d.Model == "" {
			return DetailSpec{}, false
		}
		return d, true
	}

	var detail *DetailSpec
	if d, ok := decode(single); ok {
		detail = &d
	}
	var details []DetailSpec
	if items, ok := list.([]any); ok {
		for _, item := range items {
			if d, ok := decode(item); ok {
				details = append(details, d)
			}
		}
	}
	if details == nil && detail != nil {
		details = []DetailSpec{*detail}
	}
	return detail, details
}

func normalizeActions(v any) []ActionSpec {
	items, _ := v.([]any)
	var out []ActionSpec
	for _, item := range items {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		var a ActionSpec
		if !decodeVia(m, &a) || a.Key == "" {
			continue
		}
		if a.Type == "" {
			a.Type = ActionFieldUpdate
		}
		out = append(out, a)
	}
	return out
}

// decodeVia maps a generic value onto a typed struct through its JSON tags.
func decodeVia(v any, out any) bool {
	return decodeInto(v, out) == nil
}

func decodeInto(v any, out any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// decodeLenient decodes m into out one key at a time. A key whose value does
// not fit its typed field is dropped and reported; the rest still decode.
func decodeLenient(m map[string]any, out any, fresh func() any, path string) []Issue {
	var issues []Issue
	kept := make(map[string]any, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if err := decodeInto(map[string]any{k: m[k]}, fresh()); err != nil {
			issues = append(issues, Issue{Path: path + "." + k, Reason: err.Error()})
			continue
		}
		kept[k] = m[k]
	}
	if err := decodeInto(kept, out); err != nil {
		issues = append(issues, Issue{Path: path, Reason: err.Error()})
	}
	return issues
}
