package schema

import (
	"encoding/json"
	"fmt"
)

// Presentation contexts a field can be visible in. Emitted in this order.
const (
	ContextList   = "list"
	ContextCreate = "create"
	ContextEdit   = "edit"
	ContextDetail = "detail"
	ContextForm   = "form"
	ContextMeta   = "meta"
	ContextFull   = "full"
)

var visibilityOrder = []string{ContextList, ContextCreate, ContextEdit, ContextDetail}

// Relationship types accepted in the relationships list.
const (
	ManyToManyType        = "many_to_many"
	ManyToManyThroughType = "belongs_to_many_through"
)

// Actions a permission can be declared for.
var permissionActions = []string{"read", "create", "update", "delete"}

// Schema is the canonical, normalized description of one model.
type Schema struct {
	Model          string             `json:"model"`
	Title          string             `json:"title"`
	Description    string             `json:"description,omitempty"`
	Table          string             `json:"table"`
	PrimaryKey     string             `json:"primary_key"`
	Timestamps     bool               `json:"timestamps"`
	SoftDelete     bool               `json:"soft_delete"`
	Connection     string             `json:"connection,omitempty"`
	Fields         Fields             `json:"fields"`
	Relationships  []RelationshipSpec `json:"relationships,omitempty"`
	Details        []DetailSpec       `json:"details,omitempty"`
	Detail         *DetailSpec        `json:"detail,omitempty"`
	Permissions    map[string]string  `json:"permissions"`
	Actions        []ActionSpec       `json:"actions,omitempty"`
	DefaultSort    any                `json:"default_sort,omitempty"`
	TitleField     string             `json:"title_field,omitempty"`
	RenderMode     string             `json:"render_mode,omitempty"`
	DetailEditable any                `json:"detail_editable,omitempty"`

	// Extra holds top-level keys with no typed counterpart.
	Extra map[string]any `json:"-"`

	etag   string
	issues []Issue
}

// ETag returns the content hash of the normalized schema, if known.
func (s *Schema) ETag() string { return s.etag }

// Issues returns the problems found while normalizing the schema.
func (s *Schema) Issues() []Issue { return s.issues }

// Field returns the named field or nil.
func (s *Schema) Field(name string) *FieldSpec { return s.Fields.Get(name) }

// Permission returns the capability required for action on this model.
func (s *Schema) Permission(action string) string {
	if p, ok := s.Permissions[action]; ok && p != "" {
		return p
	}
	return fmt.Sprintf("%s.%s", action, s.Model)
}

// Relationship returns the relationship declared under name.
func (s *Schema) Relationship(name string) (RelationshipSpec, bool) {
	for _, r := range s.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return RelationshipSpec{}, false
}

// DetailFor returns the detail declared for the related model.
func (s *Schema) DetailFor(model string) (DetailSpec, bool) {
	for _, d := range s.Details {
		if d.Model == model {
			return d, true
		}
	}
	return DetailSpec{}, false
}

// Action returns the custom action with the given key.
func (s *Schema) Action(key string) (ActionSpec, bool) {
	for _, a := range s.Actions {
		if a.Key == key {
			return a, true
		}
	}
	return ActionSpec{}, false
}

// MarshalJSON emits the typed keys plus any pass-through top-level keys.
func (s *Schema) MarshalJSON() ([]byte, error) {
	type plain Schema
	b, err := json.Marshal((*plain)(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return b, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		if _, taken := merged[k]; taken {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

// Lookup points a smartlookup field at the model it references.
type Lookup struct {
	Model string `json:"model"`
	ID    string `json:"id"`
	Desc  string `json:"desc"`
}

// FieldSpec is one normalized field.
type FieldSpec struct {
	Name          string
	Type          string
	Label         string
	Description   string
	Placeholder   string
	Required      bool
	Nullable      bool
	Default       any
	AutoIncrement bool
	Primary       bool
	Computed      bool
	Sortable      bool
	Filterable    bool
	Searchable    bool
	FilterType    string
	Readonly      bool
	Editable      bool
	Listable      bool
	Viewable      bool
	ShowIn        []string
	Validation    map[string]any
	Lookup        *Lookup
	UI            string
	Width         any
	FieldTemplate string

	// Extra holds attributes with no typed counterpart, passed through verbatim.
	Extra map[string]any
}

// VisibleIn reports whether the field is shown in the given context.
func (f *FieldSpec) VisibleIn(context string) bool {
	for _, c := range f.ShowIn {
		if c == context {
			return true
		}
	}
	return false
}

// IsBoolean reports whether the field holds a boolean.
func (f *FieldSpec) IsBoolean() bool { return f.Type == "boolean" }

// MarshalJSON emits the canonical attribute map.
func (f *FieldSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(fieldAttrs(f))
}

// Fields is the ordered field list of a schema.
type Fields []*FieldSpec

// Get returns the named field or nil.
func (fs Fields) Get(name string) *FieldSpec {
	for _, f := range fs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Names returns the field names in declaration order.
func (fs Fields) Names() []string {
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.Name
	}
	return names
}

// MarshalJSON emits the fields as a JSON object in declaration order.
func (fs Fields) MarshalJSON() ([]byte, error) {
	entries := make([]NamedAttrs, len(fs))
	for i, f := range fs {
		entries[i] = NamedAttrs{Name: f.Name, Attrs: fieldAttrs(f)}
	}
	return OrderedFields(entries).MarshalJSON()
}

// RelationshipSpec is one entry of the relationships list.
type RelationshipSpec struct {
	Name             string               `json:"name"`
	Type             string               `json:"type"`
	Model            string               `json:"model,omitempty"`
	Title            string               `json:"title,omitempty"`
	PivotTable       string               `json:"pivot_table,omitempty"`
	ForeignKey       string               `json:"foreign_key,omitempty"`
	RelatedKey       string               `json:"related_key,omitempty"`
	Through          string               `json:"through,omitempty"`
	FirstPivotTable  string               `json:"first_pivot_table,omitempty"`
	FirstForeignKey  string               `json:"first_foreign_key,omitempty"`
	FirstRelatedKey  string               `json:"first_related_key,omitempty"`
	SecondPivotTable string               `json:"second_pivot_table,omitempty"`
	SecondForeignKey string               `json:"second_foreign_key,omitempty"`
	SecondRelatedKey string               `json:"second_related_key,omitempty"`
	Actions          *RelationshipActions `json:"actions,omitempty"`
}

// RelatedModel returns the model the relationship points at.
func (r RelationshipSpec) RelatedModel() string {
	if r.Model != "" {
		return r.Model
	}
	return r.Name
}

// RelationshipActions are the pivot actions run on lifecycle events.
type RelationshipActions struct {
	OnCreate *ActionSet `json:"on_create,omitempty"`
	OnUpdate *ActionSet `json:"on_update,omitempty"`
	OnDelete *ActionSet `json:"on_delete,omitempty"`
}

// For returns the action set for the lifecycle event, or nil.
func (a *RelationshipActions) For(event string) *ActionSet {
	if a == nil {
		return nil
	}
	switch event {
	case "create":
		return a.OnCreate
	case "update":
		return a.OnUpdate
	case "delete":
		return a.OnDelete
	}
	return nil
}

// ActionSet is the ordered group attach, sync, detach of one event.
type ActionSet struct {
	Attach []AttachSpec `json:"attach,omitempty"`
	Sync   string       `json:"sync,omitempty"`
	Detach *DetachSpec  `json:"detach,omitempty"`
}

// AttachSpec attaches one related id with optional pivot data.
type AttachSpec struct {
	RelatedID any            `json:"related_id"`
	PivotData map[string]any `json:"pivot_data,omitempty"`
}

// DetachSpec is either "all" or an explicit id list.
type DetachSpec struct {
	All bool
	IDs []any
}

func (d DetachSpec) MarshalJSON() ([]byte, error) {
	if d.All {
		return json.Marshal("all")
	}
	return json.Marshal(d.IDs)
}

func (d *DetachSpec) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		d.All = s == "all"
		return nil
	}
	var ids []any
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	d.IDs = ids
	return nil
}

// DetailSpec is a related model listed alongside a record's detail view.
type DetailSpec struct {
	Model      string   `json:"model"`
	Title      string   `json:"title,omitempty"`
	ListFields []string `json:"list_fields,omitempty"`
	ForeignKey string   `json:"foreign_key,omitempty"`
}

// Action types supported by custom actions.
const (
	ActionFieldUpdate = "field_update"
	ActionToggle      = "toggle"
)

// ActionSpec is a schema-declared custom action on a record.
type ActionSpec struct {
	Key        string `json:"key"`
	Label      string `json:"label,omitempty"`
	Type       string `json:"type"`
	Field      string `json:"field,omitempty"`
	Value      any    `json:"value,omitempty"`
	Condition  string `json:"condition,omitempty"`
	Permission string `json:"permission,omitempty"`
	Confirm    string `json:"confirm,omitempty"`
}
