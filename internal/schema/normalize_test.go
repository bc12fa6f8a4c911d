package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNormalize(t *testing.T, doc string) *Schema {
	t.Helper()
	raw, err := ParseRaw([]byte(doc))
	require.NoError(t, err)
	return Normalize(raw)
}

func renormalize(t *testing.T, s *Schema) *Schema {
	t.Helper()
	encoded, err := json.Marshal(s)
	require.NoError(t, err)
	raw, err := ParseRaw(encoded)
	require.NoError(t, err)
	return Normalize(raw)
}

var idempotenceFixtures = map[string]string{
	"products": `{
		"model": "products", "table": "products",
		"fields": {
			"id": {"type": "integer", "autoIncrement": true},
			"name": {"type": "string", "show_in": ["list", "form"], "required": true, "length": 120},
			"category_id": {"type": "smartlookup", "lookup": {"model": "categories"}}
		}
	}`,
	"users": `{
		"model": "users", "table": "users", "softDelete": true, "primaryKey": "id",
		"fields": {
			"id": {"type": "int", "primaryKey": true},
			"email": {"type": "email", "unique": true, "validate": {"email": true}},
			"password": {"type": "password"},
			"active": {"type": "boolean-tgl"},
			"verified": {"type": "boolean", "ui": {"widget": "switch"}},
			"group_id": {"type": "integer", "ui": {"type": "lookup", "placeholder": "Pick"}, "model": "groups", "desc": "title"},
			"manager_id": {"type": "integer", "references": {"model": "users", "key": "id", "display": "user_name"}},
			"notes": {"type": "textarea-r5c60", "listable": false, "custom": {"a": [1, 2]}},
			"role_ids": {"type": "multiselect", "computed": true, "nullable": true}
		},
		"relationships": [
			{"name": "roles", "type": "many_to_many", "pivotTable": "role_users", "foreignKey": "user_id", "relatedKey": "role_id",
			 "actions": {"on_create": {"attach": [{"related_id": 1, "pivot_data": {"created_at": "now"}}]}, "on_delete": {"detach": "all"}}}
		],
		"details": [{"model": "activities", "foreignKey": "user_id", "listFields": ["occurred_at", "type"]}],
		"actions": [{"key": "disable", "type": "toggle", "field": "active"}],
		"x_custom": {"nested": true}
	}`,
	"garbage": `{
		"model": 5, "timestamps": "maybe",
		"fields": {"a": 7, "b": {"type": null, "show_in": "list,detail,bogus"}, "c": {"required": "yes"}},
		"relationships": "nope", "details": [1, {"title": "no model"}], "permissions": {"read": 3}
	}`,
}

func TestNormalize_Idempotent(t *testing.T) {
	for name, doc := range idempotenceFixtures {
		t.Run(name, func(t *testing.T) {
			once := mustNormalize(t, doc)
			twice := renormalize(t, once)
			assert.Equal(t, once, twice)

			first, err := json.Marshal(once)
			require.NoError(t, err)
			second, err := json.Marshal(twice)
			require.NoError(t, err)
			assert.JSONEq(t, string(first), string(second))
		})
	}
}

func TestNormalize_LookupSynonymsAgree(t *testing.T) {
	flat := mustNormalize(t, `{"model":"orders","table":"orders","fields":{
		"customer_id":{"type":"smartlookup","lookup_model":"customers","lookup_id":"id","lookup_desc":"name"}}}`)
	nested := mustNormalize(t, `{"model":"orders","table":"orders","fields":{
		"customer_id":{"type":"smartlookup","lookup":{"model":"customers","id":"id","desc":"name"}}}}`)
	shorthand := mustNormalize(t, `{"model":"orders","table":"orders","fields":{
		"customer_id":{"type":"smartlookup","model":"customers"}}}`)

	want := &Lookup{Model: "customers", ID: "id", Desc: "name"}
	for _, s := range []*Schema{flat, nested, shorthand} {
		f := s.Field("customer_id")
		require.NotNil(t, f)
		assert.Equal(t, want, f.Lookup)
		assert.NotContains(t, f.Extra, "model")
	}
	assert.Equal(t, flat.Fields, nested.Fields)
	assert.Equal(t, flat.Fields, shorthand.Fields)
}

func TestNormalize_FlatLookupKeysWinOverNested(t *testing.T) {
	s := mustNormalize(t, `{"model":"orders","table":"orders","fields":{
		"customer_id":{"type":"smartlookup","lookup_model":"x","lookup":{"model":"y","desc":"label"},"model":"z"}}}`)
	f := s.Field("customer_id")
	assert.Equal(t, "x", f.Lookup.Model)
	assert.Equal(t, "label", f.Lookup.Desc)
	assert.Equal(t, "id", f.Lookup.ID)
}

func TestNormalize_Visibility(t *testing.T) {
	s := mustNormalize(t, idempotenceFixtures["users"])

	id := s.Field("id")
	assert.True(t, id.Readonly)
	assert.Equal(t, []string{"list", "detail"}, id.ShowIn)

	pw := s.Field("password")
	assert.Equal(t, []string{"create", "edit"}, pw.ShowIn)
	assert.False(t, pw.Listable)
	assert.False(t, pw.Viewable)
	assert.True(t, pw.Editable)

	notes := s.Field("notes")
	assert.Equal(t, []string{"create", "edit", "detail"}, notes.ShowIn)

	products := mustNormalize(t, idempotenceFixtures["products"])
	name := products.Field("name")
	assert.Equal(t, []string{"list", "create", "edit"}, name.ShowIn)
	assert.True(t, name.Listable)
	assert.True(t, name.Editable)
	assert.False(t, name.Viewable)
}

func TestNormalize_ShowInDropsUnknownAndDuplicates(t *testing.T) {
	s := mustNormalize(t, `{"model":"m","table":"m","fields":{"a":{"show_in":["detail","form","edit","nope","list"]}}}`)
	assert.Equal(t, []string{"list", "create", "edit", "detail"}, s.Field("a").ShowIn)
}

func TestNormalize_BooleanUI(t *testing.T) {
	s := mustNormalize(t, `{"model":"m","table":"m","fields":{
		"a":{"type":"boolean-tgl"},
		"b":{"type":"boolean-yn"},
		"c":{"type":"boolean"},
		"d":{"type":"boolean-chk","ui":"select"},
		"e":{"type":"boolean","ui":{"widget":"toggle"}}}}`)
	cases := map[string]string{"a": "toggle", "b": "select", "c": "checkbox", "d": "select", "e": "toggle"}
	for name, ui := range cases {
		f := s.Field(name)
		assert.Equal(t, "boolean", f.Type, name)
		assert.Equal(t, ui, f.UI, name)
	}
}

func TestNormalize_SynonymsFolded(t *testing.T) {
	s := mustNormalize(t, idempotenceFixtures["users"])

	email := s.Field("email")
	assert.Equal(t, map[string]any{"unique": true, "email": true}, email.Validation)

	group := s.Field("group_id")
	assert.Equal(t, "smartlookup", group.Type)
	assert.Equal(t, &Lookup{Model: "groups", ID: "id", Desc: "title"}, group.Lookup)
	assert.Equal(t, "Pick", group.Placeholder)

	manager := s.Field("manager_id")
	assert.Equal(t, "smartlookup", manager.Type)
	assert.Equal(t, &Lookup{Model: "users", ID: "id", Desc: "user_name"}, manager.Lookup)

	roles := s.Field("role_ids")
	assert.True(t, roles.Nullable)
	assert.False(t, roles.Required)

	require.Len(t, s.Relationships, 1)
	rel := s.Relationships[0]
	assert.Equal(t, "role_users", rel.PivotTable)
	assert.Equal(t, "user_id", rel.ForeignKey)
	assert.True(t, rel.Actions.OnDelete.Detach.All)

	require.Len(t, s.Details, 1)
	assert.Equal(t, "user_id", s.Details[0].ForeignKey)
	assert.Equal(t, []string{"occurred_at", "type"}, s.Details[0].ListFields)

	assert.True(t, s.SoftDelete)
	assert.Equal(t, map[string]any{"nested": true}, s.Extra["x_custom"])
}

func TestNormalize_ReferencesWithoutDisplayKeepType(t *testing.T) {
	s := mustNormalize(t, `{"model":"m","table":"m","fields":{"owner_id":{"type":"integer","references":{"model":"users","key":"id"}}}}`)
	f := s.Field("owner_id")
	assert.Equal(t, "integer", f.Type)
	assert.Equal(t, "users", f.Lookup.Model)
}

func TestNormalize_Defaults(t *testing.T) {
	s := mustNormalize(t, `{"model":"tags","table":"tags","fields":{"label":{}}}`)
	assert.Equal(t, "id", s.PrimaryKey)
	assert.True(t, s.Timestamps)
	assert.False(t, s.SoftDelete)
	assert.Equal(t, "tags", s.Title)
	assert.Equal(t, map[string]string{
		"read": "read.tags", "create": "create.tags", "update": "update.tags", "delete": "delete.tags",
	}, s.Permissions)
	assert.Equal(t, "string", s.Field("label").Type)
	assert.Equal(t, "Label", s.Field("label").Label)
}

func TestNormalize_LegacyDetailBecomesFirstDetail(t *testing.T) {
	s := mustNormalize(t, `{"model":"users","table":"users","fields":{"id":{}},"detail":{"model":"activities","foreign_key":"user_id"}}`)
	require.NotNil(t, s.Detail)
	require.Len(t, s.Details, 1)
	assert.Equal(t, "activities", s.Details[0].Model)
}

func TestNormalize_PreservesFieldOrder(t *testing.T) {
	s := mustNormalize(t, `{"model":"m","table":"m","fields":{"zeta":{},"alpha":{},"mid":{},"beta":{}}}`)
	assert.Equal(t, []string{"zeta", "alpha", "mid", "beta"}, s.Fields.Names())

	encoded, err := json.Marshal(s)
	require.NoError(t, err)
	raw, err := ParseRaw(encoded)
	require.NoError(t, err)
	names := make([]string, len(raw.Fields))
	for i, f := range raw.Fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid", "beta"}, names)
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	raw, err := ParseRaw([]byte(idempotenceFixtures["users"]))
	require.NoError(t, err)
	before, err := json.Marshal(raw.Fields[0].Attrs)
	require.NoError(t, err)
	Normalize(raw)
	after, err := json.Marshal(raw.Fields[0].Attrs)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestParseRaw_FieldArray(t *testing.T) {
	raw, err := ParseRaw([]byte(`{"model":"m","table":"m","fields":[{"name":"b","type":"integer"},{"name":"a"}]}`))
	require.NoError(t, err)
	require.Len(t, raw.Fields, 2)
	assert.Equal(t, "b", raw.Fields[0].Name)
	assert.Equal(t, "integer", raw.Fields[0].Attrs["type"])
}

func TestNormalize_CamelCaseAttachItems(t *testing.T) {
	s := mustNormalize(t, `{"model":"users","table":"users","fields":{"id":{}},
		"relationships":[{"name":"roles","type":"belongsToMany","pivotTable":"role_users",
			"foreignKey":"user_id","relatedKey":"role_id",
			"actions":{"onCreate":{"attach":[{"relatedId":3,"pivotData":{"assigned_at":"now"}}]},
			           "onDelete":{"detach":"all"}}}]}`)
	require.Empty(t, s.Issues())
	require.Len(t, s.Relationships, 1)
	rel := s.Relationships[0]
	assert.Equal(t, ManyToManyType, rel.Type)
	assert.Equal(t, "role_users", rel.PivotTable)
	require.NotNil(t, rel.Actions.OnCreate)
	require.Len(t, rel.Actions.OnCreate.Attach, 1)
	assert.EqualValues(t, 3, rel.Actions.OnCreate.Attach[0].RelatedID)
	assert.Equal(t, map[string]any{"assigned_at": "now"}, rel.Actions.OnCreate.Attach[0].PivotData)
	assert.True(t, rel.Actions.OnDelete.Detach.All)

	again := renormalize(t, s)
	assert.Equal(t, s.Relationships, again.Relationships)
}

func TestNormalize_MalformedRelationshipAttributeIsDropped(t *testing.T) {
	s := mustNormalize(t, `{"model":"users","table":"users","fields":{"id":{}},
		"relationships":[
			{"name":"roles","type":"many_to_many","pivot_table":7,"foreign_key":"user_id"},
			{"name":"teams","type":"many_to_many","actions":"nope"}]}`)
	require.Len(t, s.Relationships, 2)
	assert.Equal(t, "user_id", s.Relationships[0].ForeignKey)
	assert.Empty(t, s.Relationships[0].PivotTable)
	assert.Nil(t, s.Relationships[1].Actions)

	var paths []string
	for _, issue := range s.Issues() {
		assert.False(t, issue.Fatal)
		paths = append(paths, issue.Path)
	}
	assert.Equal(t, []string{"relationships.roles.pivot_table", "relationships.teams.actions"}, paths)
}
