package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldNames(t *testing.T, p any) []string {
	t.Helper()
	payload, ok := p.(Payload)
	require.True(t, ok, "expected Payload, got %T", p)
	fields, ok := payload["fields"].(OrderedFields)
	require.True(t, ok, "expected OrderedFields, got %T", payload["fields"])
	return fields.Names()
}

func TestFilter_ProjectionCoverage(t *testing.T) {
	for name, doc := range idempotenceFixtures {
		s := mustNormalize(t, doc)
		for _, ctx := range []string{ContextList, ContextCreate, ContextEdit} {
			names := fieldNames(t, Filter(s, ctx))
			for _, f := range s.Fields {
				assert.Equal(t, f.VisibleIn(ctx), contains(names, f.Name), "%s: %s in %s", name, f.Name, ctx)
			}
		}
		assert.Equal(t, s.Fields.Names(), fieldNames(t, Filter(s, ContextDetail)), name)
	}
}

func TestFilter_FormIsUnionOfCreateAndEdit(t *testing.T) {
	s := mustNormalize(t, `{"model":"m","table":"m","fields":{
		"a":{"show_in":["create"]},
		"b":{"show_in":["list"]},
		"c":{"show_in":["edit"]},
		"d":{"show_in":["create","edit"]}}}`)
	create := fieldNames(t, Filter(s, ContextCreate))
	edit := fieldNames(t, Filter(s, ContextEdit))
	form := fieldNames(t, Filter(s, ContextForm))

	var union []string
	for _, f := range s.Fields {
		if contains(create, f.Name) || contains(edit, f.Name) {
			union = append(union, f.Name)
		}
	}
	assert.Equal(t, union, form)
	assert.Equal(t, []string{"a", "c", "d"}, form)
}

func TestFilter_MultiContextMatchesSingle(t *testing.T) {
	s := mustNormalize(t, idempotenceFixtures["users"])
	combined, ok := Filter(s, "list, form").(Payload)
	require.True(t, ok)
	contexts, ok := combined["contexts"].(map[string]any)
	require.True(t, ok)
	require.Len(t, contexts, 2)

	for _, ctx := range []string{ContextList, ContextForm} {
		single := Filter(s, ctx).(Payload)
		for k := range BaseMetadata(s) {
			delete(single, k)
		}
		a, err := json.Marshal(single)
		require.NoError(t, err)
		b, err := json.Marshal(contexts[ctx])
		require.NoError(t, err)
		assert.JSONEq(t, string(a), string(b), ctx)
	}
	assert.Equal(t, "users", combined["model"])
	assert.NotContains(t, combined, "fields")
}

func TestFilter_FullAndUnknownFailOpen(t *testing.T) {
	s := mustNormalize(t, idempotenceFixtures["products"])
	assert.Same(t, s, Filter(s, ""))
	assert.Same(t, s, Filter(s, "full"))
	assert.Same(t, s, Filter(s, "nonsense"))
	assert.Same(t, s, Filter(s, "list,full"))

	p := Filter(s, "list,nonsense").(Payload)
	contexts := p["contexts"].(map[string]any)
	assert.Equal(t, []string{"id", "name", "category_id"}, contexts[ContextList].(Payload)["fields"].(OrderedFields).Names())
}

func TestFilter_ListInputKeepsCombinedShape(t *testing.T) {
	s := mustNormalize(t, idempotenceFixtures["products"])
	tests := []struct {
		context  string
		combined bool
		names    []string
	}{
		{context: "list", combined: false, names: []string{ContextList}},
		{context: " LIST ", combined: false, names: []string{ContextList}},
		{context: "list,list", combined: true, names: []string{ContextList}},
		{context: "list,bogus", combined: true, names: []string{ContextList}},
		{context: "list, ", combined: true, names: []string{ContextList}},
		{context: "form,list,form", combined: true, names: []string{ContextForm, ContextList}},
	}
	for _, tt := range tests {
		t.Run(tt.context, func(t *testing.T) {
			p, ok := Filter(s, tt.context).(Payload)
			require.True(t, ok)
			contexts, hasContexts := p["contexts"].(map[string]any)
			assert.Equal(t, tt.combined, hasContexts)
			if !tt.combined {
				assert.Contains(t, p, "fields")
				return
			}
			assert.NotContains(t, p, "fields")
			assert.Len(t, contexts, len(tt.names))
			for _, c := range tt.names {
				assert.Equal(t, Project(s, c), contexts[c])
			}
		})
	}
}

func TestFilter_MetaHasNoFields(t *testing.T) {
	s := mustNormalize(t, idempotenceFixtures["products"])
	p := Filter(s, ContextMeta).(Payload)
	assert.NotContains(t, p, "fields")
	assert.Equal(t, "products", p["model"])
	assert.Equal(t, "id", p["primary_key"])
	assert.Contains(t, p, "permissions")
}

func TestFilter_FormScenario(t *testing.T) {
	s := mustNormalize(t, idempotenceFixtures["products"])
	p := Filter(s, ContextForm).(Payload)
	fields := p["fields"].(OrderedFields)
	assert.Equal(t, []string{"name", "category_id"}, fields.Names())

	cat, ok := fields.Get("category_id")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"model": "categories", "id": "id", "desc": "name"}, cat["lookup"])
	assert.NotContains(t, cat, "sortable")
}

func TestFilter_DetailCarriesSchemaKeys(t *testing.T) {
	s := mustNormalize(t, idempotenceFixtures["users"])
	p := Filter(s, ContextDetail).(Payload)
	assert.Contains(t, p, "details")
	assert.Contains(t, p, "relationships")
	assert.Contains(t, p, "actions")
	assert.NotContains(t, p, "render_mode")
}

func TestFilter_ListKeepsDefaultSortAndOrder(t *testing.T) {
	s := mustNormalize(t, `{"model":"m","table":"m","default_sort":{"name":"asc"},"fields":{
		"z":{"sortable":true},"a":{"filterable":true,"filter_type":"equals"}}}`)
	p := Filter(s, ContextList).(Payload)
	assert.Equal(t, map[string]any{"name": "asc"}, p["default_sort"])

	encoded, err := json.Marshal(p)
	require.NoError(t, err)
	raw, err := ParseRaw(encoded)
	require.NoError(t, err)
	require.Len(t, raw.Fields, 2)
	assert.Equal(t, "z", raw.Fields[0].Name)
	assert.Equal(t, "equals", raw.Fields[1].Attrs["filter_type"])
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
