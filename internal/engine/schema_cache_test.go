package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crud6-backend/internal/schema"
)

func parseSchema(t *testing.T, doc string) *schema.Schema {
	t.Helper()
	st, err := schema.NewStore(schema.FileLocator{Root: t.TempDir()}, "crud6")
	require.NoError(t, err)
	s, err := st.Parse([]byte(doc), "")
	require.NoError(t, err)
	return s
}

func TestFilteredCache_ServesSubsetFromSuperset(t *testing.T) {
	s := parseSchema(t, testSchemas["users"])
	fc := NewFilteredCache()

	combined := fc.Get("users", s, "list,detail,form").(schema.Payload)
	require.Contains(t, combined, "contexts")
	contexts := combined["contexts"].(map[string]any)

	single := fc.Get("users", s, "detail").(schema.Payload)
	assert.NotContains(t, single, "contexts")
	assert.Equal(t, contexts["detail"].(schema.Payload)["fields"], single["fields"])
	assert.Equal(t, "users", single["model"])

	pair := fc.Get("users", s, "form,list").(schema.Payload)
	assert.ElementsMatch(t, []string{"form", "list"}, keys(pair["contexts"].(map[string]any)))

	fc.mu.RLock()
	assert.Len(t, fc.entries["users"], 1)
	fc.mu.RUnlock()
}

func TestFilteredCache_DropsStaleEntries(t *testing.T) {
	fc := NewFilteredCache()
	v1 := parseSchema(t, testSchemas["roles"])
	v2 := parseSchema(t, `{"model":"roles","table":"roles","fields":{
		"id":{"type":"integer","autoIncrement":true},"slug":{"type":"string"},"label":{"type":"string"}}}`)
	require.NotEqual(t, v1.ETag(), v2.ETag())

	first := fc.Get("roles", v1, "list").(schema.Payload)
	second := fc.Get("roles", v2, "list").(schema.Payload)
	assert.NotEqual(t, first["fields"], second["fields"])

	fc.mu.RLock()
	require.Len(t, fc.entries["roles"], 1)
	assert.Equal(t, v2.ETag(), fc.entries["roles"][0].etag)
	fc.mu.RUnlock()
}

func TestFilteredCache_KeepsRequestedShape(t *testing.T) {
	s := parseSchema(t, testSchemas["users"])
	fc := NewFilteredCache()

	single := fc.Get("users", s, "list").(schema.Payload)
	assert.Contains(t, single, "fields")
	assert.NotContains(t, single, "contexts")

	listed := fc.Get("users", s, "list,list").(schema.Payload)
	assert.NotContains(t, listed, "fields")
	require.Contains(t, listed, "contexts")
	assert.Equal(t, []string{"list"}, keys(listed["contexts"].(map[string]any)))

	again := fc.Get("users", s, "list,bogus").(schema.Payload)
	assert.Equal(t, listed, again)
	assert.Equal(t, single, fc.Get("users", s, "list"))
}

func TestFilteredCache_FullAndUnknownBypass(t *testing.T) {
	s := parseSchema(t, testSchemas["roles"])
	fc := NewFilteredCache()

	assert.Same(t, s, fc.Get("roles", s, ""))
	assert.Same(t, s, fc.Get("roles", s, "full"))
	assert.Same(t, s, fc.Get("roles", s, "bogus"))
	assert.Same(t, s, fc.Get("roles", s, "list,full"))

	fc.mu.RLock()
	assert.Empty(t, fc.entries)
	fc.mu.RUnlock()

	fc.Get("roles", s, "list")
	fc.Invalidate("roles")
	fc.mu.RLock()
	assert.Empty(t, fc.entries)
	fc.mu.RUnlock()
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
