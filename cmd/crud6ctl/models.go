package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"crud6-backend/internal/relation"
	"crud6-backend/internal/schema"
	"crud6-backend/internal/store"
)

// modelNames lists the models with a schema file directly under the
// namespace directory, or under its connection subdirectory when connection
// is set.
func modelNames(root, namespace, connection string) ([]string, error) {
	dir := filepath.Join(root, namespace)
	if connection != "" && connection != schema.DefaultConnection {
		dir = filepath.Join(dir, connection)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read schema directory %s", dir)
	}
	var names []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if e.IsDir() || !ok || !schema.ValidName(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// pivotDefs returns the join tables a schema's relationships need. Pivot
// data columns are taken from the attach actions of every event.
func pivotDefs(s *schema.Schema) []store.PivotDef {
	var out []store.PivotDef
	for _, d := range relation.Declarations(s) {
		switch decl := d.(type) {
		case relation.ManyToMany:
			out = append(out, store.PivotDef{
				Table:        decl.PivotTable,
				LeftColumn:   decl.ForeignKey,
				RightColumn:  decl.RelatedKey,
				ExtraColumns: pivotColumns(decl.Actions),
			})
		case relation.ManyToManyThrough:
			out = append(out,
				store.PivotDef{Table: decl.FirstPivotTable, LeftColumn: decl.FirstForeignKey, RightColumn: decl.FirstRelatedKey},
				store.PivotDef{Table: decl.SecondPivotTable, LeftColumn: decl.SecondForeignKey, RightColumn: decl.SecondRelatedKey},
			)
		}
	}
	return out
}

func pivotColumns(actions *schema.RelationshipActions) []string {
	if actions == nil {
		return nil
	}
	seen := map[string]bool{}
	var cols []string
	for _, set := range []*schema.ActionSet{actions.OnCreate, actions.OnUpdate, actions.OnDelete} {
		if set == nil {
			continue
		}
		for _, a := range set.Attach {
			for col := range a.PivotData {
				if !seen[col] {
					seen[col] = true
					cols = append(cols, col)
				}
			}
		}
	}
	sort.Strings(cols)
	return cols
}
