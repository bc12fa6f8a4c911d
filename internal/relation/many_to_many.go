package relation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"crud6-backend/internal/model"
	"crud6-backend/internal/store"
)

type manyToMany struct {
	relationshipBase
	decl ManyToMany
}

func (r *manyToMany) Select(parentID any, opts Options) model.Statement {
	pb := r.dialect.NewParamBuilder()
	where := []string{fmt.Sprintf("p.%s = %s", r.decl.ForeignKey, pb.Add(parentID))}
	if scope := r.related.SoftDeleteScope("r"); scope != "" {
		where = append(where, scope)
	}
	sql := fmt.Sprintf("SELECT %s FROM %s r JOIN %s p ON p.%s = r.%s WHERE %s ORDER BY r.%s ASC",
		strings.Join(r.qualifiedColumns("r", r.related.SelectColumns()), ", "),
		r.related.Table, r.decl.PivotTable, r.decl.RelatedKey, r.related.PrimaryKey,
		strings.Join(where, " AND "), r.related.PrimaryKey)
	if opts.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %s OFFSET %s", pb.Add(opts.Limit), pb.Add(opts.Offset))
	}
	return model.Statement{SQL: sql, Params: pb.Params()}
}

func (r *manyToMany) Fetch(ctx context.Context, q store.Querier, parentID any, opts Options) ([]map[string]any, error) {
	return r.fetch(ctx, q, r.Select(parentID, opts))
}

func (r *manyToMany) linked(ctx context.Context, q store.Querier, parentID any) ([]any, error) {
	pb := r.dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT %s AS related_id FROM %s WHERE %s = %s",
		r.decl.RelatedKey, r.decl.PivotTable, r.decl.ForeignKey, pb.Add(parentID))
	rows, err := store.QueryRows(ctx, q, sql, pb.Params()...)
	if err != nil {
		return nil, errors.Wrapf(err, "read pivot %s", r.decl.PivotTable)
	}
	ids := make([]any, len(rows))
	for i, row := range rows {
		ids[i] = row["related_id"]
	}
	return ids, nil
}

func (r *manyToMany) Attach(ctx context.Context, q store.Querier, parentID, relatedID any, pivot map[string]any) error {
	linked, err := r.linked(ctx, q, parentID)
	if err != nil {
		return err
	}
	if containsID(linked, relatedID) {
		return nil
	}

	pb := r.dialect.NewParamBuilder()
	cols := []string{r.decl.ForeignKey, r.decl.RelatedKey}
	phs := []string{pb.Add(parentID), pb.Add(relatedID)}
	extra := make([]string, 0, len(pivot))
	for col := range pivot {
		extra = append(extra, col)
	}
	sort.Strings(extra)
	for _, col := range extra {
		if !model.ValidIdentifier(col) || col == r.decl.ForeignKey || col == r.decl.RelatedKey {
			return errors.Wrapf(ErrInvalidConfiguration, "relationship %s: invalid pivot column %q", r.name, col)
		}
		cols = append(cols, col)
		phs = append(phs, pb.Add(pivot[col]))
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", r.decl.PivotTable, strings.Join(cols, ", "), strings.Join(phs, ", "))
	if _, err := store.Exec(ctx, q, sql, pb.Params()...); err != nil {
		return store.MapError(r.dialect, errors.Wrapf(err, "attach %s", r.name))
	}
	return nil
}

func (r *manyToMany) Detach(ctx context.Context, q store.Querier, parentID any, ids []any) error {
	pb := r.dialect.NewParamBuilder()
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", r.decl.PivotTable, r.decl.ForeignKey, pb.Add(parentID))
	if ids != nil {
		if len(ids) == 0 {
			return nil
		}
		sql += " AND " + r.dialect.InExpr(r.decl.RelatedKey, pb, ids)
	}
	if _, err := store.Exec(ctx, q, sql, pb.Params()...); err != nil {
		return errors.Wrapf(err, "detach %s", r.name)
	}
	return nil
}

func (r *manyToMany) Sync(ctx context.Context, q store.Querier, parentID any, ids []any) error {
	linked, err := r.linked(ctx, q, parentID)
	if err != nil {
		return err
	}
	var stale []any
	for _, id := range linked {
		if !containsID(ids, id) {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := r.Detach(ctx, q, parentID, stale); err != nil {
			return err
		}
	}
	for _, id := range ids {
		if containsID(linked, id) {
			continue
		}
		if err := r.Attach(ctx, q, parentID, id, nil); err != nil {
			return err
		}
	}
	return nil
}

// containsID compares ids by their printed form so 2, int64(2) and "2"
// match.
func containsID(ids []any, id any) bool {
	want := fmt.Sprint(id)
	for _, candidate := range ids {
		if fmt.Sprint(candidate) == want {
			return true
		}
	}
	return false
}
