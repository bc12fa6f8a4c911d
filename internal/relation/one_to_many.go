package relation

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"crud6-backend/internal/model"
	"crud6-backend/internal/store"
)

type oneToMany struct {
	relationshipBase
	decl OneToMany
}

// columns projects list_fields, always keeping the related primary key.
func (r *oneToMany) columns() []string {
	if len(r.decl.ListFields) == 0 {
		return r.related.SelectColumns()
	}
	available := r.related.SelectColumns()
	cols := []string{r.related.PrimaryKey}
	for _, f := range r.decl.ListFields {
		if f != r.related.PrimaryKey && containsString(available, f) {
			cols = append(cols, f)
		}
	}
	return cols
}

func (r *oneToMany) Select(parentID any, opts Options) model.Statement {
	pb := r.dialect.NewParamBuilder()
	where := []string{fmt.Sprintf("%s = %s", r.decl.ForeignKey, pb.Add(parentID))}
	if scope := r.related.SoftDeleteScope(""); scope != "" {
		where = append(where, scope)
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s ASC",
		strings.Join(r.columns(), ", "), r.related.Table, strings.Join(where, " AND "), r.related.PrimaryKey)
	if opts.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %s OFFSET %s", pb.Add(opts.Limit), pb.Add(opts.Offset))
	}
	return model.Statement{SQL: sql, Params: pb.Params()}
}

func (r *oneToMany) Fetch(ctx context.Context, q store.Querier, parentID any, opts Options) ([]map[string]any, error) {
	return r.fetch(ctx, q, r.Select(parentID, opts))
}

func (r *oneToMany) Attach(context.Context, store.Querier, any, any, map[string]any) error {
	return errors.Wrapf(ErrUnsupported, "attach on one-to-many %s", r.name)
}

func (r *oneToMany) Detach(context.Context, store.Querier, any, []any) error {
	return errors.Wrapf(ErrUnsupported, "detach on one-to-many %s", r.name)
}

func (r *oneToMany) Sync(context.Context, store.Querier, any, []any) error {
	return errors.Wrapf(ErrUnsupported, "sync on one-to-many %s", r.name)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
