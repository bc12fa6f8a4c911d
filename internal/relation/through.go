package relation

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"crud6-backend/internal/model"
	"crud6-backend/internal/store"
)

type manyToManyThrough struct {
	relationshipBase
	decl    ManyToManyThrough
	through *model.TableConfig
}

// Select joins parent -> p1 -> t -> p2 -> r. Rows reachable through more
// than one intermediate row are returned once.
func (r *manyToManyThrough) Select(parentID any, opts Options) model.Statement {
	pb := r.dialect.NewParamBuilder()
	d := r.decl
	where := []string{fmt.Sprintf("p1.%s = %s", d.FirstForeignKey, pb.Add(parentID))}
	for _, scope := range []string{r.related.SoftDeleteScope("r"), r.through.SoftDeleteScope("t")} {
		if scope != "" {
			where = append(where, scope)
		}
	}
	sql := fmt.Sprintf("SELECT DISTINCT %s FROM %s r"+
		" JOIN %s p2 ON p2.%s = r.%s"+
		" JOIN %s t ON t.%s = p2.%s"+
		" JOIN %s p1 ON p1.%s = t.%s"+
		" WHERE %s ORDER BY r.%s ASC",
		strings.Join(r.qualifiedColumns("r", r.related.SelectColumns()), ", "), r.related.Table,
		d.SecondPivotTable, d.SecondRelatedKey, r.related.PrimaryKey,
		r.through.Table, r.through.PrimaryKey, d.SecondForeignKey,
		d.FirstPivotTable, d.FirstRelatedKey, r.through.PrimaryKey,
		strings.Join(where, " AND "), r.related.PrimaryKey)
	if opts.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %s OFFSET %s", pb.Add(opts.Limit), pb.Add(opts.Offset))
	}
	return model.Statement{SQL: sql, Params: pb.Params()}
}

func (r *manyToManyThrough) Fetch(ctx context.Context, q store.Querier, parentID any, opts Options) ([]map[string]any, error) {
	return r.fetch(ctx, q, r.Select(parentID, opts))
}

// Membership of a through relationship is owned by its two pivots.
func (r *manyToManyThrough) Attach(context.Context, store.Querier, any, any, map[string]any) error {
	return errors.Wrapf(ErrUnsupported, "attach on through relationship %s", r.name)
}

func (r *manyToManyThrough) Detach(context.Context, store.Querier, any, []any) error {
	return errors.Wrapf(ErrUnsupported, "detach on through relationship %s", r.name)
}

func (r *manyToManyThrough) Sync(context.Context, store.Querier, any, []any) error {
	return errors.Wrapf(ErrUnsupported, "sync on through relationship %s", r.name)
}
