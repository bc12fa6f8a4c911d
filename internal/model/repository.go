package model

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"crud6-backend/internal/store"
)

// Filter operators accepted by Query.
const (
	OpEq      = "eq"
	OpNeq     = "neq"
	OpGt      = "gt"
	OpGte     = "gte"
	OpLt      = "lt"
	OpLte     = "lte"
	OpIn      = "in"
	OpNotIn   = "not_in"
	OpLike    = "like"
	OpNull    = "null"
	OpNotNull = "notnull"
)

// ValidOp reports whether op is a supported filter operator.
func ValidOp(op string) bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpLike, OpNull, OpNotNull:
		return true
	}
	return false
}

type Filter struct {
	Field string
	Op    string
	Value any
}

type Sort struct {
	Field string
	Desc  bool
}

// Query selects rows of one table. A zero Limit means no limit.
type Query struct {
	Filters      []Filter
	Search       string
	SearchFields []string
	Sorts        []Sort
	Limit        int
	Offset       int
}

// Statement is a SQL string with its bound parameters.
type Statement struct {
	SQL    string
	Params []any
}

// Repository runs queries against the table a TableConfig describes.
type Repository struct {
	cfg     *TableConfig
	dialect store.Dialect
}

func NewRepository(cfg *TableConfig, dialect store.Dialect) *Repository {
	return &Repository{cfg: cfg, dialect: dialect}
}

func (r *Repository) Config() *TableConfig { return r.cfg }

// BuildSelect builds a parameterized SELECT for q.
func (r *Repository) BuildSelect(q Query) Statement {
	pb := r.dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(r.cfg.SelectColumns(), ", "), r.cfg.Table)
	sql += r.where(q, pb)

	if len(q.Sorts) > 0 {
		parts := make([]string, len(q.Sorts))
		for i, s := range q.Sorts {
			dir := "ASC"
			if s.Desc {
				dir = "DESC"
			}
			parts[i] = s.Field + " " + dir
		}
		sql += " ORDER BY " + strings.Join(parts, ", ")
	}

	if q.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %s OFFSET %s", pb.Add(q.Limit), pb.Add(q.Offset))
	}
	return Statement{SQL: sql, Params: pb.Params()}
}

// BuildCount builds a COUNT query with the same filters as BuildSelect.
func (r *Repository) BuildCount(q Query) Statement {
	pb := r.dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT COUNT(*) AS total FROM %s", r.cfg.Table) + r.where(q, pb)
	return Statement{SQL: sql, Params: pb.Params()}
}

func (r *Repository) where(q Query, pb store.ParamBuilder) string {
	var clauses []string
	if scope := r.cfg.SoftDeleteScope(""); scope != "" {
		clauses = append(clauses, scope)
	}
	for _, f := range q.Filters {
		clauses = append(clauses, r.filterClause(f, pb))
	}
	if q.Search != "" && len(q.SearchFields) > 0 {
		pattern := "%" + q.Search + "%"
		ors := make([]string, len(q.SearchFields))
		for i, field := range q.SearchFields {
			ors[i] = fmt.Sprintf("%s %s %s", field, r.dialect.LikeOp(), pb.Add(pattern))
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func (r *Repository) filterClause(f Filter, pb store.ParamBuilder) string {
	switch f.Op {
	case OpNeq:
		return fmt.Sprintf("%s != %s", f.Field, pb.Add(f.Value))
	case OpGt:
		return fmt.Sprintf("%s > %s", f.Field, pb.Add(f.Value))
	case OpGte:
		return fmt.Sprintf("%s >= %s", f.Field, pb.Add(f.Value))
	case OpLt:
		return fmt.Sprintf("%s < %s", f.Field, pb.Add(f.Value))
	case OpLte:
		return fmt.Sprintf("%s <= %s", f.Field, pb.Add(f.Value))
	case OpIn:
		return r.dialect.InExpr(f.Field, pb, asSlice(f.Value))
	case OpNotIn:
		return r.dialect.NotInExpr(f.Field, pb, asSlice(f.Value))
	case OpLike:
		return fmt.Sprintf("%s %s %s", f.Field, r.dialect.LikeOp(), pb.Add(f.Value))
	case OpNull:
		return f.Field + " IS NULL"
	case OpNotNull:
		return f.Field + " IS NOT NULL"
	default:
		return fmt.Sprintf("%s = %s", f.Field, pb.Add(f.Value))
	}
}

// List runs q and returns cast rows.
func (r *Repository) List(ctx context.Context, db store.Querier, q Query) ([]map[string]any, error) {
	stmt := r.BuildSelect(q)
	rows, err := store.QueryRows(ctx, db, stmt.SQL, stmt.Params...)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", r.cfg.Table)
	}
	return r.Decode(rows), nil
}

// Count returns the number of rows matching q's filters.
func (r *Repository) Count(ctx context.Context, db store.Querier, q Query) (int64, error) {
	stmt := r.BuildCount(q)
	row, err := store.QueryRow(ctx, db, stmt.SQL, stmt.Params...)
	if err != nil {
		return 0, errors.Wrapf(err, "count %s", r.cfg.Table)
	}
	switch n := row["total"].(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	}
	return 0, errors.Newf("count %s: unexpected %T", r.cfg.Table, row["total"])
}

// Find returns one row by primary key, or store.ErrNotFound.
func (r *Repository) Find(ctx context.Context, db store.Querier, id any) (map[string]any, error) {
	rows, err := r.List(ctx, db, Query{Filters: []Filter{{Field: r.cfg.PrimaryKey, Op: OpEq, Value: id}}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

// Insert writes a new row and returns its primary key value.
func (r *Repository) Insert(ctx context.Context, db store.Querier, values map[string]any) (any, error) {
	pb := r.dialect.NewParamBuilder()
	var cols, phs []string
	for _, col := range r.writableColumns(values) {
		cols = append(cols, col)
		phs = append(phs, pb.Add(values[col]))
	}
	if r.cfg.Timestamps {
		for _, col := range []string{"created_at", "updated_at"} {
			if _, set := values[col]; !set {
				cols = append(cols, col)
				phs = append(phs, r.dialect.NowExpr())
			}
		}
	}

	var sql string
	switch {
	case len(cols) > 0:
		sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", r.cfg.Table, strings.Join(cols, ", "), strings.Join(phs, ", "))
	case r.dialect.Name() == "mysql":
		sql = fmt.Sprintf("INSERT INTO %s () VALUES ()", r.cfg.Table)
	default:
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", r.cfg.Table)
	}

	if r.dialect.SupportsReturning() {
		row, err := store.QueryRow(ctx, db, sql+" RETURNING "+r.cfg.PrimaryKey, pb.Params()...)
		if err != nil {
			return nil, store.MapError(r.dialect, errors.Wrapf(err, "insert %s", r.cfg.Table))
		}
		return row[r.cfg.PrimaryKey], nil
	}

	id, err := store.ExecInsert(ctx, db, sql, pb.Params()...)
	if err != nil {
		return nil, store.MapError(r.dialect, errors.Wrapf(err, "insert %s", r.cfg.Table))
	}
	if v, ok := values[r.cfg.PrimaryKey]; ok && v != nil {
		return v, nil
	}
	return id, nil
}

// Update writes values to the row with the given id. It returns
// store.ErrNotFound when no live row matches.
func (r *Repository) Update(ctx context.Context, db store.Querier, id any, values map[string]any) error {
	pb := r.dialect.NewParamBuilder()
	var sets []string
	for _, col := range r.writableColumns(values) {
		if col == r.cfg.PrimaryKey {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", col, pb.Add(values[col])))
	}
	if r.cfg.Timestamps {
		if _, set := values["updated_at"]; !set {
			sets = append(sets, "updated_at = "+r.dialect.NowExpr())
		}
	}
	if len(sets) == 0 {
		_, err := r.Find(ctx, db, id)
		return err
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s", r.cfg.Table, strings.Join(sets, ", "), r.pkScope(pb, id))
	n, err := store.Exec(ctx, db, sql, pb.Params()...)
	if err != nil {
		return store.MapError(r.dialect, errors.Wrapf(err, "update %s", r.cfg.Table))
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Delete removes the row, or marks it deleted when soft delete is on.
func (r *Repository) Delete(ctx context.Context, db store.Querier, id any) error {
	pb := r.dialect.NewParamBuilder()
	var sql string
	if col, ok := r.cfg.SoftDeleteColumn(); ok {
		sql = fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s", r.cfg.Table, col, r.dialect.NowExpr(), r.pkScope(pb, id))
	} else {
		sql = fmt.Sprintf("DELETE FROM %s WHERE %s", r.cfg.Table, r.pkScope(pb, id))
	}
	n, err := store.Exec(ctx, db, sql, pb.Params()...)
	if err != nil {
		return store.MapError(r.dialect, errors.Wrapf(err, "delete %s", r.cfg.Table))
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Exists reports whether a live row other than exceptID has column = value.
func (r *Repository) Exists(ctx context.Context, db store.Querier, column string, value any, exceptID any) (bool, error) {
	q := Query{Filters: []Filter{{Field: column, Op: OpEq, Value: value}}}
	if exceptID != nil {
		q.Filters = append(q.Filters, Filter{Field: r.cfg.PrimaryKey, Op: OpNeq, Value: exceptID})
	}
	n, err := r.Count(ctx, db, q)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repository) pkScope(pb store.ParamBuilder, id any) string {
	clause := fmt.Sprintf("%s = %s", r.cfg.PrimaryKey, pb.Add(id))
	if scope := r.cfg.SoftDeleteScope(""); scope != "" {
		clause += " AND " + scope
	}
	return clause
}

// writableColumns returns the physical columns present in values, in a
// stable order.
func (r *Repository) writableColumns(values map[string]any) []string {
	var cols []string
	for col := range values {
		if r.cfg.HasColumn(col) || (r.cfg.Timestamps && (col == "created_at" || col == "updated_at")) {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	return cols
}

// Decode converts scanned rows with the table's casts.
func (r *Repository) Decode(rows []map[string]any) []map[string]any {
	if r.dialect.NeedsBoolFix() {
		store.NormalizeBooleans(rows, r.cfg.BoolColumns())
	}
	for _, row := range rows {
		r.cfg.CastRow(row)
	}
	return rows
}

func asSlice(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case nil:
		return nil
	}
	return []any{v}
}
