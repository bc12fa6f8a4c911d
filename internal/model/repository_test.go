package model

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crud6-backend/internal/config"
	"crud6-backend/internal/store"
)

const plainDoc = `{"model":"notes","table":"notes","timestamps":false,"fields":{
	"id":{"type":"integer","autoIncrement":true},
	"title":{"type":"string","sortable":true,"searchable":true}}}`

func TestSelectWithoutSoftDeleteHasNoDeletedAtReference(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	cfg, err := NewTableConfig(normalized(t, plainDoc))
	require.NoError(t, err)
	repo := NewRepository(cfg, &store.PostgresDialect{})

	mock.ExpectQuery("SELECT id, title FROM notes").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(int64(1), "first"))

	rows, err := repo.List(context.Background(), db, Query{})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"id": int64(1), "title": "first"}}, rows)
	require.NoError(t, mock.ExpectationsWereMet())

	for _, stmt := range []Statement{
		repo.BuildSelect(Query{Filters: []Filter{{Field: "title", Op: OpEq, Value: "x"}}}),
		repo.BuildCount(Query{}),
	} {
		assert.NotContains(t, stmt.SQL, "deleted_at")
		assert.NotContains(t, stmt.SQL, "IS NULL")
	}
}

func TestBuildSelect(t *testing.T) {
	cfg, err := NewTableConfig(normalized(t, `{"model":"users","table":"users","softDelete":true,"timestamps":false,"fields":{
		"id":{"type":"integer","autoIncrement":true},"name":{},"age":{"type":"integer"}}}`))
	require.NoError(t, err)
	repo := NewRepository(cfg, &store.PostgresDialect{})

	stmt := repo.BuildSelect(Query{
		Filters:      []Filter{{Field: "age", Op: OpGte, Value: 18}, {Field: "id", Op: OpIn, Value: []any{1, 2}}, {Field: "name", Op: OpNotNull}},
		Search:       "ann",
		SearchFields: []string{"name"},
		Sorts:        []Sort{{Field: "name", Desc: true}, {Field: "id"}},
		Limit:        25,
		Offset:       50,
	})
	assert.Equal(t, "SELECT id, name, age FROM users WHERE deleted_at IS NULL AND age >= $1 AND id = ANY($2) AND name IS NOT NULL AND (name ILIKE $3) ORDER BY name DESC, id ASC LIMIT $4 OFFSET $5", stmt.SQL)
	assert.Equal(t, []any{18, []any{1, 2}, "%ann%", 25, 50}, stmt.Params)

	count := repo.BuildCount(Query{Filters: []Filter{{Field: "age", Op: OpLt, Value: 3}}})
	assert.Equal(t, "SELECT COUNT(*) AS total FROM users WHERE deleted_at IS NULL AND age < $1", count.SQL)
}

func TestInsertUsesLastInsertIDWithoutReturning(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	cfg, err := NewTableConfig(normalized(t, plainDoc))
	require.NoError(t, err)
	repo := NewRepository(cfg, &store.MySQLDialect{})

	mock.ExpectExec("INSERT INTO notes (title) VALUES (?)").
		WithArgs("hello").
		WillReturnResult(sqlmock.NewResult(42, 1))

	id, err := repo.Insert(context.Background(), db, map[string]any{"title": "hello"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func newSQLite(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(context.Background(), config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestRepository_CRUDOnSQLite(t *testing.T) {
	ctx := context.Background()
	db := newSQLite(t)
	cfg, err := NewTableConfig(normalized(t, usersDoc))
	require.NoError(t, err)
	require.NoError(t, store.NewMigrator(db).Migrate(ctx, cfg.TableDefinition()))
	repo := NewRepository(cfg, db.Dialect)

	values, err := cfg.CastInput(map[string]any{"user_name": "ann", "email": "ann@example.com", "password": "hash", "flag_enabled": true, "settings": map[string]any{"theme": "dark"}})
	require.NoError(t, err)
	id, err := repo.Insert(ctx, db.DB, values)
	require.NoError(t, err)

	row, err := repo.Find(ctx, db.DB, id)
	require.NoError(t, err)
	assert.Equal(t, "ann", row["user_name"])
	assert.Equal(t, true, row["flag_enabled"])
	assert.Equal(t, map[string]any{"theme": "dark"}, row["settings"])
	assert.NotContains(t, row, "password")
	assert.NotNil(t, row["created_at"])

	_, err = repo.Insert(ctx, db.DB, map[string]any{"user_name": "ann"})
	assert.True(t, errors.Is(err, store.ErrUniqueViolation))

	taken, err := repo.Exists(ctx, db.DB, "user_name", "ann", nil)
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = repo.Exists(ctx, db.DB, "user_name", "ann", id)
	require.NoError(t, err)
	assert.False(t, taken)

	require.NoError(t, repo.Update(ctx, db.DB, id, map[string]any{"email": "a@example.com"}))
	row, err = repo.Find(ctx, db.DB, id)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", row["email"])

	n, err := repo.Count(ctx, db.DB, Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, repo.Delete(ctx, db.DB, id))
	_, err = repo.Find(ctx, db.DB, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, db.DB, id), store.ErrNotFound)

	// soft deleted rows stay in the table
	raw, err := store.QueryRow(ctx, db.DB, "SELECT deleted_at FROM users WHERE id = ?1", id)
	require.NoError(t, err)
	assert.NotNil(t, raw["deleted_at"])

	assert.ErrorIs(t, repo.Update(ctx, db.DB, int64(999), map[string]any{"email": "x"}), store.ErrNotFound)
}

func TestRepository_HardDelete(t *testing.T) {
	ctx := context.Background()
	db := newSQLite(t)
	cfg, err := NewTableConfig(normalized(t, plainDoc))
	require.NoError(t, err)
	require.NoError(t, store.NewMigrator(db).Migrate(ctx, cfg.TableDefinition()))
	repo := NewRepository(cfg, db.Dialect)

	for _, title := range []string{"alpha", "beta", "gamma"} {
		_, err := repo.Insert(ctx, db.DB, map[string]any{"title": title})
		require.NoError(t, err)
	}
	rows, err := repo.List(ctx, db.DB, Query{Search: "A", SearchFields: []string{"title"}, Sorts: []Sort{{Field: "title", Desc: true}}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "gamma", rows[0]["title"])

	require.NoError(t, repo.Delete(ctx, db.DB, rows[0]["id"]))
	n, err := store.QueryRow(ctx, db.DB, "SELECT COUNT(*) AS n FROM notes")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n["n"])
	assert.False(t, strings.Contains(repo.BuildSelect(Query{}).SQL, "deleted_at"))
}
