package store

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError_PG_UniqueViolation(t *testing.T) {
	dialect := &PostgresDialect{}
	pgErr := &pgconn.PgError{
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint \"products_sku_key\"",
		ConstraintName: "products_sku_key",
	}
	mapped := MapError(dialect, fmt.Errorf("exec: %w", pgErr))

	assert.True(t, errors.Is(mapped, ErrUniqueViolation))

	var extracted *pgconn.PgError
	require.True(t, errors.As(mapped, &extracted), "pgconn.PgError should stay extractable")
	assert.Equal(t, "products_sku_key", extracted.ConstraintName)
}

func TestMapError_MySQL_DuplicateEntry(t *testing.T) {
	mapped := MapError(&MySQLDialect{}, &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	assert.True(t, errors.Is(mapped, ErrUniqueViolation))

	other := &mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"}
	assert.Same(t, other, MapError(&MySQLDialect{}, other))
}

func TestMapError_PassThrough(t *testing.T) {
	for _, d := range []Dialect{&PostgresDialect{}, &SQLiteDialect{}, &MySQLDialect{}} {
		err := errors.New("some other error")
		assert.Equal(t, err, MapError(d, err), d.Name())
		assert.NoError(t, MapError(d, nil), d.Name())
	}
}

func TestParamBuilders(t *testing.T) {
	pg := NewDialect("postgres").NewParamBuilder()
	assert.Equal(t, "$1", pg.Add(1))
	assert.Equal(t, "$2", pg.Add("a"))

	lite := NewDialect("sqlite").NewParamBuilder()
	assert.Equal(t, "?1", lite.Add(1))

	my := NewDialect("mysql").NewParamBuilder()
	assert.Equal(t, "?", my.Add(1))
	assert.Equal(t, "?", my.Add(2))
	assert.Equal(t, []any{1, 2}, my.Params())
	assert.Equal(t, 2, my.Count())
}

func TestInExpr(t *testing.T) {
	pb := (&SQLiteDialect{}).NewParamBuilder()
	assert.Equal(t, "id IN (?1, ?2)", (&SQLiteDialect{}).InExpr("id", pb, []any{1, 2}))
	assert.Equal(t, "1=0", (&SQLiteDialect{}).InExpr("id", pb, nil))
	assert.Equal(t, "1=1", (&MySQLDialect{}).NotInExpr("id", pb, nil))

	pgpb := (&PostgresDialect{}).NewParamBuilder()
	assert.Equal(t, "id = ANY($1)", (&PostgresDialect{}).InExpr("id", pgpb, []any{1, 2}))
	assert.Equal(t, []any{[]any{1, 2}}, pgpb.Params())
}

func TestMySQLDSN_ForcesParseTime(t *testing.T) {
	dsn, err := mysqlDSN("u:p@tcp(localhost:3306)/app")
	require.NoError(t, err)
	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, "app", cfg.DBName)
}
