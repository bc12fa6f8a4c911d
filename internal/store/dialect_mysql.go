package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/go-sql-driver/mysql"
)

// MySQLDialect implements Dialect for MySQL via go-sql-driver/mysql.
type MySQLDialect struct{}

func (d *MySQLDialect) Name() string       { return "mysql" }
func (d *MySQLDialect) DriverName() string { return "mysql" }

func (d *MySQLDialect) Placeholder(int) string { return "?" }

func (d *MySQLDialect) NewParamBuilder() ParamBuilder {
	return &paramBuilder{}
}

func (d *MySQLDialect) NowExpr() string             { return "NOW()" }
func (d *MySQLDialect) NeedsBoolFix() bool          { return true }
func (d *MySQLDialect) LikeOp() string              { return "LIKE" }
func (d *MySQLDialect) SupportsReturning() bool     { return false }
func (d *MySQLDialect) AutoIncrementColumn() string { return "INT AUTO_INCREMENT PRIMARY KEY" }

func (d *MySQLDialect) ColumnType(storageType string) string {
	switch storageType {
	case "integer":
		return "INT"
	case "bigint":
		return "BIGINT"
	case "float":
		return "DOUBLE"
	case "decimal":
		return "DECIMAL(18,4)"
	case "boolean":
		return "TINYINT(1)"
	case "timestamp":
		return "DATETIME"
	case "date":
		return "DATE"
	case "json":
		return "JSON"
	case "text":
		return "TEXT"
	default:
		return "VARCHAR(255)"
	}
}

func (d *MySQLDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`,
		tableName,
	).Scan(&n)
	return n > 0, err
}

func (d *MySQLDialect) GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ?`,
		tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, err
		}
		cols[name] = dataType
	}
	return cols, rows.Err()
}

// MySQL has neither partial indexes nor CREATE INDEX IF NOT EXISTS.
func (d *MySQLDialect) SoftDeleteIndexSQL(string, string) string { return "" }

func (d *MySQLDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	return expandIn(field, "IN", pb, values, "1=0")
}

func (d *MySQLDialect) NotInExpr(field string, pb ParamBuilder, values []any) string {
	return expandIn(field, "NOT IN", pb, values, "1=1")
}

func (d *MySQLDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 { // ER_DUP_ENTRY
		return errors.Mark(err, ErrUniqueViolation)
	}
	return err
}

// Ensure the DSN carries parseTime so DATETIME scans into time.Time.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "parse mysql dsn")
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}
