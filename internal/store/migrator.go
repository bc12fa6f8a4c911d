package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// ColumnDef describes one column of a model table.
type ColumnDef struct {
	Name          string
	StorageType   string // integer, bigint, float, decimal, boolean, timestamp, date, json, text, string
	Primary       bool
	AutoIncrement bool
	Required      bool
	Unique        bool
	Default       any
}

// TableDef describes a model table for the migrator.
type TableDef struct {
	Name       string
	Columns    []ColumnDef
	Timestamps bool
	// SoftDeleteColumn is empty when soft delete is off.
	SoftDeleteColumn string
}

func (t *TableDef) column(name string) *ColumnDef {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// PivotDef describes a many-to-many join table.
type PivotDef struct {
	Table       string
	LeftColumn  string
	RightColumn string
	// ExtraColumns are pivot data columns, stored as text.
	ExtraColumns []string
}

type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// Migrate ensures the table matches the definition.
// Creates the table if it doesn't exist, or adds missing columns.
func (m *Migrator) Migrate(ctx context.Context, def *TableDef) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, def.Name)
	if err != nil {
		return errors.Wrap(err, "check table exists")
	}

	if !exists {
		return m.createTable(ctx, def)
	}

	return m.alterTable(ctx, def)
}

// MigratePivot creates a join table if it doesn't exist.
func (m *Migrator) MigratePivot(ctx context.Context, def PivotDef) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, def.Table)
	if err != nil {
		return errors.Wrap(err, "check join table exists")
	}
	if exists {
		return nil
	}

	d := m.store.Dialect
	cols := []string{
		def.LeftColumn + " " + d.ColumnType("integer") + " NOT NULL",
		def.RightColumn + " " + d.ColumnType("integer") + " NOT NULL",
	}
	for _, c := range def.ExtraColumns {
		cols = append(cols, c+" "+d.ColumnType("text"))
	}
	cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s, %s)", def.LeftColumn, def.RightColumn))

	ddl := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", def.Table, strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, ddl); err != nil {
		return errors.Wrapf(err, "create join table %s", def.Table)
	}
	return nil
}

func (m *Migrator) createTable(ctx context.Context, def *TableDef) error {
	var cols []string
	for i := range def.Columns {
		cols = append(cols, m.buildColumnDef(&def.Columns[i]))
	}
	for _, extra := range m.implicitColumns(def) {
		cols = append(cols, extra.Name+" "+m.store.Dialect.ColumnType(extra.StorageType))
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", def.Name, strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, ddl); err != nil {
		return errors.Wrapf(err, "create table %s", def.Name)
	}

	if err := m.createIndexes(ctx, def); err != nil {
		return errors.Wrapf(err, "create indexes for %s", def.Name)
	}
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, def *TableDef) error {
	existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, def.Name)
	if err != nil {
		return errors.Wrapf(err, "get columns for %s", def.Name)
	}

	missing := append([]ColumnDef{}, def.Columns...)
	missing = append(missing, m.implicitColumns(def)...)
	for _, c := range missing {
		if _, ok := existing[c.Name]; ok {
			continue
		}
		col := c.Name + " " + m.store.Dialect.ColumnType(c.StorageType)
		// existing rows need a default before NOT NULL can hold
		if c.Required && c.Default != nil {
			col += " NOT NULL DEFAULT " + defaultLiteral(c.Default)
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", def.Name, col)
		if _, err := m.store.DB.ExecContext(ctx, ddl); err != nil {
			return errors.Wrapf(err, "add column %s.%s", def.Name, c.Name)
		}
	}

	if err := m.createIndexes(ctx, def); err != nil {
		return errors.Wrapf(err, "create indexes for %s", def.Name)
	}
	return nil
}

// implicitColumns are the timestamp and soft delete columns not declared as fields.
func (m *Migrator) implicitColumns(def *TableDef) []ColumnDef {
	var out []ColumnDef
	if def.Timestamps {
		for _, name := range []string{"created_at", "updated_at"} {
			if def.column(name) == nil {
				out = append(out, ColumnDef{Name: name, StorageType: "timestamp"})
			}
		}
	}
	if def.SoftDeleteColumn != "" && def.column(def.SoftDeleteColumn) == nil {
		out = append(out, ColumnDef{Name: def.SoftDeleteColumn, StorageType: "timestamp"})
	}
	return out
}

func (m *Migrator) buildColumnDef(c *ColumnDef) string {
	if c.Primary && c.AutoIncrement {
		return c.Name + " " + m.store.Dialect.AutoIncrementColumn()
	}

	col := c.Name + " " + m.store.Dialect.ColumnType(c.StorageType)
	if c.Primary {
		return col + " PRIMARY KEY"
	}
	if c.Required {
		col += " NOT NULL"
	}
	if c.Unique {
		col += " UNIQUE"
	}
	if c.Default != nil {
		col += " DEFAULT " + defaultLiteral(c.Default)
	}
	return col
}

func (m *Migrator) createIndexes(ctx context.Context, def *TableDef) error {
	if def.SoftDeleteColumn == "" {
		return nil
	}
	ddl := m.store.Dialect.SoftDeleteIndexSQL(def.Name, def.SoftDeleteColumn)
	if ddl == "" {
		return nil
	}
	if _, err := m.store.DB.ExecContext(ctx, ddl); err != nil {
		return errors.Wrapf(err, "create soft delete index on %s", def.Name)
	}
	return nil
}

func defaultLiteral(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case float64, float32, int, int64, int32:
		return fmt.Sprintf("%v", val)
	default:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", val), "'", "''") + "'"
	}
}
