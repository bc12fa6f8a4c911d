package model

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"

	"crud6-backend/internal/schema"
	"crud6-backend/internal/store"
)

var (
	ErrIncompleteSchema  = errors.New("incomplete schema")
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// Cast is the value conversion applied to a column on read and write.
type Cast string

const (
	CastString Cast = "string"
	CastInt    Cast = "int"
	CastFloat  Cast = "float"
	CastBool   Cast = "bool"
	CastJSON   Cast = "json"
)

const softDeleteColumn = "deleted_at"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// virtualTypes are field types with no backing column.
var virtualTypes = map[string]bool{"multiselect": true}

// ValidIdentifier reports whether name is safe to splice into SQL as a
// table or column name.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// TableConfig is the data-access configuration derived from one schema.
// It is immutable once built.
type TableConfig struct {
	Model      string
	Table      string
	PrimaryKey string
	Connection string
	Timestamps bool
	SoftDelete bool

	// Columns are the physical columns in field order, primary key included.
	Columns []string
	// Fillable are the columns accepted from request input.
	Fillable []string
	Casts    map[string]Cast
	// Hidden columns are never selected into responses.
	Hidden []string

	Schema *schema.Schema
}

// NewTableConfig derives a TableConfig from a normalized schema. It fails
// when the schema has no table or names something that is not a plain SQL
// identifier.
func NewTableConfig(s *schema.Schema) (*TableConfig, error) {
	if s == nil {
		return nil, errors.Wrap(ErrIncompleteSchema, "nil schema")
	}
	if strings.TrimSpace(s.Table) == "" {
		return nil, errors.Wrapf(ErrIncompleteSchema, "model %s has no table", s.Model)
	}
	pk := s.PrimaryKey
	if pk == "" {
		pk = "id"
	}
	for _, name := range []string{s.Table, pk} {
		if !ValidIdentifier(name) {
			return nil, errors.Wrapf(ErrInvalidIdentifier, "%q in model %s", name, s.Model)
		}
	}

	cfg := &TableConfig{
		Model:      s.Model,
		Table:      s.Table,
		PrimaryKey: pk,
		Connection: s.Connection,
		Timestamps: s.Timestamps,
		SoftDelete: s.SoftDelete,
		Casts:      map[string]Cast{},
		Schema:     s,
	}

	if s.Field(pk) == nil {
		cfg.Columns = append(cfg.Columns, pk)
		cfg.Casts[pk] = CastInt
	}
	for _, f := range s.Fields {
		if f.Computed || virtualTypes[f.Type] {
			continue
		}
		if !ValidIdentifier(f.Name) {
			return nil, errors.Wrapf(ErrInvalidIdentifier, "field %q in model %s", f.Name, s.Model)
		}
		cfg.Columns = append(cfg.Columns, f.Name)
		cfg.Casts[f.Name] = castFor(f.Type)
		if f.Type == "password" {
			cfg.Hidden = append(cfg.Hidden, f.Name)
		}
		if f.VisibleIn(schema.ContextCreate) || f.VisibleIn(schema.ContextEdit) {
			cfg.Fillable = append(cfg.Fillable, f.Name)
		}
	}
	return cfg, nil
}

// WithConnection returns a copy bound to another connection.
func (c *TableConfig) WithConnection(conn string) *TableConfig {
	cp := *c
	cp.Connection = conn
	return &cp
}

// SoftDeleteColumn returns the soft delete column, and false when soft
// delete is off. Callers must not emit any scope when it returns false.
func (c *TableConfig) SoftDeleteColumn() (string, bool) {
	if !c.SoftDelete {
		return "", false
	}
	return softDeleteColumn, true
}

// SoftDeleteScope returns the "not deleted" predicate, qualified by alias
// when one is given, or "" when soft delete is off.
func (c *TableConfig) SoftDeleteScope(alias string) string {
	col, ok := c.SoftDeleteColumn()
	if !ok {
		return ""
	}
	return qualify(alias, col) + " IS NULL"
}

// IsFillable reports whether column accepts request input.
func (c *TableConfig) IsFillable(column string) bool {
	return contains(c.Fillable, column)
}

// HasColumn reports whether column is a physical column of the table.
func (c *TableConfig) HasColumn(column string) bool {
	return contains(c.Columns, column)
}

// SelectColumns are the columns returned to callers: physical columns
// minus hidden ones, plus managed timestamps.
func (c *TableConfig) SelectColumns() []string {
	var cols []string
	for _, col := range c.Columns {
		if !contains(c.Hidden, col) {
			cols = append(cols, col)
		}
	}
	if c.Timestamps {
		for _, col := range []string{"created_at", "updated_at"} {
			if !contains(cols, col) && !contains(c.Hidden, col) {
				cols = append(cols, col)
			}
		}
	}
	return cols
}

// BoolColumns lists the columns cast to bool.
func (c *TableConfig) BoolColumns() []string {
	var cols []string
	for _, col := range c.Columns {
		if c.Casts[col] == CastBool {
			cols = append(cols, col)
		}
	}
	return cols
}

// TableDefinition describes the table for the migrator.
func (c *TableConfig) TableDefinition() *store.TableDef {
	def := &store.TableDef{Name: c.Table, Timestamps: c.Timestamps}
	if col, ok := c.SoftDeleteColumn(); ok {
		def.SoftDeleteColumn = col
	}
	for _, col := range c.Columns {
		f := c.Schema.Field(col)
		if f == nil {
			def.Columns = append(def.Columns, store.ColumnDef{Name: col, StorageType: "integer", Primary: true, AutoIncrement: true})
			continue
		}
		cd := store.ColumnDef{
			Name:          col,
			StorageType:   storageType(f.Type),
			Primary:       col == c.PrimaryKey,
			AutoIncrement: f.AutoIncrement,
			Required:      f.Required && !f.Nullable,
			Default:       f.Default,
		}
		if unique, _ := f.Validation["unique"].(bool); unique {
			cd.Unique = true
		}
		def.Columns = append(def.Columns, cd)
	}
	return def
}

func castFor(fieldType string) Cast {
	switch fieldType {
	case "integer", "int", "bigint":
		return CastInt
	case "float", "decimal", "double", "number":
		return CastFloat
	case "boolean":
		return CastBool
	case "json":
		return CastJSON
	}
	if strings.HasPrefix(fieldType, "boolean") {
		return CastBool
	}
	return CastString
}

func storageType(fieldType string) string {
	switch fieldType {
	case "integer", "int", "smartlookup":
		return "integer"
	case "bigint":
		return "bigint"
	case "float", "double", "number":
		return "float"
	case "decimal":
		return "decimal"
	case "boolean":
		return "boolean"
	case "date":
		return "date"
	case "datetime", "timestamp":
		return "timestamp"
	case "json":
		return "json"
	case "text":
		return "text"
	}
	if strings.HasPrefix(fieldType, "textarea") {
		return "text"
	}
	return "string"
}

func qualify(alias, col string) string {
	if alias == "" {
		return col
	}
	return alias + "." + col
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
