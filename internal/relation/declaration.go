package relation

import (
	"strings"

	"github.com/cockroachdb/errors"

	"crud6-backend/internal/schema"
)

var (
	// ErrInvalidConfiguration marks a relationship that cannot be resolved
	// as declared. It is never degraded to a simpler relationship.
	ErrInvalidConfiguration = schema.ErrInvalidRelationship
	ErrNotDeclared          = errors.New("relationship not declared")
	ErrUnsupported          = errors.New("operation not supported by relationship")
)

// Declaration is one of OneToMany, ManyToMany or ManyToManyThrough.
type Declaration interface {
	RelationName() string
	RelatedModel() string
	isDeclaration()
}

// OneToMany lists related rows whose ForeignKey holds the parent's key.
type OneToMany struct {
	Name       string
	Model      string
	ForeignKey string
	ListFields []string
}

// ManyToMany joins related rows through a pivot table.
type ManyToMany struct {
	Name       string
	Model      string
	PivotTable string
	ForeignKey string // pivot column holding the parent key
	RelatedKey string // pivot column holding the related key
	Actions    *schema.RelationshipActions
}

// ManyToManyThrough chains two pivot tables across an intermediate model:
// parent -> first pivot -> through -> second pivot -> related.
type ManyToManyThrough struct {
	Name             string
	Model            string
	Through          string
	FirstPivotTable  string
	FirstForeignKey  string
	FirstRelatedKey  string
	SecondPivotTable string
	SecondForeignKey string
	SecondRelatedKey string
	Actions          *schema.RelationshipActions
}

func (d OneToMany) RelationName() string         { return d.Name }
func (d OneToMany) RelatedModel() string         { return d.Model }
func (d ManyToMany) RelationName() string        { return d.Name }
func (d ManyToMany) RelatedModel() string        { return d.Model }
func (d ManyToManyThrough) RelationName() string { return d.Name }
func (d ManyToManyThrough) RelatedModel() string { return d.Model }

func (OneToMany) isDeclaration()         {}
func (ManyToMany) isDeclaration()        {}
func (ManyToManyThrough) isDeclaration() {}

// ThroughModel returns the intermediate model name. Class-like references
// such as "App\Models\Role" resolve to the pluralized, lowercased basename.
func (d ManyToManyThrough) ThroughModel() string {
	return ModelName(d.Through)
}

// ModelName maps a model reference to a schema model name.
func ModelName(ref string) string {
	if !strings.ContainsAny(ref, `\/`) {
		return ref
	}
	base := ref[strings.LastIndexAny(ref, `\/`)+1:]
	base = strings.ToLower(base)
	if base == "" || strings.HasSuffix(base, "s") {
		return base
	}
	return base + "s"
}

// FromSpec converts a relationships entry into its declaration.
func FromSpec(spec schema.RelationshipSpec) (Declaration, error) {
	switch spec.Type {
	case schema.ManyToManyType:
		return ManyToMany{
			Name:       spec.Name,
			Model:      spec.RelatedModel(),
			PivotTable: spec.PivotTable,
			ForeignKey: spec.ForeignKey,
			RelatedKey: spec.RelatedKey,
			Actions:    spec.Actions,
		}, nil
	case schema.ManyToManyThroughType:
		return ManyToManyThrough{
			Name:             spec.Name,
			Model:            spec.RelatedModel(),
			Through:          spec.Through,
			FirstPivotTable:  spec.FirstPivotTable,
			FirstForeignKey:  spec.FirstForeignKey,
			FirstRelatedKey:  spec.FirstRelatedKey,
			SecondPivotTable: spec.SecondPivotTable,
			SecondForeignKey: spec.SecondForeignKey,
			SecondRelatedKey: spec.SecondRelatedKey,
			Actions:          spec.Actions,
		}, nil
	}
	return nil, errors.Wrapf(ErrInvalidConfiguration, "relationship %s: unknown type %q", spec.Name, spec.Type)
}

// FromDetail converts a detail entry with a foreign key into a one-to-many
// declaration.
func FromDetail(d schema.DetailSpec) OneToMany {
	return OneToMany{Name: d.Model, Model: d.Model, ForeignKey: d.ForeignKey, ListFields: d.ListFields}
}

// Lookup finds the declaration named name on s. A relationships entry wins;
// a detail entry with a foreign key is used only when no relationship of
// that name exists.
func Lookup(s *schema.Schema, name string) (Declaration, error) {
	if spec, ok := s.Relationship(name); ok {
		return FromSpec(spec)
	}
	if d, ok := s.DetailFor(name); ok && d.ForeignKey != "" {
		return FromDetail(d), nil
	}
	return nil, errors.Wrapf(ErrNotDeclared, "%s on %s", name, s.Model)
}

// Declarations returns every relationships entry of s in schema order,
// skipping unknown types.
func Declarations(s *schema.Schema) []Declaration {
	var out []Declaration
	for _, spec := range s.Relationships {
		if d, err := FromSpec(spec); err == nil {
			out = append(out, d)
		}
	}
	return out
}
