package relation

import (
	"context"

	"github.com/cockroachdb/errors"

	"crud6-backend/internal/model"
	"crud6-backend/internal/store"
)

// Options bound a related-row query.
type Options struct {
	Limit  int
	Offset int
}

// Relationship reads and writes the related rows of one parent.
type Relationship interface {
	Name() string
	Related() *model.TableConfig

	// Select builds the related-row query for one parent key.
	Select(parentID any, opts Options) model.Statement
	Fetch(ctx context.Context, q store.Querier, parentID any, opts Options) ([]map[string]any, error)

	// Attach links relatedID with optional pivot data. Attaching an
	// already linked id is a no-op.
	Attach(ctx context.Context, q store.Querier, parentID, relatedID any, pivot map[string]any) error
	// Detach unlinks the given ids, or every linked id when ids is nil.
	Detach(ctx context.Context, q store.Querier, parentID any, ids []any) error
	// Sync makes the linked set equal ids.
	Sync(ctx context.Context, q store.Querier, parentID any, ids []any) error
}

// Resolver builds relationships from declarations and configured models.
type Resolver struct {
	dialect store.Dialect
}

func NewResolver(dialect store.Dialect) *Resolver {
	return &Resolver{dialect: dialect}
}

// Resolve binds decl between parent and related. related must be the
// TableConfig built from decl's related schema; through is required for
// ManyToManyThrough and ignored otherwise.
func (r *Resolver) Resolve(parent *model.TableConfig, decl Declaration, related, through *model.TableConfig) (Relationship, error) {
	if parent == nil {
		return nil, errors.Wrap(ErrInvalidConfiguration, "parent model is not configured")
	}
	if decl == nil {
		return nil, errors.Wrap(ErrInvalidConfiguration, "nil declaration")
	}
	if related == nil {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "relationship %s: related model %s is not configured", decl.RelationName(), decl.RelatedModel())
	}
	if related.Model != decl.RelatedModel() {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "relationship %s: expected related model %s, got %s", decl.RelationName(), decl.RelatedModel(), related.Model)
	}

	base := relationshipBase{
		name:    decl.RelationName(),
		parent:  parent,
		related: related,
		repo:    model.NewRepository(related, r.dialect),
		dialect: r.dialect,
	}

	switch d := decl.(type) {
	case OneToMany:
		if err := requireIdentifiers(d.Name, d.ForeignKey); err != nil {
			return nil, err
		}
		return &oneToMany{relationshipBase: base, decl: d}, nil
	case ManyToMany:
		if err := requireIdentifiers(d.Name, d.PivotTable, d.ForeignKey, d.RelatedKey); err != nil {
			return nil, err
		}
		return &manyToMany{relationshipBase: base, decl: d}, nil
	case ManyToManyThrough:
		if through == nil {
			return nil, errors.Wrapf(ErrInvalidConfiguration, "relationship %s: through model %s is required", d.Name, d.ThroughModel())
		}
		if through.Model != d.ThroughModel() {
			return nil, errors.Wrapf(ErrInvalidConfiguration, "relationship %s: expected through model %s, got %s", d.Name, d.ThroughModel(), through.Model)
		}
		if err := requireIdentifiers(d.Name, d.FirstPivotTable, d.FirstForeignKey, d.FirstRelatedKey,
			d.SecondPivotTable, d.SecondForeignKey, d.SecondRelatedKey); err != nil {
			return nil, err
		}
		return &manyToManyThrough{relationshipBase: base, decl: d, through: through}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidConfiguration, "relationship %s: unsupported declaration %T", decl.RelationName(), decl)
	}
}

func requireIdentifiers(relation string, names ...string) error {
	for _, name := range names {
		if name == "" {
			return errors.Wrapf(ErrInvalidConfiguration, "relationship %s: missing table or key", relation)
		}
		if !model.ValidIdentifier(name) {
			return errors.Wrapf(ErrInvalidConfiguration, "relationship %s: invalid identifier %q", relation, name)
		}
	}
	return nil
}

type relationshipBase struct {
	name    string
	parent  *model.TableConfig
	related *model.TableConfig
	repo    *model.Repository
	dialect store.Dialect
}

func (b *relationshipBase) Name() string                { return b.name }
func (b *relationshipBase) Related() *model.TableConfig { return b.related }

func (b *relationshipBase) fetch(ctx context.Context, q store.Querier, stmt model.Statement) ([]map[string]any, error) {
	rows, err := store.QueryRows(ctx, q, stmt.SQL, stmt.Params...)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", b.name)
	}
	return b.repo.Decode(rows), nil
}

// qualifiedColumns prefixes the related select columns with alias.
func (b *relationshipBase) qualifiedColumns(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return out
}
