package engine

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"crud6-backend/internal/identity"
	"crud6-backend/internal/instrument"
	"crud6-backend/internal/model"
	"crud6-backend/internal/relation"
	"crud6-backend/internal/schema"
	"crud6-backend/internal/store"
)

// Authorizer decides capability checks such as "update.users".
type Authorizer interface {
	Can(user *identity.UserContext, capability string) bool
}

// PasswordHasher hashes a plaintext password for storage.
type PasswordHasher func(plain string) (string, error)

// RelationObserver counts relationship membership writes.
type RelationObserver interface {
	ObserveRelationWrite(model, relation, op string)
}

// Config wires a Handler. Schemas, Stores and Hasher are required.
type Config struct {
	Schemas    *schema.Store
	Stores     *store.Manager
	Authorizer Authorizer
	Hasher     PasswordHasher
	Relations  RelationObserver
	Logger     *zap.Logger
	Now        func() time.Time
}

type Handler struct {
	schemas    *schema.Store
	stores     *store.Manager
	authorizer Authorizer
	hasher     PasswordHasher
	relations  RelationObserver
	logger     *zap.Logger
	now        func() time.Time
	filtered   *FilteredCache
	evaluator  *ExprLangEvaluator
}

func NewHandler(cfg Config) *Handler {
	h := &Handler{
		schemas:    cfg.Schemas,
		stores:     cfg.Stores,
		authorizer: cfg.Authorizer,
		hasher:     cfg.Hasher,
		relations:  cfg.Relations,
		logger:     cfg.Logger,
		now:        cfg.Now,
		filtered:   NewFilteredCache(),
		evaluator:  NewExprLangEvaluator(),
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// target is one resolved model for a request: its schema, table
// configuration and the store it lives in.
type target struct {
	schema *schema.Schema
	cfg    *model.TableConfig
	db     *store.Store
	repo   *model.Repository
	// override is the connection named in the request path, if any.
	override string
}

// ParseModelParam splits "users@reporting" into model and connection.
func ParseModelParam(raw string) (modelName, connection string) {
	modelName, connection, _ = strings.Cut(raw, "@")
	return strings.TrimSpace(modelName), strings.TrimSpace(connection)
}

func (h *Handler) resolve(c *fiber.Ctx) (*target, error) {
	name, conn := ParseModelParam(strings.Clone(c.Params("model")))
	return h.resolveModel(c, name, conn)
}

// resolveModel loads the schema for name and binds it to a connection: the
// request override wins over the schema's own connection.
func (h *Handler) resolveModel(c *fiber.Ctx, name, override string) (*target, error) {
	s, err := h.loadSchema(c, name, override)
	if err != nil {
		return nil, err
	}
	cfg, err := model.NewTableConfig(s)
	if err != nil {
		return nil, err
	}
	conn := s.Connection
	if override != "" {
		conn = override
		cfg = cfg.WithConnection(override)
	}
	db, err := h.stores.Get(c.UserContext(), conn)
	if err != nil {
		if errors.Is(err, store.ErrUnknownConnection) {
			return nil, UnknownConnectionError(conn)
		}
		return nil, err
	}
	return &target{
		schema:   s,
		cfg:      cfg,
		db:       db,
		repo:     model.NewRepository(cfg, db.Dialect),
		override: override,
	}, nil
}

func (h *Handler) loadSchema(c *fiber.Ctx, name, override string) (*schema.Schema, error) {
	if name == "" {
		return nil, UnknownModelError(name)
	}
	s, err := h.schemas.GetSchema(c.UserContext(), name, override)
	if err != nil {
		if errors.Is(err, schema.ErrSchemaNotFound) {
			return nil, UnknownModelError(name)
		}
		if errors.Is(err, schema.ErrSchemaInvalid) {
			h.logger.Error("schema invalid", zap.String("model", name), zap.String("connection", override), zap.Error(err))
			return nil, SchemaInvalidError(name)
		}
		return nil, err
	}
	return s, nil
}

// relatedModel resolves a model referenced by t's relationships. Related
// rows are read from t's store so joins stay on one database.
func (h *Handler) relatedModel(c *fiber.Ctx, t *target, name string) (*model.TableConfig, error) {
	s, err := h.schemas.GetSchema(c.UserContext(), name, t.override)
	if err != nil {
		if errors.Is(err, schema.ErrSchemaNotFound) {
			return nil, errors.Wrapf(relation.ErrInvalidConfiguration, "related model %s: %v", name, err)
		}
		return nil, err
	}
	return model.NewTableConfig(s)
}

// relationship resolves the relation named name on t.
func (h *Handler) relationship(c *fiber.Ctx, t *target, name string) (relation.Relationship, error) {
	decl, err := relation.Lookup(t.schema, name)
	if err != nil {
		if errors.Is(err, relation.ErrNotDeclared) {
			return nil, RelationNotFoundError(t.schema.Model, name)
		}
		return nil, err
	}
	related, err := h.relatedModel(c, t, decl.RelatedModel())
	if err != nil {
		return nil, err
	}
	var through *model.TableConfig
	if d, ok := decl.(relation.ManyToManyThrough); ok {
		if through, err = h.relatedModel(c, t, d.ThroughModel()); err != nil {
			return nil, err
		}
	}
	return relation.NewResolver(t.db.Dialect).Resolve(t.cfg, decl, related, through)
}

// authorize checks the capability for action on t's model.
func (h *Handler) authorize(c *fiber.Ctx, s *schema.Schema, action string) error {
	return h.require(c, s.Permission(action))
}

func (h *Handler) require(c *fiber.Ctx, capability string) error {
	if h.authorizer == nil {
		return nil
	}
	user := getUser(c)
	if h.authorizer.Can(user, capability) {
		return nil
	}
	if user == nil {
		return UnauthorizedError("Authentication required")
	}
	return ForbiddenError("Missing capability " + capability)
}

// recordID coerces the :id path parameter to the primary key type.
func recordID(c *fiber.Ctx, t *target) (string, any, error) {
	raw := strings.Clone(c.Params("id"))
	id, err := t.cfg.CoerceID(raw)
	if err != nil {
		return raw, nil, NotFoundError(t.schema.Model, raw)
	}
	return raw, id, nil
}

// find loads one record or returns NOT_FOUND.
func find(c *fiber.Ctx, q store.Querier, t *target, raw string, id any) (map[string]any, error) {
	row, err := t.repo.Find(c.UserContext(), q, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError(t.schema.Model, raw)
		}
		return nil, err
	}
	return row, nil
}

func getUser(c *fiber.Ctx) *identity.UserContext {
	user, _ := c.Locals(identity.LocalsKey).(*identity.UserContext)
	return user
}

func span(c *fiber.Ctx, action string, t *target) instrument.Span {
	ctx, sp := instrument.Start(c.UserContext(), "engine", action)
	c.SetUserContext(ctx)
	if t != nil {
		sp.SetEntity(t.schema.Model, strings.Clone(c.Params("id")))
	}
	return sp
}

func finish(sp instrument.Span, err error) error {
	if err != nil {
		sp.SetStatus("error")
	} else {
		sp.SetStatus("ok")
	}
	sp.End()
	return err
}
