package engine

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"crud6-backend/internal/relation"
	"crud6-backend/internal/schema"
	"crud6-backend/internal/store"
)

// Schema handles GET /api/{ns}/:model/schema
func (h *Handler) Schema(c *fiber.Ctx) error {
	name, override := ParseModelParam(strings.Clone(c.Params("model")))
	s, err := h.loadSchema(c, name, override)
	if err != nil {
		return err
	}
	if err := h.authorize(c, s, "read"); err != nil {
		return err
	}

	context := c.Query("context")
	includeRelated := c.QueryBool("include_related")
	etag := s.ETag()
	if etag != "" {
		etag = `"` + etag + `"`
		c.Set(fiber.HeaderETag, etag)
		if !includeRelated && c.Get(fiber.HeaderIfNoneMatch) == etag {
			return c.SendStatus(fiber.StatusNotModified)
		}
	}

	resp := fiber.Map{"data": h.filtered.Get(schema.CacheKey(name, override), s, context)}
	if includeRelated {
		related := fiber.Map{}
		for _, ref := range relatedModels(s) {
			rs, err := h.loadSchema(c, ref, override)
			if err != nil {
				h.logger.Warn("related schema unavailable",
					zap.String("model", name), zap.String("related", ref), zap.Error(err))
				continue
			}
			related[ref] = h.filtered.Get(schema.CacheKey(ref, override), rs, context)
		}
		resp["related_schemas"] = related
	}
	return c.JSON(resp)
}

// CapabilitySchemaCache guards the schema cache route.
const CapabilitySchemaCache = "clear_cache.schemas"

// ClearSchemaCache handles DELETE /api/{ns}/:model/schema/cache. It drops the
// cached schemas of the model, for every connection or only for the one named
// as model@connection, together with their filtered payloads. The schema is
// not loaded, so a broken schema file can be cleared after it is fixed.
func (h *Handler) ClearSchemaCache(c *fiber.Ctx) error {
	name, override := ParseModelParam(strings.Clone(c.Params("model")))
	if !schema.ValidName(name) || (override != "" && !schema.ValidName(override)) {
		return UnknownModelError(name)
	}
	if err := h.require(c, CapabilitySchemaCache); err != nil {
		return err
	}

	var cleared []string
	if override != "" {
		key := schema.CacheKey(name, override)
		h.schemas.ClearCache(name, override)
		h.filtered.Invalidate(key)
		cleared = []string{key}
	} else {
		cleared = h.schemas.ClearModel(name)
		h.filtered.InvalidateModel(name)
	}
	h.logger.Info("schema cache cleared", zap.String("model", name), zap.Strings("keys", cleared))
	if cleared == nil {
		cleared = []string{}
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"model": name, "cleared": cleared}})
}

// relatedModels lists the models referenced by details and relationships,
// in declaration order, without duplicates or the model itself.
func relatedModels(s *schema.Schema) []string {
	seen := map[string]bool{s.Model: true}
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, d := range s.Details {
		add(d.Model)
	}
	for _, r := range s.Relationships {
		add(r.RelatedModel())
	}
	return out
}

// List handles GET /api/{ns}/:model
func (h *Handler) List(c *fiber.Ctx) error {
	t, err := h.resolve(c)
	if err != nil {
		return err
	}
	if err := h.authorize(c, t.schema, "read"); err != nil {
		return err
	}
	sp := span(c, "list", t)
	defer sp.End()

	plan, err := ParseListQuery(c, t.cfg)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	rows, err := t.repo.List(ctx, t.db.DB, plan.Query)
	if err != nil {
		return err
	}
	total, err := t.repo.Count(ctx, t.db.DB, plan.Query)
	if err != nil {
		return err
	}
	sp.SetMetadata("rows", len(rows))

	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{
			"page":     plan.Page,
			"per_page": plan.PerPage,
			"total":    total,
		},
	})
}

// Read handles GET /api/{ns}/:model/:id
func (h *Handler) Read(c *fiber.Ctx) error {
	t, err := h.resolve(c)
	if err != nil {
		return err
	}
	if err := h.authorize(c, t.schema, "read"); err != nil {
		return err
	}
	raw, id, err := recordID(c, t)
	if err != nil {
		return err
	}
	row, err := find(c, t.db.DB, t, raw, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// Create handles POST /api/{ns}/:model
func (h *Handler) Create(c *fiber.Ctx) (err error) {
	t, err := h.resolve(c)
	if err != nil {
		return err
	}
	if err := h.authorize(c, t.schema, "create"); err != nil {
		return err
	}
	body, err := parseBody(c)
	if err != nil {
		return err
	}
	sp := span(c, "create", t)
	defer func() { finish(sp, err) }()

	input := fillable(t.cfg, body)
	record, err := h.write(c, t, "create", nil, input, body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": record})
}

// Update handles PUT /api/{ns}/:model/:id
func (h *Handler) Update(c *fiber.Ctx) (err error) {
	t, err := h.resolve(c)
	if err != nil {
		return err
	}
	if err := h.authorize(c, t.schema, "update"); err != nil {
		return err
	}
	raw, id, err := recordID(c, t)
	if err != nil {
		return err
	}
	if _, err := find(c, t.db.DB, t, raw, id); err != nil {
		return err
	}
	body, err := parseBody(c)
	if err != nil {
		return err
	}
	sp := span(c, "update", t)
	defer func() { finish(sp, err) }()

	record, err := h.write(c, t, "update", id, fillable(t.cfg, body), body)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": record})
}

// UpdateField handles PUT /api/{ns}/:model/:id/:field. The body is
// {"value": x} or {"<field>": x}.
func (h *Handler) UpdateField(c *fiber.Ctx) (err error) {
	t, err := h.resolve(c)
	if err != nil {
		return err
	}
	if err := h.authorize(c, t.schema, "update"); err != nil {
		return err
	}
	field := strings.Clone(c.Params("field"))
	f := schemaField(t.cfg, field)
	if f == nil {
		return UnknownFieldError("Unknown field: " + field)
	}
	if f.Readonly || !t.cfg.IsFillable(field) {
		return ForbiddenError("Field " + field + " is not editable")
	}
	raw, id, err := recordID(c, t)
	if err != nil {
		return err
	}
	if _, err := find(c, t.db.DB, t, raw, id); err != nil {
		return err
	}
	body, err := parseBody(c)
	if err != nil {
		return err
	}
	value, ok := body[field]
	if !ok {
		if value, ok = body["value"]; !ok {
			return InvalidPayloadError("Missing value for " + field)
		}
	}
	sp := span(c, "update_field", t)
	defer func() { finish(sp, err) }()

	record, err := h.write(c, t, "", id, map[string]any{field: value}, body)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": record})
}

// Delete handles DELETE /api/{ns}/:model/:id
func (h *Handler) Delete(c *fiber.Ctx) (err error) {
	t, err := h.resolve(c)
	if err != nil {
		return err
	}
	if err := h.authorize(c, t.schema, "delete"); err != nil {
		return err
	}
	raw, id, err := recordID(c, t)
	if err != nil {
		return err
	}
	if _, err := find(c, t.db.DB, t, raw, id); err != nil {
		return err
	}
	bindings, err := h.bindings(c, t, "delete")
	if err != nil {
		return err
	}
	sp := span(c, "delete", t)
	defer func() { finish(sp, err) }()

	ctx := c.UserContext()
	tx, err := t.db.BeginTx(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := relation.ApplyActions(ctx, tx, id, bindings, h.actionContext(c, nil)); err != nil {
		return err
	}
	if err := t.repo.Delete(ctx, tx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError(t.schema.Model, raw)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// write validates input and runs the insert or update plus the event's
// relationship actions in one transaction. id is nil for a create. An empty
// event runs no relationship actions.
func (h *Handler) write(c *fiber.Ctx, t *target, event string, id any, input, body map[string]any) (map[string]any, error) {
	ctx := c.UserContext()
	isCreate := id == nil

	details, err := ValidateInput(ctx, t.db.DB, t, input, isCreate, id)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		return nil, ValidationError(details)
	}
	if err := h.hashPasswords(t.schema, input); err != nil {
		return nil, err
	}
	values, err := t.cfg.CastInput(input)
	if err != nil {
		return nil, err
	}
	var bindings []relation.Binding
	if event != "" {
		if bindings, err = h.bindings(c, t, event); err != nil {
			return nil, err
		}
	}

	tx, err := t.db.BeginTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if isCreate {
		if id, err = t.repo.Insert(ctx, tx, values); err != nil {
			return nil, err
		}
	} else if err := t.repo.Update(ctx, tx, id, values); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError(t.schema.Model, strings.Clone(c.Params("id")))
		}
		return nil, err
	}
	if err := relation.ApplyActions(ctx, tx, id, bindings, h.actionContext(c, body)); err != nil {
		return nil, err
	}
	record, err := t.repo.Find(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	return record, nil
}

// bindings resolves the relationships with actions for event, in schema
// order.
func (h *Handler) bindings(c *fiber.Ctx, t *target, event string) ([]relation.Binding, error) {
	var out []relation.Binding
	for _, spec := range t.schema.Relationships {
		set := spec.Actions.For(event)
		if set == nil {
			continue
		}
		rel, err := h.relationship(c, t, spec.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, relation.Binding{Relationship: rel, Actions: set})
	}
	return out, nil
}

func (h *Handler) actionContext(c *fiber.Ctx, body map[string]any) relation.ActionContext {
	return relation.ActionContext{
		UserID: getUser(c).Subject(),
		Now:    h.now(),
		Input:  body,
	}
}

// hashPasswords replaces plaintext password values with their hash. Blank
// passwords are dropped so an update never clears a stored hash.
func (h *Handler) hashPasswords(s *schema.Schema, input map[string]any) error {
	for name, v := range input {
		f := s.Field(name)
		if f == nil || f.Type != "password" {
			continue
		}
		plain, _ := v.(string)
		if plain == "" {
			delete(input, name)
			continue
		}
		if h.hasher == nil {
			return errors.New("no password hasher configured")
		}
		hashed, err := h.hasher(plain)
		if err != nil {
			return err
		}
		input[name] = hashed
	}
	return nil
}

func parseBody(c *fiber.Ctx) (map[string]any, error) {
	body := map[string]any{}
	if len(c.Body()) == 0 {
		return body, nil
	}
	if err := c.BodyParser(&body); err != nil {
		return nil, InvalidPayloadError("Invalid JSON body")
	}
	return body, nil
}
