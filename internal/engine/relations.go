package engine

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"

	"crud6-backend/internal/relation"
)

// Related handles GET /api/{ns}/:model/:id/:relation
func (h *Handler) Related(c *fiber.Ctx) error {
	t, err := h.resolve(c)
	if err != nil {
		return err
	}
	if err := h.authorize(c, t.schema, "read"); err != nil {
		return err
	}
	rel, err := h.relationship(c, t, strings.Clone(c.Params("relation")))
	if err != nil {
		return err
	}
	if err := h.authorize(c, rel.Related().Schema, "read"); err != nil {
		return err
	}
	raw, id, err := recordID(c, t)
	if err != nil {
		return err
	}
	if _, err := find(c, t.db.DB, t, raw, id); err != nil {
		return err
	}
	sp := span(c, "related", t)
	defer sp.End()

	opts := relation.Options{}
	if pp, err := strconv.Atoi(c.Query("per_page")); err == nil && pp > 0 {
		opts.Limit = min(pp, maxPerPage)
		if page, err := strconv.Atoi(c.Query("page")); err == nil && page > 1 {
			opts.Offset = (page - 1) * opts.Limit
		}
	}
	rows, err := rel.Fetch(c.UserContext(), t.db.DB, id, opts)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{"relation": rel.Name(), "model": rel.Related().Model},
	})
}

// relationBody is the payload of attach and detach requests.
type relationBody struct {
	IDs   any            `json:"ids"`
	All   bool           `json:"all"`
	Pivot map[string]any `json:"pivot"`
}

// Attach handles POST /api/{ns}/:model/:id/:relation
func (h *Handler) Attach(c *fiber.Ctx) error {
	return h.changeMembers(c, "attach")
}

// Detach handles DELETE /api/{ns}/:model/:id/:relation
func (h *Handler) Detach(c *fiber.Ctx) error {
	return h.changeMembers(c, "detach")
}

func (h *Handler) changeMembers(c *fiber.Ctx, op string) (err error) {
	t, err := h.resolve(c)
	if err != nil {
		return err
	}
	if err := h.authorize(c, t.schema, "update"); err != nil {
		return err
	}
	rel, err := h.relationship(c, t, strings.Clone(c.Params("relation")))
	if err != nil {
		return err
	}
	raw, id, err := recordID(c, t)
	if err != nil {
		return err
	}
	if _, err := find(c, t.db.DB, t, raw, id); err != nil {
		return err
	}

	var body relationBody
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return InvalidPayloadError("Invalid JSON body")
		}
	}
	ids := relation.IDList(body.IDs)
	if len(ids) == 0 && !(op == "detach" && body.All) {
		return InvalidPayloadError("ids must list at least one related id")
	}
	sp := span(c, op, t)
	sp.SetMetadata("relation", rel.Name())
	defer func() { finish(sp, err) }()

	ctx := c.UserContext()
	tx, err := t.db.BeginTx(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	ac := h.actionContext(c, nil)
	switch op {
	case "attach":
		pivot := make(map[string]any, len(body.Pivot))
		for k, v := range body.Pivot {
			pivot[k] = relation.SubstituteValue(v, ac)
		}
		for _, relatedID := range ids {
			if err := rel.Attach(ctx, tx, id, relatedID, pivot); err != nil {
				return err
			}
		}
	case "detach":
		if body.All {
			ids = nil
		}
		if err := rel.Detach(ctx, tx, id, ids); err != nil {
			return err
		}
	}
	rows, err := rel.Fetch(ctx, tx, id, relation.Options{})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	if h.relations != nil {
		h.relations.ObserveRelationWrite(t.schema.Model, rel.Name(), op)
	}
	return c.JSON(fiber.Map{"data": rows})
}
