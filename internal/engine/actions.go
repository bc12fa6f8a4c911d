package engine

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"crud6-backend/internal/relation"
	"crud6-backend/internal/schema"
)

// RunAction handles POST /api/{ns}/:model/:id/a/:action
func (h *Handler) RunAction(c *fiber.Ctx) (err error) {
	t, err := h.resolve(c)
	if err != nil {
		return err
	}
	key := strings.Clone(c.Params("action"))
	action, ok := t.schema.Action(key)
	if !ok {
		return ActionNotFoundError(t.schema.Model, key)
	}
	capability := action.Permission
	if capability == "" {
		capability = t.schema.Permission("update")
	}
	if err := h.require(c, capability); err != nil {
		return err
	}
	raw, id, err := recordID(c, t)
	if err != nil {
		return err
	}
	record, err := find(c, t.db.DB, t, raw, id)
	if err != nil {
		return err
	}
	sp := span(c, "action", t)
	sp.SetMetadata("action", key)
	defer func() { finish(sp, err) }()

	if action.Condition != "" {
		env := map[string]any{"record": record, "user": getUser(c).Map()}
		allowed, err := h.evaluator.EvaluateBool(action.Condition, env)
		if err != nil {
			h.logger.Warn("action condition failed", zap.String("model", t.schema.Model), zap.String("action", key), zap.Error(err))
			return ActionUnavailableError(key)
		}
		if !allowed {
			return ActionUnavailableError(key)
		}
	}

	if schemaField(t.cfg, action.Field) == nil {
		return errors.Wrapf(schema.ErrSchemaInvalid, "action %s targets unknown field %q", key, action.Field)
	}
	var value any
	switch action.Type {
	case schema.ActionToggle:
		current, _ := record[action.Field].(bool)
		value = !current
	case schema.ActionFieldUpdate:
		value = relation.SubstituteValue(action.Value, h.actionContext(c, nil))
	default:
		return errors.Wrapf(schema.ErrSchemaInvalid, "action %s has unsupported type %q", key, action.Type)
	}

	updated, err := h.write(c, t, "", id, map[string]any{action.Field: value}, nil)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": updated, "action": key})
}
