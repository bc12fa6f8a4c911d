package engine

import "github.com/gofiber/fiber/v2"

// RegisterRoutes mounts the model routes under /api/{ns}. The schema, schema
// cache and action routes are registered before the catch-all record routes.
func RegisterRoutes(app *fiber.App, namespace string, h *Handler, middleware ...fiber.Handler) {
	api := app.Group("/api/"+namespace, middleware...)

	api.Get("/:model/schema", h.Schema)
	api.Delete("/:model/schema/cache", h.ClearSchemaCache)
	api.Get("/:model", h.List)
	api.Post("/:model", h.Create)
	api.Post("/:model/:id/a/:action", h.RunAction)
	api.Get("/:model/:id", h.Read)
	api.Put("/:model/:id", h.Update)
	api.Delete("/:model/:id", h.Delete)
	api.Put("/:model/:id/:field", h.UpdateField)
	api.Get("/:model/:id/:relation", h.Related)
	api.Post("/:model/:id/:relation", h.Attach)
	api.Delete("/:model/:id/:relation", h.Detach)
}
