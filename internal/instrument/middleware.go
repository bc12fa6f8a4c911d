package instrument

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"crud6-backend/internal/identity"
)

// Middleware returns a Fiber middleware that sets up tracing for each request.
// It generates (or propagates) a trace ID, creates a root HTTP span, injects
// the instrumenter into the request context for downstream handlers and
// writes one log line per request. metrics may be nil.
func Middleware(inst Instrumenter, metrics *Metrics, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		traceID := c.Get("X-Trace-ID")
		if traceID == "" {
			traceID = newUUID()
		}

		ctx := WithInstrumenter(WithTraceID(c.UserContext(), traceID), inst)
		ctx, span := inst.StartSpan(ctx, "http", "request")
		span.SetMetadata("method", c.Method())
		span.SetMetadata("path", c.Path())
		c.SetUserContext(ctx)
		c.Set("X-Trace-ID", traceID)

		err := c.Next()
		if err != nil {
			// let the app error handler write the status before it is read
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("trace_id", traceID),
		}
		if user, ok := c.Locals(identity.LocalsKey).(*identity.UserContext); ok && user != nil {
			span.SetMetadata("user_id", user.ID)
			fields = append(fields, zap.String("user_id", user.ID))
		}
		span.SetMetadata("status_code", status)
		if status >= 400 {
			span.SetStatus("error")
		} else {
			span.SetStatus("ok")
		}
		span.End()

		metrics.observeRequest(c.Method(), c.Route().Path, status, time.Since(start))
		logger.Info("request", fields...)
		return nil
	}
}
