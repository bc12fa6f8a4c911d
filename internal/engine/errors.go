package engine

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"crud6-backend/internal/model"
	"crud6-backend/internal/relation"
	"crud6-backend/internal/schema"
	"crud6-backend/internal/store"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func UnknownModelError(name string) *AppError {
	return NewAppError("UNKNOWN_MODEL", fiber.StatusNotFound, fmt.Sprintf("Unknown model: %s", name))
}

func SchemaInvalidError(name string) *AppError {
	return NewAppError("SCHEMA_INVALID", fiber.StatusInternalServerError, fmt.Sprintf("Schema for %s is invalid", name))
}

func RelationshipConfigError(msg string) *AppError {
	return NewAppError("RELATIONSHIP_CONFIG", fiber.StatusInternalServerError, msg)
}

func NotFoundError(model, id string) *AppError {
	return NewAppError("NOT_FOUND", fiber.StatusNotFound, fmt.Sprintf("%s with id %s not found", model, id))
}

func RelationNotFoundError(model, relation string) *AppError {
	return NewAppError("RELATION_NOT_FOUND", fiber.StatusNotFound, fmt.Sprintf("%s has no relation %s", model, relation))
}

func ActionNotFoundError(model, key string) *AppError {
	return NewAppError("ACTION_NOT_FOUND", fiber.StatusNotFound, fmt.Sprintf("%s has no action %s", model, key))
}

func ActionUnavailableError(key string) *AppError {
	return NewAppError("ACTION_UNAVAILABLE", fiber.StatusConflict, fmt.Sprintf("Action %s is not available for this record", key))
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  fiber.StatusUnprocessableEntity,
		Message: "Validation failed",
		Details: details,
	}
}

func UnauthorizedError(msg string) *AppError {
	return NewAppError("UNAUTHORIZED", fiber.StatusUnauthorized, msg)
}

func ForbiddenError(msg string) *AppError {
	return NewAppError("FORBIDDEN", fiber.StatusForbidden, msg)
}

func ConflictError(msg string) *AppError {
	return NewAppError("CONFLICT", fiber.StatusConflict, msg)
}

func InvalidPayloadError(msg string) *AppError {
	return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, msg)
}

func UnknownFieldError(msg string) *AppError {
	return NewAppError("UNKNOWN_FIELD", fiber.StatusBadRequest, msg)
}

func UnknownConnectionError(name string) *AppError {
	return NewAppError("UNKNOWN_CONNECTION", fiber.StatusBadRequest, fmt.Sprintf("Unknown connection: %s", name))
}

// AsAppError translates an error from the lower layers into the response
// envelope. ok is false for errors with no client-facing meaning.
func AsAppError(err error) (appErr *AppError, ok bool) {
	if errors.As(err, &appErr) {
		return appErr, true
	}
	switch {
	case errors.Is(err, schema.ErrSchemaNotFound):
		return NewAppError("UNKNOWN_MODEL", fiber.StatusNotFound, err.Error()), true
	case errors.Is(err, schema.ErrSchemaInvalid), errors.Is(err, model.ErrIncompleteSchema), errors.Is(err, model.ErrInvalidIdentifier):
		return NewAppError("SCHEMA_INVALID", fiber.StatusInternalServerError, err.Error()), true
	case errors.Is(err, relation.ErrInvalidConfiguration):
		return RelationshipConfigError(err.Error()), true
	case errors.Is(err, relation.ErrUnsupported):
		return NewAppError("RELATIONSHIP_CONFIG", fiber.StatusBadRequest, err.Error()), true
	case errors.Is(err, store.ErrUnknownConnection):
		return NewAppError("UNKNOWN_CONNECTION", fiber.StatusBadRequest, err.Error()), true
	case errors.Is(err, store.ErrUniqueViolation):
		return ConflictError("A record with this value already exists"), true
	case errors.Is(err, model.ErrCast):
		return InvalidPayloadError(err.Error()), true
	}
	return nil, false
}

// ErrorHandler is the fiber error handler: known errors get their envelope,
// everything else is logged and reported as INTERNAL_ERROR.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if appErr, ok := AsAppError(err); ok {
			if appErr.Status >= fiber.StatusInternalServerError {
				logger.Error("request failed", zap.String("path", c.Path()), zap.String("code", appErr.Code), zap.Error(err))
			}
			return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{Error: NewAppError("HTTP_ERROR", fiberErr.Code, fiberErr.Message)})
		}

		logger.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: &AppError{
				Code:    "INTERNAL_ERROR",
				Message: "Internal server error",
			},
		})
	}
}
