package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"crud6-backend/internal/engine"
	"crud6-backend/internal/identity"
)

// Middleware returns a Fiber middleware that validates JWT tokens and sets
// the UserContext on the request. With required false a request without an
// Authorization header continues as a guest; a bad token is always rejected.
func Middleware(secret string, required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			if required {
				return engine.UnauthorizedError("Missing auth token")
			}
			return c.Next()
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return engine.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		c.Locals(identity.LocalsKey, &identity.UserContext{
			ID:    claims.Subject,
			Roles: claims.Roles,
		})

		return c.Next()
	}
}

// GetUser extracts the UserContext from a Fiber context.
func GetUser(c *fiber.Ctx) *identity.UserContext {
	user, _ := c.Locals(identity.LocalsKey).(*identity.UserContext)
	return user
}
