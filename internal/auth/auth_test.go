package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"crud6-backend/internal/engine"
	"crud6-backend/internal/identity"
)

const secret = "test-secret"

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken("42", []string{"editor"}, secret, 0)
	require.NoError(t, err)

	claims, err := ParseAccessToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, []string{"editor"}, claims.Roles)
	assert.NotEmpty(t, claims.ID)

	_, err = ParseAccessToken(token, "other-secret")
	assert.Error(t, err)

	expired, err := GenerateAccessToken("42", nil, secret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseAccessToken(expired, secret)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret!", hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret!")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("wrong")))
}

func TestMatchCapability(t *testing.T) {
	cases := []struct {
		pattern, capability string
		want                bool
	}{
		{"*", "delete.users", true},
		{"read.users", "read.users", true},
		{"read.users", "read.roles", false},
		{"read.*", "read.roles", true},
		{"read.*", "read", false},
		{"*.users", "update.users", true},
		{"*.users", "update.roles", false},
		{"read", "read.users", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchCapability(tc.pattern, tc.capability), "%s vs %s", tc.pattern, tc.capability)
	}
}

func TestRoleAuthorizer(t *testing.T) {
	a := NewRoleAuthorizer("admin", map[string][]string{
		"editor":  {"read.*", "update.users"},
		GuestRole: {"read.products"},
	})

	admin := &identity.UserContext{ID: "1", Roles: []string{"admin"}}
	editor := &identity.UserContext{ID: "2", Roles: []string{"editor"}}

	assert.True(t, a.Can(admin, "delete.users"))
	assert.True(t, a.Can(editor, "read.roles"))
	assert.True(t, a.Can(editor, "update.users"))
	assert.False(t, a.Can(editor, "delete.users"))
	assert.True(t, a.Can(nil, "read.products"))
	assert.False(t, a.Can(nil, "read.users"))
}

func newApp(required bool) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler(zap.NewNop())})
	app.Use(Middleware(secret, required))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return c.JSON(fiber.Map{"id": nil})
		}
		return c.JSON(fiber.Map{"id": user.ID})
	})
	return app
}

func TestMiddleware(t *testing.T) {
	token, err := GenerateAccessToken("7", []string{"editor"}, secret, 0)
	require.NoError(t, err)

	cases := []struct {
		name     string
		required bool
		header   string
		status   int
	}{
		{"valid token", true, "Bearer " + token, 200},
		{"missing token required", true, "", 401},
		{"missing token optional", false, "", 200},
		{"bad scheme", false, "Basic abc", 401},
		{"bad token", false, "Bearer nope", 401},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/whoami", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := newApp(tc.required).Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
