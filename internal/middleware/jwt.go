package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/nile-shop/nile_shop/internal/auth"
	"github.com/nile-shop/nile_shop/internal/identity"
)

// JWTAuth returns a middleware that validates JWT access tokens and checks token version.
func JWTAuth(tokens *auth.Service, repo identity.Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		sub, ver, err := tokens.ParseAccess(tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		user, err := repo.FindByID(c.UserContext(), sub)
		if err != nil || user.TokenVersion != ver {
			return fiber.NewError(http.StatusUnauthorized, "token invalidated")
		}

		c.Locals("user_id", sub)
		c.Locals("token_version", ver)
		return c.Next()
	}
}
