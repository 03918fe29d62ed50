package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nile-shop/nile_shop/internal/auth"
)

// RegisterAuthRoutes wires the public authentication endpoints. Logout needs
// the caller's identity, so it is registered on the protected group instead.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
	group.Post("/refresh", h.Refresh)
}
