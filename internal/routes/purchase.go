package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nile-shop/nile_shop/internal/purchase"
)

// RegisterPurchaseRoutes wires the wallet purchase endpoint.
func RegisterPurchaseRoutes(r fiber.Router, h *purchase.Handler) {
	r.Post("/purchases", h.Purchase)
}
