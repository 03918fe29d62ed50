package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nile-shop/nile_shop/internal/deposit"
)

// RegisterDepositRoutes wires deposit initiation and reconciliation endpoints.
func RegisterDepositRoutes(r fiber.Router, h *deposit.Handler) {
	r.Post("/wallet/deposits", h.Initiate)
	r.Post("/wallet/deposits/reconcile", h.Reconcile)
}
