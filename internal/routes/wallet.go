package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nile-shop/nile_shop/internal/wallet"
)

// RegisterWalletRoutes wires wallet read endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallet", h.Overview)
	r.Get("/wallet/transactions", h.Transactions)
}
