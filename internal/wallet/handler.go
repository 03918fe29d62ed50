package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/nile-shop/nile_shop/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Overview returns the caller's wallet, creating it on first access.
func (h *Handler) Overview(c *fiber.Ctx) error {
	ownerID, _ := c.Locals("user_id").(string)
	if ownerID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	w, err := h.service.Overview(c.UserContext(), ownerID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"id":         w.ID,
		"owner_id":   w.OwnerID,
		"balance":    w.Balance,
		"currency":   w.Currency,
		"created_at": w.CreatedAt,
		"updated_at": w.UpdatedAt,
	})
}

// Transactions lists the caller's newest transactions.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	ownerID, _ := c.Locals("user_id").(string)
	if ownerID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	limit := c.QueryInt("limit", defaultHistoryLimit)
	txs, err := h.service.Recent(c.UserContext(), ownerID, limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]fiber.Map, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionJSON(tx))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out})
}

func transactionJSON(tx ledger.Transaction) fiber.Map {
	m := fiber.Map{
		"id":                tx.ID,
		"kind":              string(tx.Kind),
		"amount":            tx.Amount,
		"currency":          tx.Currency,
		"status":            string(tx.Status),
		"merchant_order_id": tx.MerchantOrderID,
		"description":       tx.Description,
		"created_at":        tx.CreatedAt,
		"updated_at":        tx.UpdatedAt,
	}
	if tx.GatewayReference != "" {
		m["gateway_reference"] = tx.GatewayReference
	}
	if len(tx.Metadata) > 0 {
		m["metadata"] = tx.Metadata
	}
	return m
}
