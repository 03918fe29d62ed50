package purchase

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/nile-shop/nile_shop/internal/ledger"
)

var validate = validator.New()

// Request captures a wallet purchase of a catalog item.
type Request struct {
	ItemID   string          `json:"item_id" validate:"required"`
	ItemName string          `json:"item_name" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"omitempty,iso4217"`
}

// Response reports the completed purchase and the remaining balance.
type Response struct {
	TransactionID   string          `json:"transaction_id"`
	MerchantOrderID string          `json:"merchant_order_id"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Balance         decimal.Decimal `json:"balance"`
}

// Handler exposes the purchase endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a purchase handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Purchase debits the caller's wallet for an item.
func (h *Handler) Purchase(c *fiber.Ctx) error {
	ownerID, _ := c.Locals("user_id").(string)
	if ownerID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	var req Request
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	outcome, err := h.service.Purchase(c.UserContext(), Input{
		OwnerID:  ownerID,
		ItemID:   req.ItemID,
		ItemName: req.ItemName,
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusPaymentRequired, err.Error())
		case errors.Is(err, ledger.ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrBusy):
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(Response{
		TransactionID:   outcome.Transaction.ID,
		MerchantOrderID: outcome.Transaction.MerchantOrderID,
		Status:          string(outcome.Transaction.Status),
		Amount:          outcome.Transaction.Amount,
		Currency:        outcome.Transaction.Currency,
		Balance:         outcome.Balance,
	})
}
