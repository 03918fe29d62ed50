package deposit

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/nile-shop/nile_shop/internal/ledger"
)

var validate = validator.New()

// Handler exposes the deposit initiation and reconciliation endpoints.
type Handler struct {
	service    *Service
	reconciler *Reconciler
}

// NewHandler constructs a deposit handler.
func NewHandler(service *Service, reconciler *Reconciler) *Handler {
	return &Handler{service: service, reconciler: reconciler}
}

// Initiate opens a pending deposit and returns signed checkout parameters.
func (h *Handler) Initiate(c *fiber.Ctx) error {
	ownerID, _ := c.Locals("user_id").(string)
	if ownerID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	var req InitiateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	intent, err := h.service.Initiate(c.UserContext(), ownerID, req.Amount, req.Currency)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidAmount) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(IntentResponse{
		TransactionID:     intent.TransactionID,
		MerchantOrderID:   intent.MerchantOrderID,
		Amount:            intent.Amount,
		Currency:          intent.Currency,
		MerchantID:        intent.MerchantID,
		CustomerReference: intent.CustomerReference,
		Hash:              intent.Hash,
	})
}

// Reconcile resolves a deposit's final status. Callable any number of times:
// finalized deposits short-circuit, pending ones report still_pending for the
// client to retry.
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	var req ReconcileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	outcome, err := h.reconciler.Reconcile(c.UserContext(), req.MerchantOrderID)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownOrder):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrGatewayUnavailable), errors.Is(err, ErrLedgerBusy):
		// Transient: surface the pending state with a retryable status code.
		return c.Status(http.StatusServiceUnavailable).JSON(toReconcileResponse(outcome))
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(toReconcileResponse(outcome))
}

func toReconcileResponse(outcome Outcome) ReconcileResponse {
	return ReconcileResponse{
		MerchantOrderID:  outcome.Transaction.MerchantOrderID,
		Status:           string(outcome.Status),
		StillPending:     outcome.StillPending,
		Expired:          outcome.Expired,
		GatewayOutcome:   string(outcome.GatewayOutcome),
		GatewayReference: outcome.Transaction.GatewayReference,
		Amount:           outcome.Transaction.Amount,
		Currency:         outcome.Transaction.Currency,
	}
}
