package routes

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/nile-shop/nile_shop/internal/identity"
	"github.com/nile-shop/nile_shop/internal/wallet"
)

// RegisterIdentityRoutes wires identity endpoints and auto-provisions a wallet
// on registration.
func RegisterIdentityRoutes(r fiber.Router, ids *identity.Service, wallets *wallet.Service, logger *slog.Logger) {
	r.Post("/identity/register", func(c *fiber.Ctx) error {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		user, err := ids.Register(c.UserContext(), identity.Credentials{Email: req.Email, Password: req.Password})
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		var walletID string
		if wallets != nil {
			if w, err := wallets.Overview(c.UserContext(), user.ID); err == nil {
				walletID = w.ID
			}
		}
		if logger != nil {
			logger.Info("identity.register completed",
				slog.String("user_id", user.ID),
				slog.String("email", user.Email),
				slog.String("wallet_id", walletID),
			)
		}
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"user_id":   user.ID,
			"email":     user.Email,
			"wallet_id": walletID,
		})
	})
}
