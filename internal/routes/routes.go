package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/nile-shop/nile_shop/internal/auth"
	"github.com/nile-shop/nile_shop/internal/config"
	"github.com/nile-shop/nile_shop/internal/deposit"
	"github.com/nile-shop/nile_shop/internal/gateway"
	"github.com/nile-shop/nile_shop/internal/identity"
	"github.com/nile-shop/nile_shop/internal/ledger"
	"github.com/nile-shop/nile_shop/internal/middleware"
	"github.com/nile-shop/nile_shop/internal/notification"
	"github.com/nile-shop/nile_shop/internal/observability"
	"github.com/nile-shop/nile_shop/internal/purchase"
	"github.com/nile-shop/nile_shop/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDev() {
		// Plain text access log for local runs: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	} else {
		app.Use(middleware.Audit(d.Logger))
	}
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health and metrics
	RegisterHealthRoutes(app, d)
	registry := prometheus.NewRegistry()
	metrics := observability.New(registry)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Storage
	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
	} else {
		store = ledger.NewInMemory()
	}

	// Gateway client; local runs without credentials fall back to a stub that
	// approves every order.
	var verifier gateway.Verifier
	if d.Cfg.Gateway.BaseURL != "" {
		verifier = gateway.NewClient(d.Cfg.Gateway.BaseURL, d.Cfg.Gateway.APIKey, d.Cfg.Gateway.Timeout, d.Logger)
	} else {
		verifier = gateway.StaticVerifier{Outcome: gateway.OutcomeSuccess}
	}
	signer := gateway.NewSigner(d.Cfg.Gateway.MerchantID, d.Cfg.Gateway.CustomerReference, d.Cfg.Gateway.PaymentKey)

	// Services and handlers
	walletSvc := wallet.NewService(store, d.Cfg.DefaultCurrency)
	notifier := notification.NewLoggerNotifier(d.Logger)
	depositSvc := deposit.NewService(store, signer, metrics, d.Logger, d.Cfg.DefaultCurrency)
	reconciler := deposit.NewReconciler(store, verifier, notifier, metrics, d.Logger, d.Cfg.ConflictRetries, d.Cfg.DepositExpiry)
	purchaseSvc := purchase.NewService(store, notifier, metrics, d.Logger, d.Cfg.DefaultCurrency, d.Cfg.ConflictRetries)

	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}
	identitySvc := identity.NewService(identityRepo)
	authSvc := auth.NewService(d.Cfg, identityRepo)
	authHandler := auth.NewHandler(identitySvc, authSvc, walletSvc)

	depositHandler := deposit.NewHandler(depositSvc, reconciler)
	purchaseHandler := purchase.NewHandler(purchaseSvc)
	walletHandler := wallet.NewHandler(walletSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterIdentityRoutes(api, identitySvc, walletSvc, d.Logger)
	rateLimiter := middleware.LoginRateLimit(d.Cache, 5)
	RegisterAuthRoutes(api, authHandler, rateLimiter)

	// Protected routes
	jwtmw := middleware.JWTAuth(authSvc, identityRepo)
	protected := api.Group("", jwtmw)
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/me", func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		if uid == "" {
			return c.SendStatus(http.StatusUnauthorized)
		}
		user, err := identityRepo.FindByID(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}
		return c.JSON(fiber.Map{
			"user_id":    user.ID,
			"email":      user.Email,
			"created_at": user.CreatedAt,
			"last_login": user.LastLogin,
		})
	})
	RegisterWalletRoutes(protected, walletHandler)
	RegisterDepositRoutes(protected, depositHandler)
	RegisterPurchaseRoutes(protected, purchaseHandler)

	return nil
}
