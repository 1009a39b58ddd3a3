package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/AssetVault/app/controllers"
	"github.com/ManuelReschke/AssetVault/app/repository"
	"github.com/ManuelReschke/AssetVault/internal/pkg/middleware"
	"github.com/ManuelReschke/AssetVault/internal/pkg/usercontext"
)

// Dependencies are the handlers and stores the API routes are built from.
type Dependencies struct {
	Accounts  repository.AccountRepository
	Downloads *controllers.DownloadController
	Billing   *controllers.BillingController

	// LimiterStorage backs the per-account rate limiter. Nil keeps counters in memory.
	LimiterStorage fiber.Storage
	RateLimitMax   int
	RateLimitTTL   time.Duration
}

type ApiRouter struct {
	deps Dependencies
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	if deps.RateLimitMax <= 0 {
		deps.RateLimitMax = 60
	}
	if deps.RateLimitTTL <= 0 {
		deps.RateLimitTTL = time.Minute
	}
	return &ApiRouter{deps: deps}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	v1.Get("/ping", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{"ping": "pong"})
	})
	v1.Get("/plans", h.deps.Billing.HandleListPlans)
	v1.Post("/webhooks/mercadopago", h.deps.Billing.HandleMercadoPagoWebhook)

	authed := v1.Group("", middleware.APIKeyAuthMiddleware(h.deps.Accounts), h.accountLimiter())
	authed.Get("/usage", h.deps.Downloads.HandleUsage)
	authed.Post("/downloads/:productId", h.deps.Downloads.HandleDownload)
	authed.Post("/checkout", h.deps.Billing.HandleCheckout)
}

// accountLimiter throttles authenticated calls per account.
func (h ApiRouter) accountLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        h.deps.RateLimitMax,
		Expiration: h.deps.RateLimitTTL,
		Storage:    h.deps.LimiterStorage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "account:" + strconv.FormatUint(uint64(usercontext.GetAccountID(c)), 10)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too_many_requests", "message": "Rate limit exceeded"})
		},
	})
}
