package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/tradorr/tradorr-api/app/controllers"
	"github.com/tradorr/tradorr-api/internal/pkg/env"
	"github.com/tradorr/tradorr-api/internal/pkg/middleware"
)

type ApiRouter struct {
	limiterStorage fiber.Storage
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", cors.New(cors.Config{
		AllowOrigins: env.GetEnv("CORS_ALLOW_ORIGINS", "*"),
		AllowMethods: "GET,POST,PATCH,OPTIONS",
	}), limiter.New(limiter.Config{
		Max:        env.GetEnvInt("API_RATE_LIMIT", 60),
		Expiration: time.Minute,
		Storage:    h.limiterStorage,
		// webhooks are never throttled
		Next: isWebhook,
	}))

	// Crypto (NOWPayments or Coinbase Commerce)
	api.Post("/crypto/create-payment", controllers.HandleCryptoCreatePayment)
	api.Get("/crypto/payment-status/:userId", controllers.HandleCryptoPaymentStatus)
	api.All("/crypto/webhook", controllers.HandleNOWPaymentsWebhook)
	api.All("/coinbase/webhook", controllers.HandleCoinbaseWebhook)

	// Razorpay
	api.Post("/razorpay/create-order", controllers.HandleRazorpayCreateOrder)
	api.Post("/razorpay/verify-payment", controllers.HandleRazorpayVerifyPayment)
	api.All("/razorpay/webhook", controllers.HandleRazorpayWebhook)

	// Stripe
	api.Post("/stripe/create-payment-intent", controllers.HandleStripeCreatePaymentIntent)
	api.All("/stripe/webhook", controllers.HandleStripeWebhook)

	api.Get("/transactions/:userId", controllers.HandleTransactions)

	api.Get("/users/:userId/subscription", controllers.HandleUserSubscription)
	api.Post("/users/:userId/analyzer-usage", controllers.HandleAnalyzerUsage)

	admin := api.Group("/admin", middleware.RequireAdmin())
	admin.Get("/users", controllers.HandleAdminUsers)
	admin.Patch("/users/:userId/subscription", controllers.HandleAdminUserSubscription)
}

func isWebhook(c *fiber.Ctx) bool {
	return strings.HasSuffix(c.Path(), "/webhook")
}

// NewApiRouter rate limits /api with the given storage; nil keeps counters in memory.
func NewApiRouter(limiterStorage fiber.Storage) *ApiRouter {
	return &ApiRouter{limiterStorage: limiterStorage}
}
