package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tradorr/tradorr-api/app/repository"
	"github.com/tradorr/tradorr-api/internal/pkg/billing"
	"github.com/tradorr/tradorr-api/internal/pkg/env"
	"github.com/tradorr/tradorr-api/internal/pkg/metrics/counter"
)

// Global controller instances
var (
	billingController *BillingController
	userController    *UserController
	adminController   *AdminController
)

// InitializeControllers wires the global controllers to the billing service and repositories
func InitializeControllers(svc *billing.Service, usage *counter.AnalyzerUsage) {
	repos := repository.GetGlobalRepositories()
	billingController = NewBillingController(
		svc,
		billing.NewStripeClientFromEnv(),
		billing.NewRazorpayClientFromEnv(),
		CryptoInitiatorFromEnv(),
	)
	userController = NewUserController(repos, usage)
	adminController = NewAdminController(repos)
}

// CryptoInitiatorFromEnv picks the crypto checkout provider from CRYPTO_PROVIDER.
func CryptoInitiatorFromEnv() billing.PaymentInitiator {
	if env.GetEnv("CRYPTO_PROVIDER", billing.ProviderNOWPayments) == billing.ProviderCoinbase {
		return billing.NewCoinbaseClientFromEnv()
	}
	return billing.NewNOWPaymentsClientFromEnv()
}

// SetControllers replaces the global controllers, used by router tests
func SetControllers(bc *BillingController, uc *UserController, ac *AdminController) {
	billingController = bc
	userController = uc
	adminController = ac
}

func GetBillingController() *BillingController {
	if billingController == nil {
		panic("controllers not initialized. Call InitializeControllers() first")
	}
	return billingController
}

func GetUserController() *UserController {
	if userController == nil {
		panic("controllers not initialized. Call InitializeControllers() first")
	}
	return userController
}

func GetAdminController() *AdminController {
	if adminController == nil {
		adminController = NewAdminController(repository.GetGlobalRepositories())
	}
	return adminController
}

// Adapter functions to maintain compatibility with the router

func HandleCryptoCreatePayment(c *fiber.Ctx) error {
	return GetBillingController().HandleCryptoCreatePayment(c)
}

func HandleCryptoPaymentStatus(c *fiber.Ctx) error {
	return GetBillingController().HandleCryptoPaymentStatus(c)
}

func HandleNOWPaymentsWebhook(c *fiber.Ctx) error {
	return GetBillingController().HandleNOWPaymentsWebhook(c)
}

func HandleCoinbaseWebhook(c *fiber.Ctx) error {
	return GetBillingController().HandleCoinbaseWebhook(c)
}

func HandleRazorpayCreateOrder(c *fiber.Ctx) error {
	return GetBillingController().HandleRazorpayCreateOrder(c)
}

func HandleRazorpayVerifyPayment(c *fiber.Ctx) error {
	return GetBillingController().HandleRazorpayVerifyPayment(c)
}

func HandleRazorpayWebhook(c *fiber.Ctx) error {
	return GetBillingController().HandleRazorpayWebhook(c)
}

func HandleStripeCreatePaymentIntent(c *fiber.Ctx) error {
	return GetBillingController().HandleStripeCreatePaymentIntent(c)
}

func HandleStripeWebhook(c *fiber.Ctx) error {
	return GetBillingController().HandleStripeWebhook(c)
}

func HandleTransactions(c *fiber.Ctx) error {
	return GetBillingController().HandleTransactions(c)
}

func HandleUserSubscription(c *fiber.Ctx) error {
	return GetUserController().HandleSubscription(c)
}

func HandleAnalyzerUsage(c *fiber.Ctx) error {
	return GetUserController().HandleAnalyzerUsage(c)
}

// HandleAdminUsers - Adapter for user management
func HandleAdminUsers(c *fiber.Ctx) error {
	return GetAdminController().HandleUsers(c)
}

// HandleAdminUserSubscription - Adapter for the subscription toggle
func HandleAdminUserSubscription(c *fiber.Ctx) error {
	return GetAdminController().HandleUserSubscriptionUpdate(c)
}
