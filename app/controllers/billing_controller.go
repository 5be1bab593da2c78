package controllers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/tradorr/tradorr-api/app/models"
	"github.com/tradorr/tradorr-api/internal/pkg/billing"
)

const transactionHistoryLimit = 20

// BillingController serves payment initiation, webhooks and payment status.
type BillingController struct {
	svc      *billing.Service
	stripe   billing.PaymentInitiator
	razorpay *billing.RazorpayClient
	crypto   billing.PaymentInitiator
}

func NewBillingController(svc *billing.Service, stripe billing.PaymentInitiator, razorpay *billing.RazorpayClient, crypto billing.PaymentInitiator) *BillingController {
	return &BillingController{
		svc:      svc,
		stripe:   stripe,
		razorpay: razorpay,
		crypto:   crypto,
	}
}

func (bc *BillingController) initiate(c *fiber.Ctx, initiator billing.PaymentInitiator) (*billing.Checkout, bool, error) {
	var req billing.PaymentRequest
	if ok, err := parseAndValidate(c, &req); !ok {
		return nil, false, err
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	checkout, err := bc.svc.InitiatePayment(ctx, initiator, req)
	if err != nil {
		return nil, false, initiationError(c, err)
	}
	return checkout, true, nil
}

// HandleCryptoCreatePayment creates a NOWPayments invoice or a Coinbase charge.
func (bc *BillingController) HandleCryptoCreatePayment(c *fiber.Ctx) error {
	checkout, ok, err := bc.initiate(c, bc.crypto)
	if !ok {
		return err
	}

	resp := fiber.Map{"paymentUrl": checkout.PaymentURL}
	if checkout.Provider == billing.ProviderCoinbase {
		resp["chargeId"] = checkout.TransactionID
	} else {
		resp["invoiceId"] = checkout.TransactionID
	}
	return c.JSON(resp)
}

// HandleRazorpayCreateOrder creates an order; amount is in paise.
func (bc *BillingController) HandleRazorpayCreateOrder(c *fiber.Ctx) error {
	checkout, ok, err := bc.initiate(c, bc.razorpay)
	if !ok {
		return err
	}
	return c.JSON(fiber.Map{
		"orderId":  checkout.TransactionID,
		"amount":   checkout.Amount,
		"currency": checkout.Currency,
	})
}

// HandleStripeCreatePaymentIntent creates a PaymentIntent and returns its client secret.
func (bc *BillingController) HandleStripeCreatePaymentIntent(c *fiber.Ctx) error {
	checkout, ok, err := bc.initiate(c, bc.stripe)
	if !ok {
		return err
	}
	return c.JSON(fiber.Map{"clientSecret": checkout.ClientSecret})
}

// HandleRazorpayVerifyPayment confirms a checkout from the browser callback.
func (bc *BillingController) HandleRazorpayVerifyPayment(c *fiber.Ctx) error {
	var in billing.RazorpayCheckout
	if err := c.BodyParser(&in); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(in.Signature) == "" {
		return jsonError(c, fiber.StatusBadRequest, "Invalid signature")
	}
	if err := validate.Struct(in); err != nil {
		return jsonError(c, fiber.StatusBadRequest, validationMessage(err))
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	payment, err := bc.svc.ConfirmRazorpayCheckout(ctx, bc.razorpay, in)
	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		return jsonError(c, fiber.StatusBadRequest, "Invalid signature")
	case errors.Is(err, billing.ErrPaymentNotCaptured):
		return jsonError(c, fiber.StatusBadRequest, "Payment not captured")
	case err != nil:
		return initiationError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "payment": payment})
}

// HandleCryptoPaymentStatus reports the state of the user's latest payment.
func (bc *BillingController) HandleCryptoPaymentStatus(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))
	if userID == "" {
		return jsonError(c, fiber.StatusBadRequest, "userId is required")
	}

	tx, err := bc.svc.LatestTransaction(c.UserContext(), userID)
	if errors.Is(err, billing.ErrTransactionNotFound) {
		return c.JSON(fiber.Map{"status": "no_transaction"})
	}
	if err != nil {
		log.Errorf("[API] payment status lookup for %s failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load payment status")
	}

	if tx.Status == models.TRANSACTION_COMPLETED {
		return c.JSON(fiber.Map{"status": tx.Status, "plan": tx.PlanID})
	}
	return c.JSON(fiber.Map{"status": tx.Status})
}

// HandleTransactions lists the newest transactions of a user.
func (bc *BillingController) HandleTransactions(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))
	if userID == "" {
		return jsonError(c, fiber.StatusBadRequest, "userId is required")
	}

	txs, err := bc.svc.Transactions(c.UserContext(), userID, transactionHistoryLimit)
	if err != nil {
		log.Errorf("[API] transaction list for %s failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load transactions")
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	return c.JSON(fiber.Map{"transactions": txs})
}
