package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/tradorr/tradorr-api/internal/pkg/billing"
)

const webhookTimeout = 15 * time.Second

// webhookReply writes the acknowledgement and error bodies a provider expects.
type webhookReply interface {
	ok(c *fiber.Ctx, duplicate bool) error
	fail(c *fiber.Ctx, status int, code string) error
}

type jsonReply struct{}

func (jsonReply) ok(c *fiber.Ctx, duplicate bool) error {
	resp := fiber.Map{"received": true}
	if duplicate {
		resp["duplicate"] = true
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (jsonReply) fail(c *fiber.Ctx, status int, code string) error {
	return jsonError(c, status, code)
}

// textReply answers NOWPayments IPN calls with plain text.
type textReply struct{}

func (textReply) ok(c *fiber.Ctx, _ bool) error {
	return c.Status(fiber.StatusOK).SendString("OK")
}

func (textReply) fail(c *fiber.Ctx, status int, code string) error {
	return c.Status(status).SendString(code)
}

func (bc *BillingController) handleWebhook(c *fiber.Ctx, provider, eventIDHeader string, reply webhookReply) error {
	if c.Method() != fiber.MethodPost {
		return reply.fail(c, fiber.StatusMethodNotAllowed, "Method not allowed")
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	delivery := billing.WebhookDelivery{
		Provider:  provider,
		Payload:   rawBody,
		Signature: strings.TrimSpace(c.Get(bc.svc.SignatureHeader(provider))),
	}
	if eventIDHeader != "" {
		delivery.EventID = strings.TrimSpace(c.Get(eventIDHeader))
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	result, err := bc.svc.HandleWebhook(ctx, delivery)
	switch {
	case errors.Is(err, billing.ErrMissingSignature), errors.Is(err, billing.ErrInvalidSignature):
		return reply.fail(c, fiber.StatusBadRequest, "invalid_signature")
	case errors.Is(err, billing.ErrInvalidPayload):
		return reply.fail(c, fiber.StatusBadRequest, "invalid_payload")
	case errors.Is(err, billing.ErrWebhookNotConfigured):
		log.Errorf("[API] %s webhook received but no secret is configured", provider)
		return reply.fail(c, fiber.StatusInternalServerError, "webhook_not_configured")
	case err != nil:
		log.Errorf("[API] %s webhook processing failed: %v", provider, err)
		return reply.fail(c, fiber.StatusInternalServerError, "webhook_processing_failed")
	}

	return reply.ok(c, result.Duplicate)
}

// HandleStripeWebhook receives Stripe events.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	return bc.handleWebhook(c, billing.ProviderStripe, "", jsonReply{})
}

// HandleRazorpayWebhook receives Razorpay events.
func (bc *BillingController) HandleRazorpayWebhook(c *fiber.Ctx) error {
	return bc.handleWebhook(c, billing.ProviderRazorpay, "X-Razorpay-Event-Id", jsonReply{})
}

// HandleNOWPaymentsWebhook receives NOWPayments IPN callbacks.
func (bc *BillingController) HandleNOWPaymentsWebhook(c *fiber.Ctx) error {
	return bc.handleWebhook(c, billing.ProviderNOWPayments, "", textReply{})
}

// HandleCoinbaseWebhook receives Coinbase Commerce events.
func (bc *BillingController) HandleCoinbaseWebhook(c *fiber.Ctx) error {
	return bc.handleWebhook(c, billing.ProviderCoinbase, "", jsonReply{})
}
