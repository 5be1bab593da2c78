package billing

import (
	"errors"
	"time"
)

const (
	ProviderStripe      = "stripe"
	ProviderRazorpay    = "razorpay"
	ProviderNOWPayments = "nowpayments"
	ProviderCoinbase    = "coinbase"
)

// Outcome is the provider-neutral result of a webhook event.
type Outcome string

const (
	OutcomePaymentConfirmed      Outcome = "payment_confirmed"
	OutcomePaymentFailed         Outcome = "payment_failed"
	OutcomeSubscriptionCancelled Outcome = "subscription_cancelled"
	OutcomeUnrecognized          Outcome = "unrecognized"
)

const (
	SubscriptionPeriod = 30 * 24 * time.Hour
	TrialPeriod        = 7 * 24 * time.Hour
)

var (
	ErrMissingSignature     = errors.New("missing webhook signature")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrInvalidPayload       = errors.New("invalid webhook payload")
	ErrWebhookNotConfigured = errors.New("webhook secret is not configured")
	ErrUnknownProvider      = errors.New("unknown payment provider")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrInvalidAmount        = errors.New("amount must be a whole number of minor currency units")
	ErrPaymentNotCaptured   = errors.New("payment not captured")
)

// ClassifiedEvent is a webhook event reduced to what reconciliation needs.
// UserID, PlanID and Trial may be empty when the provider carries no metadata;
// they are then taken from the stored transaction.
type ClassifiedEvent struct {
	Provider       string
	EventID        string
	EventType      string
	Outcome        Outcome
	TransactionID  string
	UserID         string
	PlanID         string
	Trial          bool
	ProviderStatus string
	// Retryable marks a failed attempt the customer can retry on the same transaction.
	Retryable      bool
	Amount         string
	Currency       string
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// WebhookDelivery is one inbound webhook request.
// EventID overrides the id found in the payload when the provider sends it as a header.
type WebhookDelivery struct {
	Provider  string
	Payload   []byte
	Signature string
	EventID   string
}

// WebhookResult describes what HandleWebhook did with a delivery.
type WebhookResult struct {
	Event     *ClassifiedEvent
	Duplicate bool
}

// PaymentRequest is the checkout request shared by every provider.
type PaymentRequest struct {
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Currency string  `json:"currency" validate:"omitempty,min=3,max=10"`
	PlanID   string  `json:"planId" validate:"required,max=100"`
	UserID   string  `json:"userId" validate:"required,max=128"`
	Trial    bool    `json:"trial"`
}

// Checkout is the provider response to a payment initiation.
type Checkout struct {
	Provider      string
	TransactionID string
	PaymentURL    string
	ClientSecret  string
	// Amount in the unit the provider reported back (minor units for Razorpay).
	Amount   int64
	Currency string
}

// ReconcileRequest asks a background worker to re-apply a completed transaction to its user.
type ReconcileRequest struct {
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
}

// ArchiveRequest asks a background worker to copy a raw webhook payload to object storage.
type ArchiveRequest struct {
	Provider   string    `json:"provider"`
	EventID    string    `json:"event_id"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}
