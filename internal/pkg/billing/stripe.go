package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/tradorr/tradorr-api/internal/pkg/env"
)

const defaultStripeCurrency = "inr"

// StripeWebhook verifies and classifies Stripe events.
type StripeWebhook struct{}

func (StripeWebhook) Provider() string { return ProviderStripe }

func (StripeWebhook) SignatureHeader() string { return "Stripe-Signature" }

// Verify checks the t=...,v1=... header with the SDK, including its timestamp tolerance.
func (StripeWebhook) Verify(payload []byte, signature, secret string) bool {
	if strings.TrimSpace(signature) == "" || secret == "" {
		return false
	}
	return webhook.ValidatePayload(payload, signature, secret) == nil
}

func (StripeWebhook) Classify(payload []byte) (*ClassifiedEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	ev := &ClassifiedEvent{
		Provider:  ProviderStripe,
		EventID:   event.ID,
		EventType: string(event.Type),
		Outcome:   OutcomeUnrecognized,
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := unmarshalEventObject(&event, &pi); err != nil {
			return nil, err
		}
		ev.Outcome = OutcomePaymentConfirmed
		ev.TransactionID = pi.ID
		ev.Amount = strconv.FormatInt(pi.Amount, 10)
		ev.Currency = string(pi.Currency)
		metadata(pi.Metadata).apply(ev)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := unmarshalEventObject(&event, &sub); err != nil {
			return nil, err
		}
		ev.Outcome = OutcomeSubscriptionCancelled
		metadata(sub.Metadata).apply(ev)
	}
	return ev, nil
}

func unmarshalEventObject(event *stripe.Event, out interface{}) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("%w: event %s has no data object", ErrInvalidPayload, event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// StripeClient creates PaymentIntents.
type StripeClient struct {
	SecretKey string
	intents   paymentintent.Client
}

// NewStripeClient uses backend for API calls; nil selects the default Stripe API backend.
func NewStripeClient(secretKey string, backend stripe.Backend) *StripeClient {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &StripeClient{
		SecretKey: strings.TrimSpace(secretKey),
		intents:   paymentintent.Client{B: backend, Key: strings.TrimSpace(secretKey)},
	}
}

func NewStripeClientFromEnv() *StripeClient {
	return NewStripeClient(env.GetEnv("STRIPE_SECRET_KEY", ""), nil)
}

func (c *StripeClient) Provider() string { return ProviderStripe }

// Initiate creates a PaymentIntent. Amount is passed through in minor units.
func (c *StripeClient) Initiate(ctx context.Context, req PaymentRequest) (*Checkout, error) {
	if c.SecretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}
	amount, err := minorUnits(req.Amount)
	if err != nil {
		return nil, err
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultStripeCurrency
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range checkoutMetadata(req) {
		params.AddMetadata(k, v)
	}

	pi, err := c.intents.New(params)
	if err != nil {
		msg := err.Error()
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
			msg = stripeErr.Msg
		}
		return nil, &VendorError{Provider: ProviderStripe, Message: msg, Err: err}
	}

	return &Checkout{
		Provider:      ProviderStripe,
		TransactionID: pi.ID,
		ClientSecret:  pi.ClientSecret,
		Amount:        pi.Amount,
		Currency:      string(pi.Currency),
	}, nil
}
