package billing

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/tradorr/tradorr-api/internal/pkg/env"
)

const (
	defaultRazorpayAPIURL   = "https://api.razorpay.com"
	defaultRazorpayCurrency = "INR"

	RazorpayPaymentCaptured = "captured"
	// RazorpayAttemptFailed is stored on an order whose latest payment attempt failed.
	// The order stays open because checkout lets the customer retry on it.
	RazorpayAttemptFailed   = "attempt_failed"
)

// RazorpayWebhook verifies and classifies Razorpay events.
type RazorpayWebhook struct{}

func (RazorpayWebhook) Provider() string { return ProviderRazorpay }

func (RazorpayWebhook) SignatureHeader() string { return "X-Razorpay-Signature" }

func (RazorpayWebhook) Verify(payload []byte, signature, secret string) bool {
	return verifyHexHMAC(payload, signature, secret, sha256.New)
}

// RazorpayPayment is the payment entity shared by the webhook payload and the payments API.
type RazorpayPayment struct {
	ID       string   `json:"id"`
	OrderID  string   `json:"order_id"`
	Status   string   `json:"status"`
	Amount   int64    `json:"amount"`
	Currency string   `json:"currency"`
	Method   string   `json:"method"`
	Email    string   `json:"email"`
	Notes    metadata `json:"notes"`
}

type razorpayEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity RazorpayPayment `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func (RazorpayWebhook) Classify(payload []byte) (*ClassifiedEvent, error) {
	var event razorpayEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(event.Event) == "" {
		return nil, fmt.Errorf("%w: missing event", ErrInvalidPayload)
	}

	entity := event.Payload.Payment.Entity
	ev := &ClassifiedEvent{
		Provider:      ProviderRazorpay,
		EventType:     event.Event,
		Outcome:       OutcomeUnrecognized,
		TransactionID: razorpayTransactionID(entity),
		Amount:        fmt.Sprintf("%d", entity.Amount),
		Currency:      entity.Currency,
	}
	entity.Notes.apply(ev)

	switch event.Event {
	case "payment.captured":
		ev.Outcome = OutcomePaymentConfirmed
	case "payment.failed":
		ev.Outcome = OutcomePaymentFailed
		if entity.OrderID != "" {
			ev.Retryable = true
			ev.ProviderStatus = RazorpayAttemptFailed
		}
	}
	return ev, nil
}

// razorpayTransactionID keys transactions by order id, falling back to the payment id
// for payments made without an order.
func razorpayTransactionID(p RazorpayPayment) string {
	if p.OrderID != "" {
		return p.OrderID
	}
	return p.ID
}

// RazorpayClient talks to the Razorpay orders and payments REST API.
type RazorpayClient struct {
	KeyID     string
	KeySecret string
	APIURL    string

	HTTPClient *http.Client
}

func NewRazorpayClientFromEnv() *RazorpayClient {
	return &RazorpayClient{
		KeyID:      strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_ID", "")),
		KeySecret:  strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_SECRET", "")),
		APIURL:     strings.TrimSpace(env.GetEnv("RAZORPAY_API_URL", defaultRazorpayAPIURL)),
		HTTPClient: newHTTPClient(),
	}
}

func (c *RazorpayClient) Provider() string { return ProviderRazorpay }

func (c *RazorpayClient) configured() error {
	if c.KeyID == "" || c.KeySecret == "" {
		return errors.New("RAZORPAY_KEY_ID/RAZORPAY_KEY_SECRET are not configured")
	}
	return nil
}

func (c *RazorpayClient) authHeaders() map[string]string {
	creds := base64.StdEncoding.EncodeToString([]byte(c.KeyID + ":" + c.KeySecret))
	return map[string]string{"Authorization": "Basic " + creds}
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Initiate creates an order. Amount is passed through in paise.
func (c *RazorpayClient) Initiate(ctx context.Context, req PaymentRequest) (*Checkout, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}
	amount, err := minorUnits(req.Amount)
	if err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultRazorpayCurrency
	}
	body := map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  newReceipt(),
		"notes":    checkoutMetadata(req),
	}
	resp, status, err := doJSON(ctx, c.HTTPClient, http.MethodPost, strings.TrimRight(c.APIURL, "/")+"/v1/orders", c.authHeaders(), body)
	if err != nil {
		return nil, &VendorError{Provider: ProviderRazorpay, Message: err.Error(), Err: err}
	}
	if !isSuccess(status) {
		return nil, razorpayError(status, resp)
	}

	var order razorpayOrder
	if err := json.Unmarshal(resp, &order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, &VendorError{Provider: ProviderRazorpay, Message: "order response without id"}
	}
	return &Checkout{
		Provider:      ProviderRazorpay,
		TransactionID: order.ID,
		Amount:        order.Amount,
		Currency:      order.Currency,
	}, nil
}

// FetchPayment returns the payment entity and its raw JSON.
func (c *RazorpayClient) FetchPayment(ctx context.Context, paymentID string) (*RazorpayPayment, json.RawMessage, error) {
	if err := c.configured(); err != nil {
		return nil, nil, err
	}
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return nil, nil, errors.New("payment id is required")
	}

	endpoint := strings.TrimRight(c.APIURL, "/") + "/v1/payments/" + url.PathEscape(id)
	resp, status, err := doJSON(ctx, c.HTTPClient, http.MethodGet, endpoint, c.authHeaders(), nil)
	if err != nil {
		return nil, nil, &VendorError{Provider: ProviderRazorpay, Message: err.Error(), Err: err}
	}
	if !isSuccess(status) {
		return nil, nil, razorpayError(status, resp)
	}

	var payment RazorpayPayment
	if err := json.Unmarshal(resp, &payment); err != nil {
		return nil, nil, err
	}
	return &payment, json.RawMessage(resp), nil
}

// VerifyPaymentSignature checks the checkout callback signature over "order_id|payment_id".
func (c *RazorpayClient) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return verifyHexHMAC([]byte(orderID+"|"+paymentID), signature, c.KeySecret, sha256.New)
}

// newReceipt returns a unique receipt within Razorpay's 40 character limit.
func newReceipt() string {
	return "receipt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func razorpayError(status int, body []byte) error {
	var out struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	msg := fmt.Sprintf("request failed with status %d", status)
	if err := json.Unmarshal(body, &out); err == nil && out.Error.Description != "" {
		msg = out.Error.Description
	}
	return &VendorError{Provider: ProviderRazorpay, Message: msg}
}

// RazorpayCheckout is the handler callback the browser posts after Razorpay checkout.
type RazorpayCheckout struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
	UserID    string `json:"userId"`
	PlanID    string `json:"planId"`
}

// ConfirmRazorpayCheckout verifies the checkout signature, re-reads the payment from
// Razorpay and applies it like a payment.captured webhook. The order notes written at
// order creation win over the user and plan posted by the browser.
func (s *Service) ConfirmRazorpayCheckout(ctx context.Context, client *RazorpayClient, in RazorpayCheckout) (json.RawMessage, error) {
	if !client.VerifyPaymentSignature(in.OrderID, in.PaymentID, in.Signature) {
		return nil, ErrInvalidSignature
	}

	payment, raw, err := client.FetchPayment(ctx, in.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != RazorpayPaymentCaptured {
		return raw, ErrPaymentNotCaptured
	}

	ev := &ClassifiedEvent{
		Provider:      ProviderRazorpay,
		EventID:       "checkout:" + payment.ID,
		EventType:     "checkout.verified",
		Outcome:       OutcomePaymentConfirmed,
		TransactionID: razorpayTransactionID(*payment),
		Amount:        fmt.Sprintf("%d", payment.Amount),
		Currency:      payment.Currency,
	}
	payment.Notes.apply(ev)
	if ev.UserID == "" {
		ev.UserID = strings.TrimSpace(in.UserID)
	}
	if ev.PlanID == "" {
		ev.PlanID = strings.TrimSpace(in.PlanID)
	}
	if err := s.ApplyOutcome(ctx, ev, datatypes.JSON(raw)); err != nil {
		return raw, err
	}
	return raw, nil
}
