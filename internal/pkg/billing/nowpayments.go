package billing

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tradorr/tradorr-api/internal/pkg/env"
)

const (
	defaultNOWPaymentsAPIURL = "https://api.nowpayments.io"
	defaultCryptoCurrency    = "USD"
)

// NOWPaymentsWebhook verifies and classifies NOWPayments IPN callbacks.
type NOWPaymentsWebhook struct{}

func (NOWPaymentsWebhook) Provider() string { return ProviderNOWPayments }

func (NOWPaymentsWebhook) SignatureHeader() string { return "X-Nowpayments-Sig" }

// Verify checks HMAC-SHA512 over the raw body first and then over the key-sorted JSON
// form that NOWPayments signs. A mismatch on both always rejects.
func (NOWPaymentsWebhook) Verify(payload []byte, signature, secret string) bool {
	if verifyHexHMAC(payload, signature, secret, sha512.New) {
		return true
	}
	sorted, err := sortedJSON(payload)
	if err != nil {
		return false
	}
	return verifyHexHMAC(sorted, signature, secret, sha512.New)
}

// sortedJSON re-encodes payload with object keys sorted at every level and without HTML escaping.
func sortedJSON(payload []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

type nowPaymentsIPN struct {
	PaymentID     flexibleID  `json:"payment_id"`
	InvoiceID     flexibleID  `json:"invoice_id"`
	PaymentStatus string      `json:"payment_status"`
	PriceAmount   json.Number `json:"price_amount"`
	PriceCurrency string      `json:"price_currency"`
	OrderID       string      `json:"order_id"`
}

// Classify maps payment_status. The IPN carries no plan metadata; order_id holds the user id.
func (NOWPaymentsWebhook) Classify(payload []byte) (*ClassifiedEvent, error) {
	var ipn nowPaymentsIPN
	if err := json.Unmarshal(payload, &ipn); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	status := strings.ToLower(strings.TrimSpace(ipn.PaymentStatus))
	if status == "" {
		return nil, fmt.Errorf("%w: missing payment_status", ErrInvalidPayload)
	}

	txID := string(ipn.InvoiceID)
	if txID == "" {
		txID = string(ipn.PaymentID)
	}
	ev := &ClassifiedEvent{
		Provider:       ProviderNOWPayments,
		EventType:      status,
		Outcome:        OutcomeUnrecognized,
		TransactionID:  txID,
		UserID:         strings.TrimSpace(ipn.OrderID),
		ProviderStatus: status,
		Amount:         ipn.PriceAmount.String(),
		Currency:       strings.ToUpper(ipn.PriceCurrency),
	}

	switch status {
	case "confirmed", "finished":
		ev.Outcome = OutcomePaymentConfirmed
	case "failed", "expired":
		ev.Outcome = OutcomePaymentFailed
	}
	return ev, nil
}

// NOWPaymentsClient creates hosted invoices.
type NOWPaymentsClient struct {
	APIKey      string
	APIURL      string
	CallbackURL string
	FrontendURL string

	HTTPClient *http.Client
}

func NewNOWPaymentsClientFromEnv() *NOWPaymentsClient {
	callback := ""
	if base := strings.TrimRight(env.GetEnv("PUBLIC_API_URL", ""), "/"); base != "" {
		callback = base + "/api/crypto/webhook"
	}
	return &NOWPaymentsClient{
		APIKey:      strings.TrimSpace(env.GetEnv("NOWPAYMENTS_API_KEY", "")),
		APIURL:      strings.TrimSpace(env.GetEnv("NOWPAYMENTS_API_URL", defaultNOWPaymentsAPIURL)),
		CallbackURL: callback,
		FrontendURL: FrontendURLFromEnv(),
		HTTPClient:  newHTTPClient(),
	}
}

// FrontendURLFromEnv returns the public frontend base used for redirect urls.
func FrontendURLFromEnv() string {
	base := env.GetEnv("FRONTEND_URL", "")
	if base == "" {
		base = env.GetEnv("VERCEL_URL", "http://localhost:3000")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return strings.TrimRight(base, "/")
}

func (c *NOWPaymentsClient) Provider() string { return ProviderNOWPayments }

type nowPaymentsInvoice struct {
	ID         flexibleID `json:"id"`
	InvoiceURL string     `json:"invoice_url"`
}

// Initiate creates an invoice priced in major currency units.
func (c *NOWPaymentsClient) Initiate(ctx context.Context, req PaymentRequest) (*Checkout, error) {
	if c.APIKey == "" {
		return nil, errors.New("NOWPAYMENTS_API_KEY is not configured")
	}
	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		currency = defaultCryptoCurrency
	}

	body := map[string]interface{}{
		"price_amount":      req.Amount,
		"price_currency":    strings.ToLower(currency),
		"order_id":          req.UserID,
		"order_description": fmt.Sprintf("Tradorr %s Subscription", req.PlanID),
		"success_url":       c.FrontendURL + "/dashboard",
		"cancel_url":        c.FrontendURL + "/pricing",
	}
	if c.CallbackURL != "" {
		body["ipn_callback_url"] = c.CallbackURL
	}

	resp, status, err := doJSON(ctx, c.HTTPClient, http.MethodPost, strings.TrimRight(c.APIURL, "/")+"/v1/invoice",
		map[string]string{"x-api-key": c.APIKey}, body)
	if err != nil {
		return nil, &VendorError{Provider: ProviderNOWPayments, Message: err.Error(), Err: err}
	}
	if !isSuccess(status) {
		var out struct {
			Message string `json:"message"`
		}
		msg := fmt.Sprintf("request failed with status %d", status)
		if jerr := json.Unmarshal(resp, &out); jerr == nil && out.Message != "" {
			msg = out.Message
		}
		return nil, &VendorError{Provider: ProviderNOWPayments, Message: msg}
	}

	var invoice nowPaymentsInvoice
	if err := json.Unmarshal(resp, &invoice); err != nil {
		return nil, err
	}
	if invoice.ID == "" || invoice.InvoiceURL == "" {
		return nil, &VendorError{Provider: ProviderNOWPayments, Message: "invoice response without id or url"}
	}
	return &Checkout{
		Provider:      ProviderNOWPayments,
		TransactionID: string(invoice.ID),
		PaymentURL:    invoice.InvoiceURL,
		Currency:      strings.ToUpper(currency),
	}, nil
}
