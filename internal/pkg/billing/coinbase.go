package billing

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tradorr/tradorr-api/internal/pkg/env"
)

const (
	defaultCoinbaseAPIURL = "https://api.commerce.coinbase.com"
	coinbaseAPIVersion    = "2018-03-22"
)

// CoinbaseWebhook verifies and classifies Coinbase Commerce events.
type CoinbaseWebhook struct{}

func (CoinbaseWebhook) Provider() string { return ProviderCoinbase }

func (CoinbaseWebhook) SignatureHeader() string { return "X-CC-Webhook-Signature" }

func (CoinbaseWebhook) Verify(payload []byte, signature, secret string) bool {
	return verifyHexHMAC(payload, signature, secret, sha256.New)
}

type coinbaseMoney struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type coinbaseCharge struct {
	ID        string   `json:"id"`
	Code      string   `json:"code"`
	HostedURL string   `json:"hosted_url"`
	Metadata  metadata `json:"metadata"`
	Pricing   struct {
		Local coinbaseMoney `json:"local"`
	} `json:"pricing"`
}

type coinbaseDelivery struct {
	ID    string `json:"id"`
	Event struct {
		ID   string         `json:"id"`
		Type string         `json:"type"`
		Data coinbaseCharge `json:"data"`
	} `json:"event"`
}

func (CoinbaseWebhook) Classify(payload []byte) (*ClassifiedEvent, error) {
	var delivery coinbaseDelivery
	if err := json.Unmarshal(payload, &delivery); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(delivery.Event.Type) == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrInvalidPayload)
	}

	charge := delivery.Event.Data
	ev := &ClassifiedEvent{
		Provider:      ProviderCoinbase,
		EventID:       delivery.Event.ID,
		EventType:     delivery.Event.Type,
		Outcome:       OutcomeUnrecognized,
		TransactionID: charge.ID,
		Amount:        charge.Pricing.Local.Amount,
		Currency:      charge.Pricing.Local.Currency,
	}
	charge.Metadata.apply(ev)

	switch delivery.Event.Type {
	case "charge:confirmed":
		ev.Outcome = OutcomePaymentConfirmed
	case "charge:failed":
		ev.Outcome = OutcomePaymentFailed
	}
	return ev, nil
}

// CoinbaseClient creates Coinbase Commerce charges.
type CoinbaseClient struct {
	APIKey      string
	APIURL      string
	FrontendURL string

	HTTPClient *http.Client
}

func NewCoinbaseClientFromEnv() *CoinbaseClient {
	return &CoinbaseClient{
		APIKey:      strings.TrimSpace(env.GetEnv("COINBASE_COMMERCE_API_KEY", "")),
		APIURL:      strings.TrimSpace(env.GetEnv("COINBASE_COMMERCE_API_URL", defaultCoinbaseAPIURL)),
		FrontendURL: FrontendURLFromEnv(),
		HTTPClient:  newHTTPClient(),
	}
}

func (c *CoinbaseClient) Provider() string { return ProviderCoinbase }

// Initiate creates a fixed price charge in major currency units.
func (c *CoinbaseClient) Initiate(ctx context.Context, req PaymentRequest) (*Checkout, error) {
	if c.APIKey == "" {
		return nil, errors.New("COINBASE_COMMERCE_API_KEY is not configured")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCryptoCurrency
	}

	body := map[string]interface{}{
		"name":         fmt.Sprintf("Tradorr %s Subscription", req.PlanID),
		"description":  fmt.Sprintf("Monthly subscription for %s plan", req.PlanID),
		"pricing_type": "fixed_price",
		"local_price": coinbaseMoney{
			Amount:   formatAmount(req.Amount),
			Currency: currency,
		},
		"metadata":     checkoutMetadata(req),
		"redirect_url": c.FrontendURL + "/dashboard",
		"cancel_url":   c.FrontendURL + "/pricing",
	}
	headers := map[string]string{
		"X-CC-Api-Key": c.APIKey,
		"X-CC-Version": coinbaseAPIVersion,
	}

	resp, status, err := doJSON(ctx, c.HTTPClient, http.MethodPost, strings.TrimRight(c.APIURL, "/")+"/charges", headers, body)
	if err != nil {
		return nil, &VendorError{Provider: ProviderCoinbase, Message: err.Error(), Err: err}
	}

	var out struct {
		Data  coinbaseCharge `json:"data"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	jerr := json.Unmarshal(resp, &out)
	if !isSuccess(status) {
		msg := "Failed to create payment"
		if jerr == nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return nil, &VendorError{Provider: ProviderCoinbase, Message: msg}
	}
	if jerr != nil {
		return nil, jerr
	}
	if out.Data.ID == "" {
		return nil, &VendorError{Provider: ProviderCoinbase, Message: "charge response without id"}
	}
	return &Checkout{
		Provider:      ProviderCoinbase,
		TransactionID: out.Data.ID,
		PaymentURL:    out.Data.HostedURL,
		Currency:      currency,
	}, nil
}
