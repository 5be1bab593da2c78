package billing

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

var traderRequest = PaymentRequest{Amount: 29, Currency: "USD", PlanID: "trader", UserID: "u1", Trial: true}

func TestNOWPaymentsInitiate(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/invoice", r.URL.Path)
		assert.Equal(t, "np-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"4522625843","order_id":"u1","invoice_url":"https://nowpayments.io/payment/?iid=4522625843"}`)
	}))
	defer srv.Close()

	c := &NOWPaymentsClient{APIKey: "np-key", APIURL: srv.URL, CallbackURL: "https://api.example/api/crypto/webhook", FrontendURL: "https://app.example", HTTPClient: srv.Client()}
	checkout, err := c.Initiate(context.Background(), traderRequest)
	require.NoError(t, err)
	assert.Equal(t, "4522625843", checkout.TransactionID)
	assert.Equal(t, "https://nowpayments.io/payment/?iid=4522625843", checkout.PaymentURL)

	assert.Equal(t, float64(29), got["price_amount"])
	assert.Equal(t, "usd", got["price_currency"])
	assert.Equal(t, "u1", got["order_id"])
	assert.Equal(t, "https://api.example/api/crypto/webhook", got["ipn_callback_url"])
	assert.Equal(t, "https://app.example/dashboard", got["success_url"])
}

func TestNOWPaymentsInitiateVendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"status":false,"statusCode":400,"code":"INVALID_REQUEST_PARAMS","message":"price_amount must be larger"}`)
	}))
	defer srv.Close()

	c := &NOWPaymentsClient{APIKey: "np-key", APIURL: srv.URL, HTTPClient: srv.Client()}
	_, err := c.Initiate(context.Background(), traderRequest)
	var ve *VendorError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "price_amount must be larger", ve.Message)

	_, err = (&NOWPaymentsClient{}).Initiate(context.Background(), traderRequest)
	assert.Error(t, err)
}

func TestCoinbaseInitiate(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/charges", r.URL.Path)
		assert.Equal(t, "cb-key", r.Header.Get("X-CC-Api-Key"))
		assert.Equal(t, coinbaseAPIVersion, r.Header.Get("X-CC-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"data":{"id":"charge_1","code":"ABCD","hosted_url":"https://commerce.coinbase.com/charges/ABCD"}}`)
	}))
	defer srv.Close()

	c := &CoinbaseClient{APIKey: "cb-key", APIURL: srv.URL, FrontendURL: "https://app.example", HTTPClient: srv.Client()}
	checkout, err := c.Initiate(context.Background(), traderRequest)
	require.NoError(t, err)
	assert.Equal(t, "charge_1", checkout.TransactionID)
	assert.Equal(t, "https://commerce.coinbase.com/charges/ABCD", checkout.PaymentURL)

	assert.Equal(t, "fixed_price", got["pricing_type"])
	assert.Equal(t, map[string]interface{}{"amount": "29", "currency": "USD"}, got["local_price"])
	assert.Equal(t, map[string]interface{}{"planId": "trader", "userId": "u1", "trial": "true"}, got["metadata"])
	assert.Equal(t, "https://app.example/pricing", got["cancel_url"])
}

func TestCoinbaseInitiateVendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"type":"authorization_error","message":"No such API key."}}`)
	}))
	defer srv.Close()

	c := &CoinbaseClient{APIKey: "bad", APIURL: srv.URL, HTTPClient: srv.Client()}
	_, err := c.Initiate(context.Background(), traderRequest)
	var ve *VendorError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "No such API key.", ve.Message)
}

func TestRazorpayInitiateAndFetch(t *testing.T) {
	var order map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_key", user)
		assert.Equal(t, "rzp_secret", pass)

		switch r.URL.Path {
		case "/v1/orders":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&order))
			_, _ = io.WriteString(w, `{"id":"order_1","amount":49900,"currency":"INR","status":"created"}`)
		case "/v1/payments/pay_1":
			_, _ = io.WriteString(w, `{"id":"pay_1","order_id":"order_1","status":"captured","amount":49900,"currency":"INR","notes":{"trial":"true"}}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"code":"BAD_REQUEST_ERROR","description":"The id provided does not exist"}}`)
		}
	}))
	defer srv.Close()

	c := &RazorpayClient{KeyID: "rzp_key", KeySecret: "rzp_secret", APIURL: srv.URL, HTTPClient: srv.Client()}
	checkout, err := c.Initiate(context.Background(), PaymentRequest{Amount: 49900, PlanID: "pro", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "order_1", checkout.TransactionID)
	assert.Equal(t, int64(49900), checkout.Amount)
	assert.Equal(t, "INR", order["currency"])
	assert.Equal(t, float64(49900), order["amount"])
	assert.LessOrEqual(t, len(order["receipt"].(string)), 40)

	payment, raw, err := c.FetchPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, RazorpayPaymentCaptured, payment.Status)
	assert.Equal(t, "true", payment.Notes["trial"])
	assert.Contains(t, string(raw), `"pay_1"`)

	_, _, err = c.FetchPayment(context.Background(), "pay_missing")
	var ve *VendorError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "The id provided does not exist", ve.Message)

	_, err = c.Initiate(context.Background(), PaymentRequest{Amount: 499.5, PlanID: "pro", UserID: "u1"})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRazorpayVerifyPaymentSignature(t *testing.T) {
	c := &RazorpayClient{KeySecret: "rzp_secret"}
	sig := SignHex([]byte("order_1|pay_1"), "rzp_secret", sha256.New)
	assert.True(t, c.VerifyPaymentSignature("order_1", "pay_1", sig))
	assert.False(t, c.VerifyPaymentSignature("order_1", "pay_2", sig))
}

func TestStripeInitiate(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"pi_1","object":"payment_intent","amount":2900,"currency":"inr","client_secret":"pi_1_secret_abc","status":"requires_payment_method"}`)
	}))
	defer srv.Close()

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	c := NewStripeClient("sk_test_123", backend)

	checkout, err := c.Initiate(context.Background(), PaymentRequest{Amount: 2900, PlanID: "trader", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", checkout.TransactionID)
	assert.Equal(t, "pi_1_secret_abc", checkout.ClientSecret)

	assert.Equal(t, "2900", form.Get("amount"))
	assert.Equal(t, "inr", form.Get("currency"))
	assert.Equal(t, "u1", form.Get("metadata[userId]"))
	assert.Equal(t, "false", form.Get("metadata[trial]"))
	assert.Equal(t, "true", form.Get("automatic_payment_methods[enabled]"))
}

func TestStripeInitiateVendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"type":"invalid_request_error","message":"Amount must be at least ₹0.50 inr"}}`)
	}))
	defer srv.Close()

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	_, err := NewStripeClient("sk_test_123", backend).Initiate(context.Background(), PaymentRequest{Amount: 1, PlanID: "trader", UserID: "u1"})
	var ve *VendorError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Amount must be at least ₹0.50 inr", ve.Message)

	_, err = NewStripeClient("", backend).Initiate(context.Background(), traderRequest)
	assert.Error(t, err)
}
