package controllers

import (
	"crypto/sha256"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradorr/tradorr-api/app/models"
	"github.com/tradorr/tradorr-api/app/repository/repositorytest"
	"github.com/tradorr/tradorr-api/internal/pkg/billing"
)

func newBillingApp(t *testing.T, razorpay *billing.RazorpayClient, crypto billing.PaymentInitiator) (*fiber.App, *repositorytest.Store) {
	t.Helper()
	store := repositorytest.NewStore()
	bc := NewBillingController(newTestBillingService(store), billing.NewStripeClient("", nil), razorpay, crypto)

	app := fiber.New()
	app.Post("/api/crypto/create-payment", bc.HandleCryptoCreatePayment)
	app.Get("/api/crypto/payment-status/:userId", bc.HandleCryptoPaymentStatus)
	app.Post("/api/razorpay/create-order", bc.HandleRazorpayCreateOrder)
	app.Post("/api/razorpay/verify-payment", bc.HandleRazorpayVerifyPayment)
	app.Post("/api/stripe/create-payment-intent", bc.HandleStripeCreatePaymentIntent)
	app.Get("/api/transactions/:userId", bc.HandleTransactions)
	return app, store
}

func TestCryptoCreatePaymentStoresPendingTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"4522625843","invoice_url":"https://nowpayments.io/payment/?iid=4522625843"}`)
	}))
	defer srv.Close()
	crypto := &billing.NOWPaymentsClient{APIKey: "np-key", APIURL: srv.URL, FrontendURL: "https://app.example", HTTPClient: srv.Client()}
	app, store := newBillingApp(t, nil, crypto)

	resp, body := doJSON(t, app, http.MethodPost, "/api/crypto/create-payment",
		`{"amount":29,"currency":"USD","planId":"trader","userId":"u1","trial":true}`, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://nowpayments.io/payment/?iid=4522625843", body["paymentUrl"])
	assert.Equal(t, "4522625843", body["invoiceId"])

	tx, ok := store.Transaction("4522625843")
	require.True(t, ok)
	assert.Equal(t, models.TRANSACTION_PENDING, tx.Status)
	assert.Equal(t, "u1", tx.UserID)
	assert.True(t, tx.Trial)
}

func TestCreatePaymentValidation(t *testing.T) {
	app, _ := newBillingApp(t, nil, &billing.NOWPaymentsClient{})

	resp, body := doJSON(t, app, http.MethodPost, "/api/crypto/create-payment", `{"amount":29,"planId":"trader"}`, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "userId is required", body["error"])

	resp, body = doJSON(t, app, http.MethodPost, "/api/crypto/create-payment", `{"amount":0,"planId":"trader","userId":"u1"}`, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "amount")

	resp, body = doJSON(t, app, http.MethodPost, "/api/crypto/create-payment", `{"amount":`, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid request body", body["error"])
}

func TestStripeCreatePaymentIntentWithoutKey(t *testing.T) {
	app, store := newBillingApp(t, nil, nil)

	resp, body := doJSON(t, app, http.MethodPost, "/api/stripe/create-payment-intent",
		`{"amount":29,"currency":"INR","planId":"trader","userId":"u1"}`, nil)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "STRIPE_SECRET_KEY is not configured", body["error"])
	_, ok := store.User("u1")
	assert.False(t, ok)
}

func TestRazorpayCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		var got map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, float64(49900), got["amount"])
		_, _ = io.WriteString(w, `{"id":"order_1","amount":49900,"currency":"INR","status":"created"}`)
	}))
	defer srv.Close()
	rzp := &billing.RazorpayClient{KeyID: "rzp_key", KeySecret: "rzp_secret", APIURL: srv.URL, HTTPClient: srv.Client()}
	app, store := newBillingApp(t, rzp, nil)

	resp, body := doJSON(t, app, http.MethodPost, "/api/razorpay/create-order",
		`{"amount":499,"currency":"INR","planId":"pro","userId":"u1"}`, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "order_1", body["orderId"])
	assert.Equal(t, float64(49900), body["amount"])
	assert.Equal(t, "INR", body["currency"])

	_, ok := store.Transaction("order_1")
	assert.True(t, ok)
}

func razorpayVerifyApp(t *testing.T, paymentBody string) (*fiber.App, *repositorytest.Store) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, paymentBody)
	}))
	t.Cleanup(srv.Close)
	rzp := &billing.RazorpayClient{KeyID: "rzp_key", KeySecret: "rzp_secret", APIURL: srv.URL, HTTPClient: srv.Client()}
	return newBillingApp(t, rzp, nil)
}

func verifyBody(signature string) string {
	body, _ := json.Marshal(map[string]string{
		"razorpay_order_id":   "order_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  signature,
		"userId":              "u1",
		"planId":              "pro",
	})
	return string(body)
}

func TestRazorpayVerifyPayment(t *testing.T) {
	app, store := razorpayVerifyApp(t, `{"id":"pay_1","order_id":"order_1","status":"captured","amount":49900,"currency":"INR","notes":{"userId":"u1","planId":"pro","trial":"false"}}`)
	sig := billing.SignHex([]byte("order_1|pay_1"), "rzp_secret", sha256.New)

	resp, body := doJSON(t, app, http.MethodPost, "/api/razorpay/verify-payment", verifyBody(sig), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	payment, ok := body["payment"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "captured", payment["status"])

	user, ok := store.User("u1")
	require.True(t, ok)
	assert.Equal(t, models.SUBSCRIPTION_ACTIVE, user.SubscriptionStatus)
}

func TestRazorpayVerifyPaymentAfterFailedAttempt(t *testing.T) {
	app, store := razorpayVerifyApp(t, `{"id":"pay_1","order_id":"order_1","status":"captured","amount":49900,"currency":"INR","notes":{"userId":"u1","planId":"pro","trial":"false"}}`)
	store.PutTransaction(models.Transaction{ID: "order_1", UserID: "u1", PlanID: "pro", Status: billing.RazorpayAttemptFailed, Provider: billing.ProviderRazorpay, CreatedAt: testNow})
	sig := billing.SignHex([]byte("order_1|pay_1"), "rzp_secret", sha256.New)

	resp, body := doJSON(t, app, http.MethodPost, "/api/razorpay/verify-payment", verifyBody(sig), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	tx, _ := store.Transaction("order_1")
	assert.Equal(t, models.TRANSACTION_COMPLETED, tx.Status)
	user, ok := store.User("u1")
	require.True(t, ok)
	assert.Equal(t, models.SUBSCRIPTION_ACTIVE, user.SubscriptionStatus)
}

func TestRazorpayVerifyPaymentRejections(t *testing.T) {
	app, _ := razorpayVerifyApp(t, `{"id":"pay_1","order_id":"order_1","status":"authorized","amount":49900,"currency":"INR"}`)

	resp, body := doJSON(t, app, http.MethodPost, "/api/razorpay/verify-payment", verifyBody(""), nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid signature", body["error"])

	resp, body = doJSON(t, app, http.MethodPost, "/api/razorpay/verify-payment", verifyBody("00ff"), nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid signature", body["error"])

	sig := billing.SignHex([]byte("order_1|pay_1"), "rzp_secret", sha256.New)
	resp, body = doJSON(t, app, http.MethodPost, "/api/razorpay/verify-payment", verifyBody(sig), nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Payment not captured", body["error"])
}

func TestCryptoPaymentStatus(t *testing.T) {
	app, store := newBillingApp(t, nil, nil)

	_, body := doJSON(t, app, http.MethodGet, "/api/crypto/payment-status/u1", "", nil)
	assert.Equal(t, "no_transaction", body["status"])

	store.PutTransaction(models.Transaction{ID: "inv_1", UserID: "u1", PlanID: "trader", Status: models.TRANSACTION_PENDING, CreatedAt: testNow})
	_, body = doJSON(t, app, http.MethodGet, "/api/crypto/payment-status/u1", "", nil)
	assert.Equal(t, models.TRANSACTION_PENDING, body["status"])
	assert.NotContains(t, body, "plan")

	store.PutTransaction(models.Transaction{ID: "inv_1", UserID: "u1", PlanID: "trader", Status: models.TRANSACTION_COMPLETED, CreatedAt: testNow})
	_, body = doJSON(t, app, http.MethodGet, "/api/crypto/payment-status/u1", "", nil)
	assert.Equal(t, models.TRANSACTION_COMPLETED, body["status"])
	assert.Equal(t, "trader", body["plan"])
}

func TestTransactionsListsUserHistory(t *testing.T) {
	app, store := newBillingApp(t, nil, nil)

	_, body := doJSON(t, app, http.MethodGet, "/api/transactions/u1", "", nil)
	assert.Equal(t, []interface{}{}, body["transactions"])

	store.PutTransaction(models.Transaction{ID: "inv_1", UserID: "u1", Status: models.TRANSACTION_PENDING, CreatedAt: testNow})
	store.PutTransaction(models.Transaction{ID: "inv_2", UserID: "u2", Status: models.TRANSACTION_PENDING, CreatedAt: testNow})
	_, body = doJSON(t, app, http.MethodGet, "/api/transactions/u1", "", nil)
	txs, ok := body["transactions"].([]interface{})
	require.True(t, ok)
	assert.Len(t, txs, 1)
}
