package controllers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/tradorr/tradorr-api/app/repository/repositorytest"
	"github.com/tradorr/tradorr-api/internal/pkg/billing"
)

const (
	testStripeSecret   = "whsec_test"
	testRazorpaySecret = "rzp_webhook_secret"
	testNOWSecret      = "ipn_secret"
	testCoinbaseSecret = "cb_secret"
)

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestBillingService(store *repositorytest.Store) *billing.Service {
	svc := billing.NewService(store.Repositories())
	svc.RegisterWebhook(billing.StripeWebhook{}, testStripeSecret)
	svc.RegisterWebhook(billing.RazorpayWebhook{}, testRazorpaySecret)
	svc.RegisterWebhook(billing.NOWPaymentsWebhook{}, testNOWSecret)
	svc.RegisterWebhook(billing.CoinbaseWebhook{}, testCoinbaseSecret)
	svc.SetClock(func() time.Time { return testNow })
	return svc
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, raw := doRaw(t, app, method, path, body, headers)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func doRaw(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}
