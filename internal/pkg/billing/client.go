package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"
)

const vendorTimeout = 15 * time.Second

// VendorError carries the provider's own error message so callers can pass it through.
type VendorError struct {
	Provider string
	Message  string
	Err      error
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *VendorError) Unwrap() error {
	return e.Err
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: vendorTimeout,
	}
}

// doJSON sends an optional JSON body and returns the raw response body with its status code.
func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, in interface{}) ([]byte, int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, 0, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return out, resp.StatusCode, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// minorUnits converts an amount that is already expressed in minor units (paise, cents).
func minorUnits(amount float64) (int64, error) {
	if amount <= 0 || amount != math.Trunc(amount) || amount > math.MaxInt64/2 {
		return 0, ErrInvalidAmount
	}
	return int64(amount), nil
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
