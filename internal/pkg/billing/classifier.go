package billing

import (
	"encoding/json"
	"strconv"
	"strings"
)

// WebhookAdapter holds the provider-specific parts of webhook handling.
// Verify must run over the exact request bytes. Classify never touches storage.
type WebhookAdapter interface {
	Provider() string
	SignatureHeader() string
	Verify(payload []byte, signature, secret string) bool
	Classify(payload []byte) (*ClassifiedEvent, error)
}

// flexibleID accepts ids that providers send either as JSON strings or numbers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*f = flexibleID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// metadata is the planId/userId/trial triple attached to every checkout.
// Razorpay sends an empty notes list as [] so anything that is not an object decodes to empty.
type metadata map[string]string

func (m *metadata) UnmarshalJSON(b []byte) error {
	raw := map[string]interface{}{}
	if err := json.Unmarshal(b, &raw); err != nil {
		*m = metadata{}
		return nil
	}
	out := make(metadata, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		}
	}
	*m = out
	return nil
}

func (m metadata) apply(ev *ClassifiedEvent) {
	ev.UserID = strings.TrimSpace(m["userId"])
	ev.PlanID = strings.TrimSpace(m["planId"])
	ev.Trial = isTrueFlag(m["trial"])
}

func isTrueFlag(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

func trialFlag(trial bool) string {
	if trial {
		return "true"
	}
	return "false"
}

// checkoutMetadata is the metadata sent to every provider at initiation time.
func checkoutMetadata(req PaymentRequest) map[string]string {
	return map[string]string{
		"planId": req.PlanID,
		"userId": req.UserID,
		"trial":  trialFlag(req.Trial),
	}
}
