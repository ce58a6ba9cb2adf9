package speech

import (
	"net/url"
	"strconv"
	"strings"
)

// WebhookRequest holds the Twilio voice webhook fields the service reads.
type WebhookRequest struct {
	From         string
	CallSid      string
	SpeechResult string
	Confidence   float64
	// SessionToken is the session key echoed back through the Gather action.
	SessionToken string
}

// ParseWebhook extracts webhook fields from the form body and query string.
func ParseWebhook(form url.Values, query url.Values) WebhookRequest {
	req := WebhookRequest{
		From:         strings.TrimSpace(form.Get("From")),
		CallSid:      strings.TrimSpace(form.Get("CallSid")),
		SpeechResult: strings.TrimSpace(form.Get("SpeechResult")),
		SessionToken: strings.TrimSpace(query.Get("session")),
	}
	if raw := form.Get("Confidence"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			req.Confidence = v
		}
	}
	return req
}

// SessionKey picks the session key: explicit token, then CallSid, then From.
// An empty result means the caller must mint a new token.
func (r WebhookRequest) SessionKey() string {
	for _, candidate := range []string{r.SessionToken, r.CallSid, r.From} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}
