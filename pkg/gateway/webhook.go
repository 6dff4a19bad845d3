package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
)

// SignatureHeader carries the rail's HMAC over the raw webhook body.
const SignatureHeader = "X-Rail-Signature"

// WebhookEvent is the rail's charge notification payload.
type WebhookEvent struct {
	EventID   string       `json:"event_id"`
	Type      string       `json:"type"`
	Reference string       `json:"reference"`
	Status    ChargeStatus `json:"status"`
	Amount    string       `json:"amount"`
	Currency  string       `json:"currency"`
	Reason    string       `json:"reason,omitempty"`
}

// VerifySignature checks the HMAC-SHA256 signature over the raw body.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignPayload computes the signature the rail would attach to body. Used by
// tests and the local rail simulator.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ParseWebhook verifies the signature and decodes the event.
func ParseWebhook(secret string, body []byte, signature string) (*WebhookEvent, error) {
	if !VerifySignature(secret, body, signature) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature mismatch")
	}
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding webhook payload")
	}
	if event.EventID == "" || event.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload missing event_id or reference")
	}
	return &event, nil
}
