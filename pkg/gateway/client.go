// Package gateway talks to the campus payment rail over HTTP. Amounts
// cross the wire as decimal major units; the ledger stores integer cents.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campustix/campustix-backend/pkg/config"
	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
	"github.com/campustix/campustix-backend/pkg/logger"
)

var (
	errBaseURLRequired = errors.New("gateway base url is required")
	errLoggerRequired  = errors.New("gateway logger is required")
)

// ChargeStatus is the rail's view of a charge.
type ChargeStatus string

const (
	ChargeStatusPending   ChargeStatus = "PENDING"
	ChargeStatusSucceeded ChargeStatus = "SUCCEEDED"
	ChargeStatusFailed    ChargeStatus = "FAILED"
)

// ChargeParams describes a charge to initiate on the rail.
type ChargeParams struct {
	TransactionID uuid.UUID
	UserID        uuid.UUID
	AmountCents   int
	Method        string
	Description   string
}

// Charge is the rail's record of a payment attempt.
type Charge struct {
	Reference string       `json:"reference"`
	Status    ChargeStatus `json:"status"`
	Amount    string       `json:"amount"`
	Currency  string       `json:"currency"`
	Reason    string       `json:"reason,omitempty"`
}

// Client exposes rail primitives with centralized auth, logging, and error mapping.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	merchantID    string
	currency      string
	webhookSecret string
	logger        *logger.Logger
}

// NewClient initializes the rail adapter and validates the configuration.
func NewClient(ctx context.Context, cfg config.GatewayConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		apiKey:        strings.TrimSpace(cfg.APIKey),
		merchantID:    strings.TrimSpace(cfg.MerchantID),
		currency:      strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		logger:        logg,
	}

	logg.Info(ctx, "payment gateway client initialized")
	return c, nil
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// Charge initiates a payment on the rail. The transaction ID doubles as the
// rail-side idempotency key, so retried calls return the same charge.
func (c *Client) Charge(ctx context.Context, params ChargeParams) (*Charge, error) {
	body := map[string]any{
		"merchant_id":     c.merchantID,
		"idempotency_key": params.TransactionID.String(),
		"user_ref":        params.UserID.String(),
		"amount":          centsToDecimal(params.AmountCents).String(),
		"currency":        c.currency,
		"method":          params.Method,
		"description":     params.Description,
	}
	c.log(ctx, "request", "charge", map[string]any{
		"transaction_id": params.TransactionID.String(),
		"amount_cents":   params.AmountCents,
		"method":         params.Method,
	})

	var charge Charge
	if err := c.do(ctx, http.MethodPost, "/v1/charges", body, &charge); err != nil {
		c.log(ctx, "error", "charge", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "charge", map[string]any{
		"reference": charge.Reference,
		"status":    string(charge.Status),
	})
	return &charge, nil
}

// CheckStatus fetches the current rail-side status of a charge.
func (c *Client) CheckStatus(ctx context.Context, reference string) (*Charge, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge reference is required")
	}
	c.log(ctx, "request", "check_status", map[string]any{"reference": reference})

	var charge Charge
	if err := c.do(ctx, http.MethodGet, "/v1/charges/"+reference, nil, &charge); err != nil {
		c.log(ctx, "error", "check_status", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "check_status", map[string]any{
		"reference": charge.Reference,
		"status":    string(charge.Status),
	})
	return &charge, nil
}

// Refund asks the rail to return funds for a settled charge. The
// idempotency key pins retried calls to one rail-side refund, the same
// way the transaction ID does for Charge.
func (c *Client) Refund(ctx context.Context, reference string, amountCents int, idempotencyKey string) (*Charge, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge reference is required")
	}
	if strings.TrimSpace(idempotencyKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund idempotency key is required")
	}
	body := map[string]any{
		"merchant_id":     c.merchantID,
		"idempotency_key": idempotencyKey,
		"amount":          centsToDecimal(amountCents).String(),
		"currency":        c.currency,
	}
	c.log(ctx, "request", "refund", map[string]any{
		"reference":    reference,
		"amount_cents": amountCents,
	})

	var charge Charge
	if err := c.do(ctx, http.MethodPost, "/v1/charges/"+reference+"/refund", body, &charge); err != nil {
		c.log(ctx, "error", "refund", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "refund", map[string]any{
		"reference": charge.Reference,
		"status":    string(charge.Status),
	})
	return &charge, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding gateway request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building gateway request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading gateway response")
	}

	if resp.StatusCode >= 400 {
		return c.mapHTTPError(resp.StatusCode, payload)
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding gateway response")
		}
	}
	return nil
}

func (c *Client) mapHTTPError(status int, payload []byte) error {
	var railErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &railErr)
	msg := railErr.Message
	if msg == "" {
		msg = fmt.Sprintf("gateway returned status %d", status)
	}
	return pkgerrors.New(domainCodeForStatus(status), msg)
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("gateway %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("gateway %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "token", "secret", "key"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func centsToDecimal(cents int) decimal.Decimal {
	return decimal.NewFromInt(int64(cents)).Shift(-2)
}

// ParseAmountCents converts a rail decimal amount string into cents.
func ParseAmountCents(amount string) (int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("parsing gateway amount %q: %w", amount, err)
	}
	cents := d.Shift(2)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("gateway amount %q has sub-cent precision", amount)
	}
	return int(cents.IntPart()), nil
}
