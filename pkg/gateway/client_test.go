package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/campustix/campustix-backend/pkg/config"
	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
	"github.com/campustix/campustix-backend/pkg/logger"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logg := logger.New(logger.Options{ServiceName: "gateway-test"})

	client, err := NewClient(context.Background(), config.GatewayConfig{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		MerchantID:     "campus-merchant",
		Currency:       "usd",
		RequestTimeout: 2 * time.Second,
		WebhookSecret:  "hook-secret",
	}, logg)
	require.NoError(t, err)
	return client
}

func TestChargeSendsDecimalAmount(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/charges", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(Charge{
			Reference: "ch_123",
			Status:    ChargeStatusPending,
			Amount:    "12.50",
			Currency:  "USD",
		})
	}))

	txID := uuid.New()
	charge, err := client.Charge(context.Background(), ChargeParams{
		TransactionID: txID,
		UserID:        uuid.New(),
		AmountCents:   1250,
		Method:        "campus_card",
	})
	require.NoError(t, err)
	require.Equal(t, "ch_123", charge.Reference)
	require.Equal(t, ChargeStatusPending, charge.Status)

	require.Equal(t, "12.5", captured["amount"])
	require.Equal(t, "USD", captured["currency"])
	require.Equal(t, txID.String(), captured["idempotency_key"])
}

func TestCheckStatusMapsNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"code": "UNKNOWN_CHARGE", "message": "no such charge"})
	}))

	_, err := client.CheckStatus(context.Background(), "ch_missing")
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeNotFound, appErr.Code())
}

func TestCheckStatusRequiresReference(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))

	_, err := client.CheckStatus(context.Background(), "  ")
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeValidation, appErr.Code())
}

func TestRefundMapsServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/charges/ch_1/refund", r.URL.Path)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.Refund(context.Background(), "ch_1", 500, "rf_1")
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeDependency, appErr.Code())
}

func TestRefundSendsIdempotencyKey(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(Charge{Reference: "ch_1", Status: ChargeStatusSucceeded})
	}))

	key := uuid.NewString()
	_, err := client.Refund(context.Background(), "ch_1", 500, key)
	require.NoError(t, err)
	require.Equal(t, key, captured["idempotency_key"])

	_, err = client.Refund(context.Background(), "ch_1", 500, " ")
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeValidation, appErr.Code())
}

func TestParseAmountCents(t *testing.T) {
	cents, err := ParseAmountCents("12.50")
	require.NoError(t, err)
	require.Equal(t, 1250, cents)

	cents, err = ParseAmountCents("7")
	require.NoError(t, err)
	require.Equal(t, 700, cents)

	_, err = ParseAmountCents("1.005")
	require.Error(t, err)

	_, err = ParseAmountCents("not-a-number")
	require.Error(t, err)
}

func TestParseWebhook(t *testing.T) {
	body := []byte(`{"event_id":"evt_1","type":"charge.succeeded","reference":"ch_1","status":"SUCCEEDED","amount":"12.50","currency":"USD"}`)
	sig := SignPayload("hook-secret", body)

	event, err := ParseWebhook("hook-secret", body, sig)
	require.NoError(t, err)
	require.Equal(t, "evt_1", event.EventID)
	require.Equal(t, ChargeStatusSucceeded, event.Status)

	_, err = ParseWebhook("hook-secret", body, "bad-signature")
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeUnauthorized, appErr.Code())

	_, err = ParseWebhook("hook-secret", []byte(`{}`), SignPayload("hook-secret", []byte(`{}`)))
	appErr = pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeValidation, appErr.Code())
}
