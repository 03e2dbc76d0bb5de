package wiretransfer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendorpay-backend/internal/gateway"
	"github.com/angelmondragon/vendorpay-backend/internal/money"
	"github.com/angelmondragon/vendorpay-backend/pkg/config"
	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorpay-backend/pkg/errors"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(config.GatewayConfig{
		Provider:      ProviderName,
		BaseURL:       baseURL,
		APIKey:        "test-key",
		WebhookSecret: "test-secret",
		Timeout:       5 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func transferRequest(t *testing.T) gateway.TransferRequest {
	t.Helper()
	amount, err := money.FromString("125.00", enums.CurrencyUSD)
	if err != nil {
		t.Fatalf("make amount: %v", err)
	}
	return gateway.TransferRequest{
		PayoutID: uuid.New(),
		VendorID: uuid.New(),
		Amount:   amount,
		Method:   enums.PayoutMethodBankTransfer,
	}
}

func TestCreateTransferAccepted(t *testing.T) {
	req := transferRequest(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transfers" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Idempotency-Key"); got != req.PayoutID.String() {
			t.Errorf("expected payout id as idempotency key, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["amount"] != "125.00" {
			t.Errorf("unexpected amount %v", body["amount"])
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"transfer_id": "tr_123",
			"status":      "accepted",
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.CreateTransfer(context.Background(), req)
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}
	if result.Status != enums.TransferStatusAccepted {
		t.Fatalf("expected accepted, got %s", result.Status)
	}
	if result.TransferID != "tr_123" {
		t.Fatalf("unexpected transfer id %s", result.TransferID)
	}
}

func TestCreateTransferRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"reason": "account closed"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.CreateTransfer(context.Background(), transferRequest(t))
	if err != nil {
		t.Fatalf("rejection should not be an error: %v", err)
	}
	if result.Status != enums.TransferStatusRejected {
		t.Fatalf("expected rejected, got %s", result.Status)
	}
	if result.Reason != "account closed" {
		t.Fatalf("unexpected reason %q", result.Reason)
	}
}

func TestCreateTransferServerErrorIsUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.CreateTransfer(context.Background(), transferRequest(t))
	if !pkgerrors.IsCode(err, pkgerrors.CodeGatewayTransient) {
		t.Fatalf("expected transient gateway error, got %v", err)
	}
	if result.Status != enums.TransferStatusUnknown {
		t.Fatalf("expected unknown, got %s", result.Status)
	}
}

func TestCreateTransferNetworkErrorIsUnknown(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")
	result, err := client.CreateTransfer(context.Background(), transferRequest(t))
	if !pkgerrors.IsCode(err, pkgerrors.CodeGatewayTransient) {
		t.Fatalf("expected transient gateway error, got %v", err)
	}
	if result.Status != enums.TransferStatusUnknown {
		t.Fatalf("expected unknown, got %s", result.Status)
	}
}

func TestVerifyWebhookRoundTrip(t *testing.T) {
	client := newTestClient(t, "http://example.test")
	payload := []byte(`{"event_id":"evt_1","transfer_id":"tr_123","kind":"transfer.paid","occurred_at":"2026-08-01T12:00:00Z"}`)

	event, err := client.VerifyWebhook(payload, Sign("test-secret", payload))
	if err != nil {
		t.Fatalf("verify webhook: %v", err)
	}
	if event.Kind != gateway.EventTransferPaid {
		t.Fatalf("unexpected kind %s", event.Kind)
	}
	if event.EventID != "evt_1" || event.TransferID != "tr_123" {
		t.Fatalf("unexpected identifiers %+v", event)
	}
	if event.Provider != ProviderName {
		t.Fatalf("unexpected provider %s", event.Provider)
	}
}

func TestVerifyWebhookRejectsBadSignature(t *testing.T) {
	client := newTestClient(t, "http://example.test")
	payload := []byte(`{"event_id":"evt_1","transfer_id":"tr_123","kind":"transfer.paid"}`)

	if _, err := client.VerifyWebhook(payload, Sign("wrong-secret", payload)); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := client.VerifyWebhook(payload, ""); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for empty signature, got %v", err)
	}
}

func TestVerifyWebhookRejectsUnknownKind(t *testing.T) {
	client := newTestClient(t, "http://example.test")
	payload := []byte(`{"event_id":"evt_1","transfer_id":"tr_123","kind":"transfer.exploded"}`)

	if _, err := client.VerifyWebhook(payload, Sign("test-secret", payload)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
