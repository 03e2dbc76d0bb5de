package wiretransfer

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/vendorpay-backend/internal/gateway"
	"github.com/angelmondragon/vendorpay-backend/pkg/config"
	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorpay-backend/pkg/errors"
	"github.com/angelmondragon/vendorpay-backend/pkg/logger"
)

const (
	// ProviderName identifies this adapter in gateway_events and payouts.
	ProviderName = "wiretransfer"

	idempotencyHeader = "Idempotency-Key"
	signatureHeader   = "X-Wiretransfer-Signature"
)

var (
	errBaseURLRequired       = errors.New("wiretransfer base url is required")
	errAPIKeyRequired        = errors.New("wiretransfer api key is required")
	errWebhookSecretRequired = errors.New("wiretransfer webhook secret is required")
)

// Client talks to the wiretransfer disbursement API with centralized auth,
// idempotency, and error mapping.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	webhookSecret string
	logger        *logger.Logger
}

// NewClient initializes the wiretransfer adapter and validates the credentials.
func NewClient(cfg config.GatewayConfig, logg *logger.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		logger:        logg,
	}, nil
}

// Name implements gateway.Adapter.
func (c *Client) Name() string {
	return ProviderName
}

type transferPayload struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	VendorID  string `json:"vendor_id"`
	Method    string `json:"method"`
	Reference string `json:"reference,omitempty"`
}

type transferResponse struct {
	TransferID string `json:"transfer_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// CreateTransfer submits the payout. The payout id rides as the idempotency
// key, so the provider collapses duplicate submissions onto one transfer.
func (c *Client) CreateTransfer(ctx context.Context, req gateway.TransferRequest) (gateway.TransferResult, error) {
	unknown := gateway.TransferResult{Status: enums.TransferStatusUnknown}

	body, err := json.Marshal(transferPayload{
		Amount:    req.Amount.String(),
		Currency:  string(req.Amount.Currency()),
		VendorID:  req.VendorID.String(),
		Method:    string(req.Method),
		Reference: req.Reference,
	})
	if err != nil {
		return unknown, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding transfer request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return unknown, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building transfer request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set(idempotencyHeader, req.PayoutID.String())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network failure after the request may have left: outcome unknown.
		return unknown, pkgerrors.Wrap(pkgerrors.CodeGatewayTransient, err, "submitting transfer")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return unknown, pkgerrors.Wrap(pkgerrors.CodeGatewayTransient, err, "reading transfer response")
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		return unknown, pkgerrors.New(pkgerrors.CodeGatewayTransient, fmt.Sprintf("provider returned %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		var decoded transferResponse
		_ = json.Unmarshal(respBody, &decoded)
		return gateway.TransferResult{
			Status: enums.TransferStatusRejected,
			Reason: rejectionReason(decoded.Reason, resp.StatusCode),
		}, nil
	}

	var decoded transferResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return unknown, pkgerrors.Wrap(pkgerrors.CodeGatewayTransient, err, "decoding transfer response")
	}
	if decoded.TransferID == "" {
		return unknown, pkgerrors.New(pkgerrors.CodeGatewayTransient, "provider accepted without a transfer id")
	}

	if c.logger != nil {
		fields := map[string]any{
			"payout_id":   req.PayoutID.String(),
			"transfer_id": decoded.TransferID,
		}
		c.logger.Info(c.logger.WithFields(ctx, fields), "transfer submitted")
	}

	return gateway.TransferResult{
		Status:     enums.TransferStatusAccepted,
		TransferID: decoded.TransferID,
	}, nil
}

type transferStatusResponse struct {
	TransferID string    `json:"transfer_id"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	SettledAt  time.Time `json:"settled_at,omitempty"`
}

// VerifyTransfer fetches the provider's current view of a transfer. Used to
// resolve payouts stuck in processing when the webhook never arrived.
func (c *Client) VerifyTransfer(ctx context.Context, transferID string) (gateway.TransferView, error) {
	var view gateway.TransferView

	transferID = strings.TrimSpace(transferID)
	if transferID == "" {
		return view, pkgerrors.New(pkgerrors.CodeValidation, "transfer id is required")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/transfers/"+transferID, nil)
	if err != nil {
		return view, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building verify request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return view, pkgerrors.Wrap(pkgerrors.CodeGatewayTransient, err, "verifying transfer")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return view, pkgerrors.Wrap(pkgerrors.CodeGatewayTransient, err, "reading verify response")
	}
	if resp.StatusCode != http.StatusOK {
		return view, pkgerrors.New(pkgerrors.CodeGatewayTransient, fmt.Sprintf("verify returned %d", resp.StatusCode))
	}

	var decoded transferStatusResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return view, pkgerrors.Wrap(pkgerrors.CodeGatewayTransient, err, "decoding verify response")
	}

	view = gateway.TransferView{
		TransferID: decoded.TransferID,
		Reason:     decoded.Reason,
		OccurredAt: decoded.SettledAt,
	}
	switch decoded.Status {
	case "paid", "settled":
		view.State = gateway.TransferStatePaid
	case "failed", "rejected":
		view.State = gateway.TransferStateFailed
	case "pending", "processing", "accepted":
		view.State = gateway.TransferStatePending
	default:
		return view, pkgerrors.New(pkgerrors.CodeGatewayTransient, fmt.Sprintf("unsupported transfer status %q", decoded.Status))
	}
	return view, nil
}

func rejectionReason(reason string, statusCode int) string {
	if reason != "" {
		return reason
	}
	return fmt.Sprintf("provider rejected with status %d", statusCode)
}

type webhookPayload struct {
	EventID    string    `json:"event_id"`
	TransferID string    `json:"transfer_id"`
	Kind       string    `json:"kind"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// VerifyWebhook checks the HMAC-SHA256 signature and normalizes the payload.
func (c *Client) VerifyWebhook(payload []byte, signature string) (*gateway.WebhookEvent, error) {
	if !c.validSignature(payload, signature) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature mismatch")
	}

	var decoded webhookPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding webhook payload")
	}
	if decoded.EventID == "" || decoded.TransferID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook missing event or transfer id")
	}
	kind := gateway.EventKind(decoded.Kind)
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported webhook kind %q", decoded.Kind))
	}

	return &gateway.WebhookEvent{
		Provider:   ProviderName,
		EventID:    decoded.EventID,
		TransferID: decoded.TransferID,
		Kind:       kind,
		Reason:     decoded.Reason,
		OccurredAt: decoded.OccurredAt,
		Raw:        json.RawMessage(payload),
	}, nil
}

func (c *Client) validSignature(payload []byte, signature string) bool {
	signature = strings.TrimSpace(strings.TrimPrefix(signature, "sha256="))
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// SignatureHeader names the HTTP header carrying the webhook signature.
func SignatureHeader() string {
	return signatureHeader
}

// Sign computes the webhook signature for a payload. Exposed for tests and
// local tooling.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
