package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendorpay-backend/internal/money"
	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
)

// EventKind names the webhook notifications a provider can deliver.
type EventKind string

const (
	EventTransferPaid     EventKind = "transfer.paid"
	EventTransferFailed   EventKind = "transfer.failed"
	EventTransferReversed EventKind = "transfer.reversed"
)

// IsValid reports whether the kind is one the orchestrator understands.
func (k EventKind) IsValid() bool {
	switch k {
	case EventTransferPaid, EventTransferFailed, EventTransferReversed:
		return true
	}
	return false
}

// TransferRequest asks the provider to move money to a vendor. The payout id
// doubles as the idempotency key, so retrying a submission can never create a
// second transfer.
type TransferRequest struct {
	PayoutID  uuid.UUID
	VendorID  uuid.UUID
	Amount    money.Money
	Method    enums.PayoutMethod
	Reference string
}

// TransferResult is the provider's synchronous answer. Unknown means the
// submission outcome could not be determined and must be resolved by webhook
// or reconciliation, never by blind retry.
type TransferResult struct {
	Status     enums.TransferStatus
	TransferID string
	Reason     string
}

// TransferState is the provider's current account of a submitted transfer.
type TransferState string

const (
	TransferStatePending TransferState = "pending"
	TransferStatePaid    TransferState = "paid"
	TransferStateFailed  TransferState = "failed"
)

// TransferView is the answer to a verify call. It resolves transfers whose
// submission outcome was unknown or whose webhook never arrived.
type TransferView struct {
	TransferID string
	State      TransferState
	Reason     string
	OccurredAt time.Time
}

// WebhookEvent is a verified, provider-normalized notification.
type WebhookEvent struct {
	Provider   string
	EventID    string
	TransferID string
	Kind       EventKind
	Reason     string
	OccurredAt time.Time
	Raw        json.RawMessage
}

// Adapter is the contract every payout provider implements.
type Adapter interface {
	Name() string
	CreateTransfer(ctx context.Context, req TransferRequest) (TransferResult, error)
	VerifyTransfer(ctx context.Context, transferID string) (TransferView, error)
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
