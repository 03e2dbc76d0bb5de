package payloads

import (
	"time"

	"github.com/google/uuid"
)

// PayoutRequestedEvent signals a new payout entering the pipeline.
type PayoutRequestedEvent struct {
	PayoutID  uuid.UUID `json:"payout_id"`
	VendorID  uuid.UUID `json:"vendor_id"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	LineCount int       `json:"line_count"`
	Swept     bool      `json:"swept"`
}

// PayoutApprovedEvent is emitted when an admin approves a pending payout.
type PayoutApprovedEvent struct {
	PayoutID           uuid.UUID `json:"payout_id"`
	VendorID           uuid.UUID `json:"vendor_id"`
	Amount             string    `json:"amount"`
	Currency           string    `json:"currency"`
	ExternalTransferID string    `json:"external_transfer_id,omitempty"`
}

// PayoutPaidEvent confirms the gateway settled the transfer.
type PayoutPaidEvent struct {
	PayoutID uuid.UUID `json:"payout_id"`
	VendorID uuid.UUID `json:"vendor_id"`
	Amount   string    `json:"amount"`
	Currency string    `json:"currency"`
	PaidAt   time.Time `json:"paid_at"`
}

// PayoutFailedEvent reports a terminal failure; the reserved funds return to
// the vendor's available balance.
type PayoutFailedEvent struct {
	PayoutID uuid.UUID `json:"payout_id"`
	VendorID uuid.UUID `json:"vendor_id"`
	Amount   string    `json:"amount"`
	Currency string    `json:"currency"`
	Reason   string    `json:"reason,omitempty"`
}

// PayoutReversedEvent reports a gateway reversal after a payout was paid.
type PayoutReversedEvent struct {
	PayoutID uuid.UUID `json:"payout_id"`
	VendorID uuid.UUID `json:"vendor_id"`
	Amount   string    `json:"amount"`
	Currency string    `json:"currency"`
	Reason   string    `json:"reason,omitempty"`
}

// EarningsAccruedEvent is emitted when a settled order line lands in the ledger.
type EarningsAccruedEvent struct {
	VendorID  uuid.UUID `json:"vendor_id"`
	LineID    uuid.UUID `json:"line_id"`
	Gross     string    `json:"gross"`
	Net       string    `json:"net"`
	Currency  string    `json:"currency"`
	SettledAt time.Time `json:"settled_at"`
}

// EarningsReversedEvent is emitted when a disputed line's accrual is backed out.
type EarningsReversedEvent struct {
	VendorID uuid.UUID `json:"vendor_id"`
	LineID   uuid.UUID `json:"line_id"`
	Net      string    `json:"net"`
	Currency string    `json:"currency"`
}
