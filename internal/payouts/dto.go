package payouts

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorpay-backend/internal/ledger"
	"github.com/angelmondragon/vendorpay-backend/internal/money"
	"github.com/angelmondragon/vendorpay-backend/pkg/db/models"
	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
	"github.com/angelmondragon/vendorpay-backend/pkg/outbox"
	"github.com/angelmondragon/vendorpay-backend/pkg/pagination"
)

// RequestInput creates a payout on behalf of a vendor. Amount is the net sum
// the vendor wants paid out; when LineIDs are given they must compose it
// exactly, otherwise eligible lines are allocated oldest first until the
// amount is reached. A nil Amount (sweep, explicit line selection) derives the
// payout total from the lines themselves. Method overrides the vendor's
// configured payout method for this payout only.
type RequestInput struct {
	VendorID uuid.UUID
	Amount   *decimal.Decimal
	Method   *enums.PayoutMethod
	LineIDs  []uuid.UUID
	Notes    *string
	Actor    *outbox.ActorRef
}

// ApproveInput carries the admin decision for a pending payout. When
// ExternalTransferID is set the transfer was arranged out of band and the
// gateway submission is skipped.
type ApproveInput struct {
	AdminNotes         *string
	ExternalTransferID *string
	ExternalReference  *string
	Actor              *outbox.ActorRef
}

// RejectInput fails a pending payout before submission.
type RejectInput struct {
	Reason     string
	AdminNotes *string
	Actor      *outbox.ActorRef
}

// ListParams narrows and paginates payout listings.
type ListParams struct {
	VendorID uuid.UUID
	Status   *enums.PayoutStatus
	Page     pagination.Params
}

// ListResult is one page of payouts plus the cursor for the next page.
type ListResult struct {
	Payouts    []models.Payout
	NextCursor string
}

// EarningsView is the vendor-facing earnings report: the ledger balance plus
// the dispute-window line stats and the current calendar month's earnings.
type EarningsView struct {
	ledger.Balance
	PendingLinesCount  int64
	PendingLinesValue  money.Money
	ThisPeriodEarnings money.Money
}
