package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
)

// Payout is one disbursement intent for a vendor. Monetary fields are frozen
// once the payout leaves pending; only notes, external identifiers and status
// may change afterwards, and paid/failed rows never change again.
type Payout struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID           uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null"`
	Amount             decimal.Decimal    `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency           enums.Currency     `gorm:"column:currency;type:text;not null"`
	Status             enums.PayoutStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentMethod      enums.PayoutMethod `gorm:"column:payment_method;type:text;not null"`
	ExternalTransferID *string            `gorm:"column:external_transfer_id"`
	ExternalReference  *string            `gorm:"column:external_reference"`
	ScheduledAt        *time.Time         `gorm:"column:scheduled_at"`
	SweepWindowStart   *time.Time         `gorm:"column:sweep_window_start"`
	PaidAt             *time.Time         `gorm:"column:paid_at"`
	Notes              *string            `gorm:"column:notes"`
	AdminNotes         *string            `gorm:"column:admin_notes"`
	FailureReason      *string            `gorm:"column:failure_reason"`
	Items              []PayoutItem       `gorm:"foreignKey:PayoutID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
