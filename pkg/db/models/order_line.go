package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
)

// OrderLine is one billable order item attributable to one vendor. Rows are
// written by the order system; the payout service only reads them.
type OrderLine struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID        uuid.UUID             `gorm:"column:vendor_id;type:uuid;not null"`
	OrderID         uuid.UUID             `gorm:"column:order_id;type:uuid;not null"`
	GrossAmount     decimal.Decimal       `gorm:"column:gross_amount;type:numeric(14,2);not null"`
	Currency        enums.Currency        `gorm:"column:currency;type:text;not null"`
	SettlementState enums.SettlementState `gorm:"column:settlement_state;type:text;not null;default:'unsettled'"`
	SettledAt       *time.Time            `gorm:"column:settled_at"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
}
