package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
)

// LedgerEntry is one immutable, signed monetary fact about one vendor. Rows
// are append-only: never updated, never deleted. The bigserial id gives a
// total order within a vendor.
type LedgerEntry struct {
	ID        int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	VendorID  uuid.UUID             `gorm:"column:vendor_id;type:uuid;not null"`
	Kind      enums.LedgerEntryKind `gorm:"column:kind;type:text;not null"`
	Amount    decimal.Decimal       `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency  enums.Currency        `gorm:"column:currency;type:text;not null"`
	RefKind   enums.LedgerRefKind   `gorm:"column:ref_kind;type:text;not null"`
	RefID     uuid.UUID             `gorm:"column:ref_id;type:uuid;not null"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides gorm's pluralization.
func (LedgerEntry) TableName() string {
	return "vendor_ledger"
}
