package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceCheckpoint caches the ledger fold for one vendor up to a known entry
// id. Reads combine the checkpoint with entries newer than UpToEntryID, so a
// stale checkpoint is never wrong, only slower.
type BalanceCheckpoint struct {
	VendorID         uuid.UUID       `gorm:"column:vendor_id;type:uuid;primaryKey"`
	LifetimeEarnings decimal.Decimal `gorm:"column:lifetime_earnings;type:numeric(14,2);not null"`
	LifetimePaid     decimal.Decimal `gorm:"column:lifetime_paid;type:numeric(14,2);not null"`
	Reserved         decimal.Decimal `gorm:"column:reserved;type:numeric(14,2);not null"`
	UpToEntryID      int64           `gorm:"column:up_to_entry_id;not null"`
	AsOf             time.Time       `gorm:"column:as_of;not null"`
}

// TableName overrides gorm's pluralization.
func (BalanceCheckpoint) TableName() string {
	return "vendor_balance_checkpoints"
}
