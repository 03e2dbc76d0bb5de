package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
)

// Vendor mirrors the vendor registry owned by the marketplace core. The row
// doubles as the lock anchor that serializes all monetary mutations for one
// vendor.
type Vendor struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name              string             `gorm:"column:name;not null"`
	Currency          enums.Currency     `gorm:"column:currency;type:text;not null;default:'USD'"`
	CommissionPercent *string            `gorm:"column:commission_percent;type:numeric(5,2)"`
	PayoutMethod      enums.PayoutMethod `gorm:"column:payout_method;type:text;not null;default:'bank_transfer'"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
