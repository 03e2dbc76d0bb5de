package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutItem allocates one order line to one payout. A partial unique index on
// line_id (where released_at is null) guards against double allocation; when
// the parent payout fails the items are released, not deleted, so the record
// of the attempt survives. gross = commission + net is checked at insert.
type PayoutItem struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PayoutID         uuid.UUID       `gorm:"column:payout_id;type:uuid;not null"`
	LineID           uuid.UUID       `gorm:"column:line_id;type:uuid;not null"`
	GrossAmount      decimal.Decimal `gorm:"column:gross_amount;type:numeric(14,2);not null"`
	CommissionAmount decimal.Decimal `gorm:"column:commission_amount;type:numeric(14,2);not null"`
	NetAmount        decimal.Decimal `gorm:"column:net_amount;type:numeric(14,2);not null"`
	ReleasedAt       *time.Time      `gorm:"column:released_at"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}
