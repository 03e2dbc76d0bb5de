package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GatewayEvent records one settlement webhook delivery. The unique index on
// (provider, event_id) is the authoritative dedupe for redelivered events.
type GatewayEvent struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Provider   string          `gorm:"column:provider;not null;uniqueIndex:ux_gateway_events_provider_event"`
	EventID    string          `gorm:"column:event_id;not null;uniqueIndex:ux_gateway_events_provider_event"`
	TransferID string          `gorm:"column:transfer_id;not null"`
	Kind       string          `gorm:"column:kind;not null"`
	Payload    json.RawMessage `gorm:"column:payload;type:jsonb"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}
