package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
)

// LedgerEvent records an immutable money movement confirmed by the payment processor.
type LedgerEvent struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID             `gorm:"column:order_id;type:uuid;not null"`
	BuyerID        uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null"`
	VendorID       uuid.UUID             `gorm:"column:vendor_id;type:uuid;not null"`
	ActorUserID    *uuid.UUID            `gorm:"column:actor_user_id;type:uuid"`
	Type           enums.LedgerEventType `gorm:"column:type;type:ledger_event_type;not null"`
	AmountCents    int64                 `gorm:"column:amount_cents;not null"`
	Currency       enums.Currency        `gorm:"column:currency;type:text;not null"`
	Provider       string                `gorm:"column:provider;not null"`
	Reference      string                `gorm:"column:reference;not null"`
	IdempotencyKey string                `gorm:"column:idempotency_key;not null;uniqueIndex"`
	Metadata       json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
}
