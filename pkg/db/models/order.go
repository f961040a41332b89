package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	"github.com/angelmondragon/surfacemarket-backend/pkg/types"
)

// Order is created when a buyer accepts an offer and the funds are placed on hold.
// Status columns only move through the escrow state machine; rows are never deleted.
type Order struct {
	ID                    uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	JobID                 uuid.UUID                  `gorm:"column:job_id;type:uuid;not null"`
	OfferID               uuid.UUID                  `gorm:"column:offer_id;type:uuid;not null;uniqueIndex"`
	BuyerID               uuid.UUID                  `gorm:"column:buyer_id;type:uuid;not null"`
	VendorID              uuid.UUID                  `gorm:"column:vendor_id;type:uuid;not null"`
	GoodsAmountCents      int64                      `gorm:"column:goods_amount_cents;not null"`
	LogisticsAmountCents  int64                      `gorm:"column:logistics_amount_cents;not null;default:0"`
	TotalAmountCents      int64                      `gorm:"column:total_amount_cents;not null"`
	Currency              enums.Currency             `gorm:"column:currency;type:text;not null;default:'EUR'"`
	PaymentReference      string                     `gorm:"column:payment_reference;not null"`
	CaptureReference      string                     `gorm:"column:capture_reference;not null"`
	PaidAt                *time.Time                 `gorm:"column:paid_at"`
	FulfillmentStatus     enums.FulfillmentStatus    `gorm:"column:fulfillment_status;type:fulfillment_status;not null;default:'in_progress'"`
	DeliveryReportedAt    *time.Time                 `gorm:"column:delivery_reported_at"`
	DeliveryConfirmedAt   *time.Time                 `gorm:"column:delivery_confirmed_at"`
	DisputeOpenedAt       *time.Time                 `gorm:"column:dispute_opened_at"`
	DisputeReason         *string                    `gorm:"column:dispute_reason"`
	DisputeResolvedAt     *time.Time                 `gorm:"column:dispute_resolved_at"`
	DisputeResolution     *enums.DisputeOutcome      `gorm:"column:dispute_resolution;type:dispute_outcome"`
	PayoutStatus          enums.PayoutStatus         `gorm:"column:payout_status;type:payout_status;not null;default:'hold'"`
	PayoutIntent          *enums.PayoutIntent        `gorm:"column:payout_intent;type:payout_intent"`
	PayoutIntentAt        *time.Time                 `gorm:"column:payout_intent_at"`
	PayoutIntentAmount    *int64                     `gorm:"column:payout_intent_amount_cents"`
	PayoutReleasedAt      *time.Time                 `gorm:"column:payout_released_at"`
	ReleasedAmountCents   *int64                     `gorm:"column:released_amount_cents"`
	RefundedAmountCents   *int64                     `gorm:"column:refunded_amount_cents"`
	RefundedAt            *time.Time                 `gorm:"column:refunded_at"`
	RefundReason          *string                    `gorm:"column:refund_reason"`
	BuyerReviewed         bool                       `gorm:"column:buyer_reviewed;not null;default:false"`
	VendorReviewed        bool                       `gorm:"column:vendor_reviewed;not null;default:false"`
	ExpectedGoodsOutDate  time.Time                  `gorm:"column:expected_goods_out_date;type:date;not null"`
	ExpectedGoodsBackDate time.Time                  `gorm:"column:expected_goods_back_date;type:date;not null"`
	AutoReleaseDays       *int                       `gorm:"column:auto_release_days"`
	BuyerSnapshot         types.CounterpartySnapshot `gorm:"column:buyer_snapshot;type:jsonb;not null"`
	VendorSnapshot        types.CounterpartySnapshot `gorm:"column:vendor_snapshot;type:jsonb;not null"`
	CreatedAt             time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
