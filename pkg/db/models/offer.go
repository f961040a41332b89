package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
)

// Offer is a vendor's priced bid on a job.
type Offer struct {
	ID                   uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	JobID                uuid.UUID         `gorm:"column:job_id;type:uuid;not null"`
	VendorID             uuid.UUID         `gorm:"column:vendor_id;type:uuid;not null"`
	GoodsAmountCents     int64             `gorm:"column:goods_amount_cents;not null"`
	LogisticsAmountCents int64             `gorm:"column:logistics_amount_cents;not null;default:0"`
	Currency             enums.Currency    `gorm:"column:currency;type:text;not null;default:'EUR'"`
	Status               enums.OfferStatus `gorm:"column:status;type:offer_status;not null;default:'open'"`
	AcceptedAt           *time.Time        `gorm:"column:accepted_at"`
	CreatedAt            time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
