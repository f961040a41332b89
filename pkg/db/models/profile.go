package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the public business profile of a marketplace account.
type Profile struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Handle          string    `gorm:"column:handle;not null;uniqueIndex"`
	CompanyName     string    `gorm:"column:company_name;not null"`
	City            *string   `gorm:"column:city"`
	CountryCode     *string   `gorm:"column:country_code"`
	VATID           *string   `gorm:"column:vat_id"`
	PayoutAccountID *string   `gorm:"column:payout_account_id"`
	RatingSum       int       `gorm:"column:rating_sum;not null;default:0"`
	RatingCount     int       `gorm:"column:rating_count;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
