package models

import (
	"time"

	"github.com/google/uuid"
)

// Job is a buyer's surface-treatment request. The escrow core reads it, never writes it.
type Job struct {
	ID                    uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID               uuid.UUID `gorm:"column:buyer_id;type:uuid;not null"`
	Title                 string    `gorm:"column:title;not null"`
	GoodsDescription      string    `gorm:"column:goods_description;not null;default:''"`
	TreatmentProcess      string    `gorm:"column:treatment_process;not null;default:''"`
	Quantity              int       `gorm:"column:quantity;not null;default:1"`
	ExpectedGoodsOutDate  time.Time `gorm:"column:expected_goods_out_date;type:date;not null"`
	ExpectedGoodsBackDate time.Time `gorm:"column:expected_goods_back_date;type:date;not null"`
	AutoReleaseDays       *int      `gorm:"column:auto_release_days"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
