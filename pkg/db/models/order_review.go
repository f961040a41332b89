package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
)

// OrderReview is one side's rating of the other for a settled order.
type OrderReview struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID        `gorm:"column:order_id;type:uuid;not null"`
	Role       enums.ReviewRole `gorm:"column:role;type:review_role;not null"`
	AuthorID   uuid.UUID        `gorm:"column:author_id;type:uuid;not null"`
	RevieweeID uuid.UUID        `gorm:"column:reviewee_id;type:uuid;not null"`
	Stars      int              `gorm:"column:stars;not null"`
	Comment    string           `gorm:"column:comment;not null"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
}
