package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByOfferID(ctx context.Context, offerID uuid.UUID) (*models.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	ListForViewer(ctx context.Context, viewerID uuid.UUID, side Side) ([]models.Order, error)
	ListStaleIntents(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
	CompareAndUpdate(ctx context.Context, id uuid.UUID, guard Guard, updates map[string]any) (bool, error)
	MarkReviewed(ctx context.Context, id uuid.UUID, role enums.ReviewRole) (bool, error)
}

// Side selects which half of a viewer's orders to list.
type Side string

const (
	SideAll       Side = ""
	SidePlaced    Side = "placed"
	SideFulfilled Side = "fulfilled"
)

// Guard is the expected persisted state a conditional update must observe.
// An update that matches no row lost a race and changes nothing.
type Guard struct {
	Fulfillment   []enums.FulfillmentStatus
	Payout        *enums.PayoutStatus
	IntentIs      *enums.PayoutIntent
	IntentAt      *time.Time
	NoIntent      bool
	NoOpenDispute bool
	DisputeOpen   bool
	NullColumns   []string
}

func payoutIs(status enums.PayoutStatus) *enums.PayoutStatus {
	return &status
}

func intentIs(intent enums.PayoutIntent) *enums.PayoutIntent {
	return &intent
}
