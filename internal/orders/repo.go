package orders

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/internal/repo"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// nullable timestamp columns a guard may require to be unset
var guardableColumns = map[string]struct{}{
	"paid_at":               {},
	"delivery_reported_at":  {},
	"delivery_confirmed_at": {},
	"dispute_opened_at":     {},
	"dispute_resolved_at":   {},
	"payout_released_at":    {},
	"refunded_at":           {},
}

type repository struct {
	repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.New(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.DB(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.DB(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByOfferID(ctx context.Context, offerID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).Where("offer_id = ?", offerID).Take(&order).Error
	if repo.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Where("payment_reference = ? OR capture_reference = ?", reference, reference).
		Take(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListForViewer(ctx context.Context, viewerID uuid.UUID, side Side) ([]models.Order, error) {
	q := r.DB(ctx).Model(&models.Order{})
	switch side {
	case SidePlaced:
		q = q.Where("buyer_id = ?", viewerID)
	case SideFulfilled:
		q = q.Where("vendor_id = ?", viewerID)
	default:
		q = q.Where("buyer_id = ? OR vendor_id = ?", viewerID, viewerID)
	}
	var rows []models.Order
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListStaleIntents(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Order
	err := r.DB(ctx).
		Where("payout_intent IS NOT NULL AND payout_intent_at < ?", before).
		Order("payout_intent_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// CompareAndUpdate applies updates only when the row still matches guard. It
// reports whether the row was updated.
func (r *repository) CompareAndUpdate(ctx context.Context, id uuid.UUID, guard Guard, updates map[string]any) (bool, error) {
	q := r.DB(ctx).Model(&models.Order{}).Where("id = ?", id)
	if len(guard.Fulfillment) > 0 {
		q = q.Where("fulfillment_status IN ?", guard.Fulfillment)
	}
	if guard.Payout != nil {
		q = q.Where("payout_status = ?", *guard.Payout)
	}
	if guard.IntentIs != nil {
		q = q.Where("payout_intent = ?", *guard.IntentIs)
	}
	if guard.IntentAt != nil {
		q = q.Where("payout_intent_at = ?", *guard.IntentAt)
	}
	if guard.NoIntent {
		q = q.Where("payout_intent IS NULL")
	}
	if guard.NoOpenDispute {
		q = q.Where("(dispute_opened_at IS NULL OR dispute_resolved_at IS NOT NULL)")
	}
	if guard.DisputeOpen {
		q = q.Where("dispute_opened_at IS NOT NULL AND dispute_resolved_at IS NULL")
	}
	for _, col := range guard.NullColumns {
		if _, ok := guardableColumns[col]; !ok {
			return false, errors.New("unsupported guard column " + col)
		}
		q = q.Where(col + " IS NULL")
	}
	return repo.Swapped(q.Updates(updates))
}

// MarkReviewed flips the reviewed flag of role. It reports false when the flag
// was already set.
func (r *repository) MarkReviewed(ctx context.Context, id uuid.UUID, role enums.ReviewRole) (bool, error) {
	column := "buyer_reviewed"
	if role == enums.ReviewRoleVendorToBuyer {
		column = "vendor_reviewed"
	}
	res := r.DB(ctx).Model(&models.Order{}).
		Where("id = ? AND "+column+" = ?", id, false).
		Update(column, true)
	return repo.Swapped(res)
}
