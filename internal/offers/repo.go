package offers

import (
	"context"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/internal/repo"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository reads vendor offers and flips an open offer to accepted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Offer, error)
	MarkAccepted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds an offers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.New(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	if err := r.DB(ctx).Where("id = ?", id).First(&offer).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Offer, error) {
	out := make(map[uuid.UUID]models.Offer, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Offer
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// MarkAccepted moves an open offer to accepted. It reports false when the
// offer was no longer open.
func (r *repository) MarkAccepted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.Offer{}).
		Where("id = ? AND status = ?", id, enums.OfferStatusOpen).
		Updates(map[string]any{
			"status":      enums.OfferStatusAccepted,
			"accepted_at": at,
			"updated_at":  at,
		})
	return repo.Swapped(res)
}
