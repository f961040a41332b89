package jobs

import (
	"context"

	"github.com/angelmondragon/surfacemarket-backend/internal/repo"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository reads job requests. Jobs are owned by the listing side of the
// marketplace; escrow only looks up dates and descriptions.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Job, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a jobs repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.New(db)}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	if err := r.DB(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Job, error) {
	out := make(map[uuid.UUID]models.Job, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Job
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// IsNotFound reports whether err is a missing-row error from this repository.
func IsNotFound(err error) bool {
	return repo.IsNotFound(err)
}
