package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
	"github.com/angelmondragon/surfacemarket-backend/pkg/metrics"
)

const (
	defaultReconcileLimit = 50
	defaultStaleAfter     = 5 * time.Minute
)

type staleIntentLister interface {
	ListStaleIntents(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
}

type intentResumer interface {
	ResumeIntent(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// PayoutReconcileJobParams configures the payout intent reconciler.
type PayoutReconcileJobParams struct {
	Logger     *logger.Logger
	Orders     staleIntentLister
	Resumer    intentResumer
	Metrics    *metrics.EscrowMetrics
	StaleAfter time.Duration
	Limit      int
	Now        func() time.Time
}

// NewPayoutReconcileJob builds the job that re-drives payout intents left
// behind by a crashed or timed out finalize.
func NewPayoutReconcileJob(params PayoutReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Resumer == nil {
		return nil, fmt.Errorf("orders service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &payoutReconcileJob{
		logg:       params.Logger,
		orders:     params.Orders,
		resumer:    params.Resumer,
		metrics:    params.Metrics,
		staleAfter: staleAfter,
		limit:      limit,
		now:        now,
	}, nil
}

type payoutReconcileJob struct {
	logg       *logger.Logger
	orders     staleIntentLister
	resumer    intentResumer
	metrics    *metrics.EscrowMetrics
	staleAfter time.Duration
	limit      int
	now        func() time.Time
}

func (j *payoutReconcileJob) Name() string { return "payout-reconcile" }

func (j *payoutReconcileJob) Run(ctx context.Context) error {
	logCtx := j.logg.WithField(ctx, "job", j.Name())
	logCtx = j.logg.WithField(logCtx, "event", "cron.job")

	cutoff := j.now().UTC().Add(-j.staleAfter)
	stale, err := j.orders.ListStaleIntents(logCtx, cutoff, j.limit)
	if err != nil {
		return fmt.Errorf("list stale payout intents: %w", err)
	}
	j.metrics.SetStaleIntents(len(stale))

	var errs error
	resumed, skipped := 0, 0
	for i := range stale {
		order := &stale[i]
		orderCtx := j.logg.WithOrderID(logCtx, order.ID.String())
		if order.PayoutIntent != nil {
			orderCtx = j.logg.WithField(orderCtx, "payout_intent", string(*order.PayoutIntent))
		}
		if _, err := j.resumer.ResumeIntent(orderCtx, order.ID); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeAlreadyResolved) {
				skipped++
				continue
			}
			j.logg.Error(orderCtx, "payout intent resume failed", err)
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		resumed++
	}

	reportCtx := j.logg.WithFields(logCtx, map[string]any{
		"candidates": len(stale),
		"resumed":    resumed,
		"skipped":    skipped,
		"cutoff":     cutoff,
	})
	j.logg.Info(reportCtx, "payout reconcile loop complete")
	return errs
}
