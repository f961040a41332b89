package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
	defaultOutboxBatch     = 500
	maxBatchesPerSweep     = 20
)

// batchDeleter removes at most limit rows older than cutoff and reports how
// many went.
type batchDeleter func(ctx context.Context, cutoff time.Time, limit int) (int64, error)

type publishedOutbox interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type deadLetters interface {
	DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// OutboxRetentionJobParams configures the outbox cleanup job. DeadLetters is
// optional; without it only published events are pruned.
type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	Repository   publishedOutbox
	DeadLetters  deadLetters
	Retention    time.Duration
	DLQRetention time.Duration
	BatchSize    int
}

type sweep struct {
	name      string
	retention time.Duration
	del       batchDeleter
}

type outboxRetentionJob struct {
	logg   *logger.Logger
	sweeps []sweep
	batch  int
	now    func() time.Time
}

// NewOutboxRetentionJob prunes published outbox rows and, when configured,
// old dead letters.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:  params.Logger,
		batch: orDefault(params.BatchSize, defaultOutboxBatch),
		now:   time.Now,
	}
	job.sweeps = append(job.sweeps, sweep{
		name:      "published",
		retention: orDefault(params.Retention, defaultOutboxRetention),
		del:       params.Repository.DeletePublishedBefore,
	})
	if params.DeadLetters != nil {
		job.sweeps = append(job.sweeps, sweep{
			name:      "dead_letter",
			retention: orDefault(params.DLQRetention, defaultDLQRetention),
			del:       params.DeadLetters.DeleteBefore,
		})
	}
	return job, nil
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run drains each sweep in batches. Rows left after maxBatchesPerSweep wait
// for the next cycle.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs []error
	for _, s := range j.sweeps {
		cutoff := now.Add(-s.retention)
		deleted, err := j.drain(ctx, s.del, cutoff)
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"sweep":        s.name,
			"cutoff":       cutoff,
			"rows_deleted": deleted,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("outbox retention %s: %w", s.name, err))
			continue
		}
		j.logg.Info(logCtx, "outbox retention sweep complete")
	}
	return errors.Join(errs...)
}

func (j *outboxRetentionJob) drain(ctx context.Context, del batchDeleter, cutoff time.Time) (int64, error) {
	var total int64
	for i := 0; i < maxBatchesPerSweep; i++ {
		rows, err := del(ctx, cutoff, j.batch)
		total += rows
		if err != nil {
			return total, err
		}
		if rows < int64(j.batch) {
			break
		}
	}
	return total, nil
}
