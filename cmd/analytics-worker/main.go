package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/surfacemarket-backend/internal/analytics/router"
	"github.com/angelmondragon/surfacemarket-backend/internal/analytics/types"
	"github.com/angelmondragon/surfacemarket-backend/internal/analytics/worker"
	"github.com/angelmondragon/surfacemarket-backend/internal/analytics/writer"
	"github.com/angelmondragon/surfacemarket-backend/pkg/bigquery"
	"github.com/angelmondragon/surfacemarket-backend/pkg/config"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
	"github.com/angelmondragon/surfacemarket-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/surfacemarket-backend/pkg/pubsub"
	"github.com/angelmondragon/surfacemarket-backend/pkg/redis"
)

const serviceName = "analytics-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Debug(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"serviceKind":  cfg.Service.Kind,
		"subscription": cfg.PubSub.AnalyticsSubscription,
		"table":        cfg.BigQuery.EscrowEventsTable,
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "analytics worker stopped", err)
		os.Exit(1)
	}
}

// run wires the escrow analytics pipeline: Pub/Sub subscription, Redis
// dedupe, then the event router writing rows to BigQuery.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.SubscriberResources(cfg.PubSub), logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer closeWith(ctx, logg, "pubsub", pubsubClient.Close)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("bigquery: %w", err)
	}
	defer closeWith(ctx, logg, "bigquery", bqClient.Close)
	if cfg.BigQuery.CreateTable {
		if err := bqClient.EnsureTable(ctx, types.EscrowEventSchema, writer.PartitionField); err != nil {
			return fmt.Errorf("bigquery table: %w", err)
		}
	}

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		return errors.New("analytics subscription not configured")
	}

	seen, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency manager: %w", err)
	}
	escrowWriter, err := writer.New(bqClient, writer.Config{EscrowTable: cfg.BigQuery.EscrowEventsTable})
	if err != nil {
		return fmt.Errorf("bigquery writer: %w", err)
	}
	routes, err := router.NewRouter(escrowWriter, logg, nil)
	if err != nil {
		return fmt.Errorf("analytics router: %w", err)
	}
	service, err := worker.NewService(subscription, routes, seen, logg)
	if err != nil {
		return fmt.Errorf("analytics worker: %w", err)
	}

	logg.Info(ctx, "analytics worker ready")
	return service.Run(ctx)
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "failed to close "+name, err)
	}
}
