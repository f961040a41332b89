package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/surfacemarket-backend/internal/cron"
	"github.com/angelmondragon/surfacemarket-backend/internal/jobs"
	"github.com/angelmondragon/surfacemarket-backend/internal/ledger"
	"github.com/angelmondragon/surfacemarket-backend/internal/offers"
	"github.com/angelmondragon/surfacemarket-backend/internal/orders"
	"github.com/angelmondragon/surfacemarket-backend/internal/profiles"
	"github.com/angelmondragon/surfacemarket-backend/pkg/config"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
	"github.com/angelmondragon/surfacemarket-backend/pkg/metrics"
	"github.com/angelmondragon/surfacemarket-backend/pkg/migrate"
	"github.com/angelmondragon/surfacemarket-backend/pkg/outbox"
	"github.com/angelmondragon/surfacemarket-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	boot := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		boot.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		boot.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"service_kind": cfg.Service.Kind,
	})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

// run wires the escrow jobs behind a redis leader lock and blocks until ctx
// is cancelled.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	cronJobs, err := escrowJobs(ctx, cfg, logg, dbClient)
	if err != nil {
		return err
	}
	registry, err := cron.NewRegistry(cronJobs...)
	if err != nil {
		return fmt.Errorf("register cron jobs: %w", err)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName, lockEnv(cfg.App.Env)), cfg.Escrow.CronLockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Escrow.CronInterval,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// escrowJobs builds the payout reconcile and outbox retention jobs.
func escrowJobs(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client) ([]cron.Job, error) {
	ledgerClients, err := ledger.NewClients(ctx, cfg, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap ledger provider: %w", err)
	}
	escrowMetrics := metrics.NewEscrowMetrics(prometheus.DefaultRegisterer)
	gateway, err := ledger.NewGateway(ledgerClients, cfg.Ledger, escrowMetrics, logg)
	if err != nil {
		return nil, fmt.Errorf("ledger gateway: %w", err)
	}
	ledgerEvents, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	orderRepo := orders.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:              orderRepo,
		Offers:            offers.NewRepository(dbClient.DB()),
		Jobs:              jobs.NewRepository(dbClient.DB()),
		Profiles:          profiles.NewRepository(dbClient.DB()),
		Ledger:            gateway,
		LedgerEvents:      ledgerEvents,
		Outbox:            outbox.NewService(outboxRepo, logg),
		TransactionRunner: dbClient,
		Policy:            orders.WindowPolicy{AutoReleaseDays: cfg.Escrow.AutoReleaseDays},
		IntentStaleAfter:  cfg.Escrow.IntentStaleAfter,
		Metrics:           escrowMetrics,
		Logger:            logg,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	reconcile, err := cron.NewPayoutReconcileJob(cron.PayoutReconcileJobParams{
		Logger:     logg,
		Orders:     orderRepo,
		Resumer:    orderService,
		Metrics:    escrowMetrics,
		StaleAfter: cfg.Escrow.IntentStaleAfter,
		Limit:      cfg.Escrow.ReconcileBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("payout reconcile job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		Repository:   outboxRepo,
		DeadLetters:  outbox.NewDLQRepository(dbClient.DB()),
		Retention:    cfg.Escrow.OutboxRetention,
		DLQRetention: cfg.Escrow.DLQRetention,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	return []cron.Job{reconcile, retention}, nil
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}

func lockEnv(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
