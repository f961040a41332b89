package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/surfacemarket-backend/api/routes"
	"github.com/angelmondragon/surfacemarket-backend/internal/analytics"
	"github.com/angelmondragon/surfacemarket-backend/internal/feed"
	"github.com/angelmondragon/surfacemarket-backend/internal/jobs"
	"github.com/angelmondragon/surfacemarket-backend/internal/ledger"
	"github.com/angelmondragon/surfacemarket-backend/internal/offers"
	"github.com/angelmondragon/surfacemarket-backend/internal/orders"
	"github.com/angelmondragon/surfacemarket-backend/internal/profiles"
	"github.com/angelmondragon/surfacemarket-backend/internal/reviews"
	"github.com/angelmondragon/surfacemarket-backend/internal/webhooks/guard"
	squarewebhook "github.com/angelmondragon/surfacemarket-backend/internal/webhooks/square"
	stripewebhook "github.com/angelmondragon/surfacemarket-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/surfacemarket-backend/pkg/bigquery"
	"github.com/angelmondragon/surfacemarket-backend/pkg/config"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
	"github.com/angelmondragon/surfacemarket-backend/pkg/metrics"
	"github.com/angelmondragon/surfacemarket-backend/pkg/migrate"
	"github.com/angelmondragon/surfacemarket-backend/pkg/outbox"
	"github.com/angelmondragon/surfacemarket-backend/pkg/redis"
)

const (
	serviceName     = "api"
	shutdownTimeout = 15 * time.Second
)

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

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

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

	ledgerClients, err := ledger.NewClients(ctx, cfg, logg)
	if err != nil {
		return fmt.Errorf("bootstrap ledger provider: %w", err)
	}

	deps, err := services(cfg, logg, dbClient, ledgerClients)
	if err != nil {
		return err
	}
	deps.DB = dbClient
	deps.Redis = redisClient

	if strings.TrimSpace(cfg.GCP.ProjectID) != "" {
		bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			return fmt.Errorf("bootstrap bigquery: %w", err)
		}
		defer closeQuietly(ctx, logg, "bigquery", bqClient.Close)

		deps.BigQuery = bqClient
		deps.Analytics, err = analytics.NewService(analytics.ServiceParams{
			Client:   bqClient,
			Project:  cfg.GCP.ProjectID,
			Dataset:  cfg.BigQuery.Dataset,
			Table:    cfg.BigQuery.EscrowEventsTable,
			Cache:    redisClient,
			CacheTTL: cfg.BigQuery.QueryCacheTTL,
			Logger:   logg,
		})
		if err != nil {
			return fmt.Errorf("analytics service: %w", err)
		}
	} else {
		logg.Warn(ctx, "gcp project not configured, escrow analytics disabled")
	}

	if err := wireWebhooks(cfg, logg, ledgerClients, redisClient, &deps); err != nil {
		return fmt.Errorf("payment webhooks: %w", err)
	}

	return serve(ctx, cfg, logg, routes.NewRouter(cfg, logg, deps))
}

// services builds the order, feed and review services over one database.
func services(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, clients ledger.Clients) (routes.Dependencies, error) {
	var deps routes.Dependencies

	escrowMetrics := metrics.NewEscrowMetrics(prometheus.DefaultRegisterer)
	gateway, err := ledger.NewGateway(clients, cfg.Ledger, escrowMetrics, logg)
	if err != nil {
		return deps, fmt.Errorf("ledger gateway: %w", err)
	}
	ledgerEvents, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return deps, fmt.Errorf("ledger service: %w", err)
	}

	conn := dbClient.DB()
	orderRepo := orders.NewRepository(conn)
	jobRepo := jobs.NewRepository(conn)
	profileRepo := profiles.NewRepository(conn)
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)
	policy := orders.WindowPolicy{AutoReleaseDays: cfg.Escrow.AutoReleaseDays}

	deps.Orders, err = orders.NewService(orders.ServiceParams{
		Repo:              orderRepo,
		Offers:            offers.NewRepository(conn),
		Jobs:              jobRepo,
		Profiles:          profileRepo,
		Ledger:            gateway,
		LedgerEvents:      ledgerEvents,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Policy:            policy,
		IntentStaleAfter:  cfg.Escrow.IntentStaleAfter,
		Metrics:           escrowMetrics,
		Logger:            logg,
	})
	if err != nil {
		return deps, fmt.Errorf("orders service: %w", err)
	}

	deps.Feed, err = feed.NewService(feed.ServiceParams{
		Orders:           orderRepo,
		Jobs:             jobRepo,
		Profiles:         profileRepo,
		Policy:           policy,
		IntentStaleAfter: cfg.Escrow.IntentStaleAfter,
		Logger:           logg,
	})
	if err != nil {
		return deps, fmt.Errorf("feed service: %w", err)
	}

	deps.Reviews, err = reviews.NewService(reviews.ServiceParams{
		Repo:              reviews.NewRepository(conn),
		Orders:            orderRepo,
		Profiles:          profileRepo,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Policy:            policy,
		Logger:            logg,
	})
	if err != nil {
		return deps, fmt.Errorf("reviews service: %w", err)
	}

	deps.OutboxDLQ = outbox.NewDLQRepository(conn)
	return deps, nil
}

// wireWebhooks mounts the webhook route of the configured ledger provider.
func wireWebhooks(cfg *config.Config, logg *logger.Logger, clients ledger.Clients, store redis.IdempotencyStore, deps *routes.Dependencies) error {
	switch {
	case clients.Stripe != nil:
		svc, err := stripewebhook.NewService(stripewebhook.ServiceParams{Orders: deps.Orders, Logger: logg})
		if err != nil {
			return err
		}
		webhookGuard, err := guard.NewIdempotencyGuard(store, cfg.Eventing.WebhookDedupeTTL, "stripe-webhook")
		if err != nil {
			return err
		}
		deps.Stripe = routes.StripeWebhook{Service: svc, Client: clients.Stripe, Guard: webhookGuard}
	case clients.Square != nil:
		svc, err := squarewebhook.NewService(squarewebhook.ServiceParams{Orders: deps.Orders, Logger: logg})
		if err != nil {
			return err
		}
		webhookGuard, err := guard.NewIdempotencyGuard(store, cfg.Eventing.WebhookDedupeTTL, "square-webhook")
		if err != nil {
			return err
		}
		deps.Square = routes.SquareWebhook{Service: svc, Client: clients.Square, Guard: webhookGuard}
	}
	return nil
}

// serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func serve(ctx context.Context, cfg *config.Config, logg *logger.Logger, handler http.Handler) error {
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	instance := os.Getenv("DYNO")
	if instance == "" {
		instance = "local"
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":             cfg.App.Env,
		"addr":            server.Addr,
		"instance":        instance,
		"ledger_provider": cfg.Ledger.ProviderName(),
	})

	errCh := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "api server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}
