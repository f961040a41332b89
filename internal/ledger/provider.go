package ledger

import (
	"context"
	"fmt"

	"github.com/angelmondragon/surfacemarket-backend/pkg/config"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
	"github.com/angelmondragon/surfacemarket-backend/pkg/metrics"
	pkgsquare "github.com/angelmondragon/surfacemarket-backend/pkg/square"
	pkgstripe "github.com/angelmondragon/surfacemarket-backend/pkg/stripe"
)

// Clients holds the processor SDK wrapper for the configured provider. Only
// the field matching the provider is set.
type Clients struct {
	Stripe *pkgstripe.Client
	Square *pkgsquare.Client
}

// NewClients initializes the SDK wrapper of the configured ledger provider.
func NewClients(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Clients, error) {
	switch cfg.Ledger.ProviderName() {
	case config.LedgerProviderStripe:
		client, err := pkgstripe.NewClient(ctx, cfg.Stripe, cfg.Ledger.Timeout, logg)
		if err != nil {
			return Clients{}, fmt.Errorf("init stripe client: %w", err)
		}
		return Clients{Stripe: client}, nil
	case config.LedgerProviderSquare:
		client, err := pkgsquare.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return Clients{}, fmt.Errorf("init square client: %w", err)
		}
		return Clients{Square: client}, nil
	default:
		return Clients{}, fmt.Errorf("unsupported ledger provider %q", cfg.Ledger.Provider)
	}
}

// NewProcessor picks the processor backed by whichever client is set.
func NewProcessor(clients Clients) (Processor, error) {
	switch {
	case clients.Stripe != nil:
		return NewStripeProcessor(NewStripePaymentClient(clients.Stripe))
	case clients.Square != nil:
		return NewSquareProcessor(clients.Square)
	default:
		return nil, fmt.Errorf("no ledger client configured")
	}
}

// NewGateway builds the ledger adapter for the configured provider.
func NewGateway(clients Clients, cfg config.LedgerConfig, m *metrics.EscrowMetrics, logg *logger.Logger) (*Adapter, error) {
	processor, err := NewProcessor(clients)
	if err != nil {
		return nil, err
	}
	return NewAdapter(processor, cfg, m, logg)
}
