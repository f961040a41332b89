package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/surfacemarket-backend/pkg/db"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service records the money movements confirmed by the processor.
type Service interface {
	WithTx(tx *gorm.DB) Service
	RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.LedgerEvent, error)
	ListEvents(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error)
}

type service struct {
	repo Repository
}

// RecordLedgerEventInput captures the immutable data a ledger event requires.
type RecordLedgerEventInput struct {
	OrderID        uuid.UUID             `json:"order_id"`
	BuyerID        uuid.UUID             `json:"buyer_id"`
	VendorID       uuid.UUID             `json:"vendor_id"`
	ActorUserID    *uuid.UUID            `json:"actor_user_id,omitempty"`
	Type           enums.LedgerEventType `json:"type"`
	AmountCents    int64                 `json:"amount_cents"`
	Currency       enums.Currency        `json:"currency"`
	Provider       string                `json:"provider"`
	Reference      string                `json:"reference"`
	IdempotencyKey string                `json:"idempotency_key"`
	Metadata       json.RawMessage       `json:"metadata"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

// RecordEvent inserts the event once per idempotency key. A replay returns the
// stored row.
func (s *service) RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.LedgerEvent, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if input.BuyerID == uuid.Nil {
		return nil, fmt.Errorf("buyer id is required")
	}
	if input.VendorID == uuid.Nil {
		return nil, fmt.Errorf("vendor id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid ledger event type %q", input.Type)
	}
	if input.AmountCents < 0 {
		return nil, fmt.Errorf("ledger amount must not be negative")
	}
	if input.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key is required")
	}

	existing, err := s.repo.FindByIdempotencyKey(ctx, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	event := &models.LedgerEvent{
		OrderID:        input.OrderID,
		BuyerID:        input.BuyerID,
		VendorID:       input.VendorID,
		ActorUserID:    input.ActorUserID,
		Type:           input.Type,
		AmountCents:    input.AmountCents,
		Currency:       input.Currency,
		Provider:       input.Provider,
		Reference:      input.Reference,
		IdempotencyKey: input.IdempotencyKey,
		Metadata:       input.Metadata,
	}

	if err := s.repo.Create(ctx, event); err != nil {
		if db.IsUniqueViolation(err, "") {
			return s.repo.FindByIdempotencyKey(ctx, input.IdempotencyKey)
		}
		return nil, err
	}
	return event, nil
}

func (s *service) ListEvents(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	return s.repo.ListByOrderID(ctx, orderID)
}
