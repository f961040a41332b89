package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
)

type recordingInserter struct {
	rows []models.OutboxEvent
	err  error
}

func (r *recordingInserter) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if r.err != nil {
		return r.err
	}
	r.rows = append(r.rows, event)
	return nil
}

func newTestService(rows *recordingInserter, id uuid.UUID, now time.Time) *Service {
	return &Service{
		rows:  rows,
		clock: func() time.Time { return now },
		newID: func() uuid.UUID { return id },
	}
}

func TestEmitUsesRowIDAsEventID(t *testing.T) {
	rows := &recordingInserter{}
	id := uuid.New()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(rows, id, now)
	orderID := uuid.New()

	err := svc.Emit(context.Background(), &gorm.DB{}, DomainEvent{
		EventType:     enums.EventPayoutReleased,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         &ActorRef{UserID: uuid.New(), Role: "buyer"},
		Data:          map[string]any{"amountCents": 1500},
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(rows.rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows.rows))
	}

	row := rows.rows[0]
	if row.ID != id || row.AggregateID != orderID {
		t.Fatalf("unexpected row ids %s / %s", row.ID, row.AggregateID)
	}

	var envelope PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.EventID != id.String() {
		t.Fatalf("event id must be the row id, got %q", envelope.EventID)
	}
	if envelope.Version != PayloadVersion {
		t.Fatalf("expected version %d, got %d", PayloadVersion, envelope.Version)
	}
	if !envelope.OccurredAt.Equal(now) {
		t.Fatalf("expected %v, got %v", now, envelope.OccurredAt)
	}
	if got := string(envelope.Data); got != `{"amountCents":1500}` {
		t.Fatalf("unexpected data %s", got)
	}
}

func TestEmitRejectsInvalidEvents(t *testing.T) {
	svc := newTestService(&recordingInserter{}, uuid.New(), time.Now())
	ctx := context.Background()

	if svc.Emit(ctx, nil, DomainEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New()}) == nil {
		t.Fatal("expected a transaction to be required")
	}
	if svc.Emit(ctx, &gorm.DB{}, DomainEvent{EventType: "bogus", AggregateType: enums.AggregateOrder, AggregateID: uuid.New()}) == nil {
		t.Fatal("expected unknown event type to be rejected")
	}
	if svc.Emit(ctx, &gorm.DB{}, DomainEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder}) == nil {
		t.Fatal("expected aggregate id to be required")
	}
}

func TestEmitPropagatesInsertError(t *testing.T) {
	rows := &recordingInserter{err: errors.New("tx aborted")}
	svc := newTestService(rows, uuid.New(), time.Now())

	err := svc.Emit(context.Background(), &gorm.DB{}, DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
	})
	if !errors.Is(err, rows.err) {
		t.Fatalf("expected %v, got %v", rows.err, err)
	}
}
