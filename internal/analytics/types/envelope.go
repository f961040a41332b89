package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
)

// Envelope is one escrow event as the analytics worker sees it after
// decoding a Pub/Sub message.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	EventType     enums.AnalyticsEventType  `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	Payload       json.RawMessage           `json:"payload"`
}

// OrderID returns the aggregate id when the envelope belongs to an order.
func (e Envelope) OrderID() (uuid.UUID, bool) {
	if e.AggregateType != enums.AggregateOrder {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(e.AggregateID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
