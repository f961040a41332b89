package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// EscrowEventRow mirrors the escrow_events BigQuery schema. Every order
// lifecycle event lands as one row; amount columns are only set by the
// events that carry them.
type EscrowEventRow struct {
	EventID           string             `bigquery:"event_id"`
	EventType         string             `bigquery:"event_type"`
	OccurredAt        time.Time          `bigquery:"occurred_at"`
	OrderID           string             `bigquery:"order_id"`
	BuyerID           *string            `bigquery:"buyer_id"`
	VendorID          *string            `bigquery:"vendor_id"`
	AmountCents       *int64             `bigquery:"amount_cents"`
	ReleasedCents     *int64             `bigquery:"released_cents"`
	RefundedCents     *int64             `bigquery:"refunded_cents"`
	Currency          *string            `bigquery:"currency"`
	PayoutStatus      *string            `bigquery:"payout_status"`
	FulfillmentStatus *string            `bigquery:"fulfillment_status"`
	DisputeOutcome    *string            `bigquery:"dispute_outcome"`
	Provider          *string            `bigquery:"provider"`
	Payload           cbigquery.NullJSON `bigquery:"payload"`
}

// EscrowEventSchema is the column layout of the escrow events table.
var EscrowEventSchema = cbigquery.Schema{
	{Name: "event_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "event_type", Type: cbigquery.StringFieldType, Required: true},
	{Name: "occurred_at", Type: cbigquery.TimestampFieldType, Required: true},
	{Name: "order_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "buyer_id", Type: cbigquery.StringFieldType},
	{Name: "vendor_id", Type: cbigquery.StringFieldType},
	{Name: "amount_cents", Type: cbigquery.IntegerFieldType},
	{Name: "released_cents", Type: cbigquery.IntegerFieldType},
	{Name: "refunded_cents", Type: cbigquery.IntegerFieldType},
	{Name: "currency", Type: cbigquery.StringFieldType},
	{Name: "payout_status", Type: cbigquery.StringFieldType},
	{Name: "fulfillment_status", Type: cbigquery.StringFieldType},
	{Name: "dispute_outcome", Type: cbigquery.StringFieldType},
	{Name: "provider", Type: cbigquery.StringFieldType},
	{Name: "payload", Type: cbigquery.JSONFieldType},
}

// Save implements bigquery.ValueSaver. The event id doubles as the insert id
// so BigQuery drops redelivered rows on a best-effort basis.
func (r *EscrowEventRow) Save() (map[string]cbigquery.Value, string, error) {
	row := map[string]cbigquery.Value{
		"event_id":    r.EventID,
		"event_type":  r.EventType,
		"occurred_at": r.OccurredAt.UTC(),
		"order_id":    r.OrderID,
	}
	optional := map[string]any{
		"buyer_id":           r.BuyerID,
		"vendor_id":          r.VendorID,
		"amount_cents":       r.AmountCents,
		"released_cents":     r.ReleasedCents,
		"refunded_cents":     r.RefundedCents,
		"currency":           r.Currency,
		"payout_status":      r.PayoutStatus,
		"fulfillment_status": r.FulfillmentStatus,
		"dispute_outcome":    r.DisputeOutcome,
		"provider":           r.Provider,
	}
	for col, v := range optional {
		switch p := v.(type) {
		case *string:
			if p != nil {
				row[col] = *p
			}
		case *int64:
			if p != nil {
				row[col] = *p
			}
		}
	}
	if r.Payload.Valid {
		row["payload"] = r.Payload.JSONVal
	}
	return row, r.EventID, nil
}
