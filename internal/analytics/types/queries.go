package types

import (
	"time"

	"github.com/google/uuid"
)

// EscrowQueryRequest scopes the escrow KPIs to a time window and, optionally,
// a single vendor.
type EscrowQueryRequest struct {
	VendorID *uuid.UUID
	Start    time.Time
	End      time.Time
}

// TimeSeriesPoint describes a single date/value pair returned by the query service.
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// LabelValue represents a top-N entry.
type LabelValue struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// EscrowQueryResponse wraps the escrow KPIs for the admin dashboard.
type EscrowQueryResponse struct {
	OrdersSeries   []TimeSeriesPoint `json:"orders"`
	ReleasedSeries []TimeSeriesPoint `json:"released_cents"`
	RefundedSeries []TimeSeriesPoint `json:"refunded_cents"`
	TopVendors     []LabelValue      `json:"top_vendors"`
	DisputesOpened int64             `json:"disputes_opened"`
	DisputeRate    float64           `json:"dispute_rate"`
}
