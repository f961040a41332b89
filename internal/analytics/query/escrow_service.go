package query

import (
	"context"
	"fmt"

	cloudbigquery "cloud.google.com/go/bigquery"
	"github.com/angelmondragon/surfacemarket-backend/internal/analytics/types"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"google.golang.org/api/iterator"
)

const (
	timeSeriesCountSQL = `
SELECT
  FORMAT_DATE('%%F', DATE_TRUNC(occurred_at, DAY)) AS day,
  COUNT(DISTINCT order_id) AS value
FROM %s
WHERE %s
  AND event_type = @eventType
  AND occurred_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day ASC
`

	timeSeriesSumSQL = `
SELECT
  FORMAT_DATE('%%F', DATE_TRUNC(occurred_at, DAY)) AS day,
  SUM(COALESCE(%s, 0)) AS value
FROM %s
WHERE %s
  AND event_type IN ('payout_released', 'payout_refunded', 'payout_partially_refunded')
  AND occurred_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day ASC
`

	topVendorsSQL = `
SELECT vendor_id AS label, SUM(COALESCE(released_cents, 0)) AS value
FROM %s
WHERE %s
  AND vendor_id IS NOT NULL
  AND event_type IN ('payout_released', 'payout_partially_refunded')
  AND occurred_at BETWEEN @start AND @end
GROUP BY vendor_id
ORDER BY value DESC
LIMIT 5
`

	disputeRateSQL = `
SELECT
  COUNT(DISTINCT IF(event_type = 'dispute_opened', order_id, NULL)) AS disputes,
  COUNT(DISTINCT IF(event_type = 'order_created', order_id, NULL)) AS orders
FROM %s
WHERE %s
  AND event_type IN ('order_created', 'dispute_opened')
  AND occurred_at BETWEEN @start AND @end
`
)

// EscrowService provides admin dashboard data from BigQuery escrow_events.
type EscrowService interface {
	Query(ctx context.Context, req types.EscrowQueryRequest) (*types.EscrowQueryResponse, error)
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (*cloudbigquery.RowIterator, error)
}

type escrowService struct {
	client   rowQuerier
	tableRef string
}

// NewEscrowService builds a service backed by BigQuery.
func NewEscrowService(client rowQuerier, project, dataset, table string) (EscrowService, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if project == "" || dataset == "" || table == "" {
		return nil, fmt.Errorf("project, dataset, and table are required")
	}
	return &escrowService{
		client:   client,
		tableRef: fmt.Sprintf("`%s.%s.%s`", project, dataset, table),
	}, nil
}

func (s *escrowService) Query(ctx context.Context, req types.EscrowQueryRequest) (*types.EscrowQueryResponse, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	scope := vendorClause(req)
	params := baseParams(req)

	created := append(append([]cloudbigquery.QueryParameter{}, params...), cloudbigquery.QueryParameter{Name: "eventType", Value: "order_created"})
	orders, err := s.querySeries(ctx, fmt.Sprintf(timeSeriesCountSQL, s.tableRef, scope), created)
	if err != nil {
		return nil, err
	}
	released, err := s.querySeries(ctx, fmt.Sprintf(timeSeriesSumSQL, "released_cents", s.tableRef, scope), params)
	if err != nil {
		return nil, err
	}
	refunded, err := s.querySeries(ctx, fmt.Sprintf(timeSeriesSumSQL, "refunded_cents", s.tableRef, scope), params)
	if err != nil {
		return nil, err
	}
	topVendors, err := s.queryTopLabels(ctx, fmt.Sprintf(topVendorsSQL, s.tableRef, scope), params)
	if err != nil {
		return nil, err
	}
	disputes, total, err := s.queryDisputes(ctx, fmt.Sprintf(disputeRateSQL, s.tableRef, scope), params)
	if err != nil {
		return nil, err
	}

	resp := &types.EscrowQueryResponse{
		OrdersSeries:   orders,
		ReleasedSeries: released,
		RefundedSeries: refunded,
		TopVendors:     topVendors,
		DisputesOpened: disputes,
	}
	if total > 0 {
		resp.DisputeRate = float64(disputes) / float64(total)
	}
	return resp, nil
}

// ValidateRequest checks the query window.
func ValidateRequest(req types.EscrowQueryRequest) error {
	if req.Start.IsZero() || req.End.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "start and end are required")
	}
	if req.End.Before(req.Start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
	}
	return nil
}

func vendorClause(req types.EscrowQueryRequest) string {
	if req.VendorID != nil {
		return "vendor_id = @vendorID"
	}
	return "TRUE"
}

func baseParams(req types.EscrowQueryRequest) []cloudbigquery.QueryParameter {
	params := []cloudbigquery.QueryParameter{
		{Name: "start", Value: req.Start},
		{Name: "end", Value: req.End},
	}
	if req.VendorID != nil {
		params = append(params, cloudbigquery.QueryParameter{Name: "vendorID", Value: req.VendorID.String()})
	}
	return params
}

func (s *escrowService) querySeries(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) ([]types.TimeSeriesPoint, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}

	points := []types.TimeSeriesPoint{}
	for {
		var row struct {
			Day   string `bigquery:"day"`
			Value int64  `bigquery:"value"`
		}
		if err := iter.Next(&row); err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("reading series row: %w", err)
		}
		points = append(points, types.TimeSeriesPoint{Date: row.Day, Value: row.Value})
	}
	return points, nil
}

func (s *escrowService) queryTopLabels(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) ([]types.LabelValue, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("query top labels: %w", err)
	}

	result := []types.LabelValue{}
	for {
		var row struct {
			Label string `bigquery:"label"`
			Value int64  `bigquery:"value"`
		}
		if err := iter.Next(&row); err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("reading top label row: %w", err)
		}
		result = append(result, types.LabelValue{Label: row.Label, Value: row.Value})
	}
	return result, nil
}

func (s *escrowService) queryDisputes(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (int64, int64, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return 0, 0, fmt.Errorf("query dispute rate: %w", err)
	}
	var row struct {
		Disputes int64 `bigquery:"disputes"`
		Orders   int64 `bigquery:"orders"`
	}
	if err := iter.Next(&row); err != nil {
		if err == iterator.Done {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("reading dispute rate row: %w", err)
	}
	return row.Disputes, row.Orders, nil
}
