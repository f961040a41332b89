package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/surfacemarket-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/surfacemarket-backend/pkg/bigquery"
)

// PartitionField is the column the escrow table is partitioned on.
const PartitionField = "occurred_at"

// Config controls the analytics writer behavior.
type Config struct {
	EscrowTable string
	Retry       RetryPolicy
}

// RetryPolicy bounds the exponential backoff around streaming inserts.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 250 * time.Millisecond
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = max(2*time.Second, p.InitialBackoff)
	}
	return p
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter streams one escrow row per event. Rows are written before
// the Pub/Sub message is acked, so nothing is buffered in memory.
type BigQueryWriter struct {
	client tableInserter
	table  string
	retry  RetryPolicy
}

// New creates a writer backed by the shared BigQuery client.
func New(client *pkgbigquery.Client, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	return newWriter(client, cfg)
}

func newWriter(client tableInserter, cfg Config) (*BigQueryWriter, error) {
	table := strings.TrimSpace(cfg.EscrowTable)
	if table == "" {
		return nil, errors.New("escrow table is required")
	}
	return &BigQueryWriter{client: client, table: table, retry: cfg.Retry.withDefaults()}, nil
}

// InsertEscrowEvent writes row, retrying transient BigQuery failures.
func (w *BigQueryWriter) InsertEscrowEvent(ctx context.Context, row types.EscrowEventRow) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.retry.InitialBackoff
	policy.MaxInterval = w.retry.MaximumBackoff
	policy.MaxElapsedTime = 0

	rows := []any{&row}
	err := backoff.Retry(func() error {
		err := w.client.InsertRows(ctx, w.table, rows)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(w.retry.MaxAttempts-1)), ctx))
	if err != nil {
		return fmt.Errorf("insert %s row %s: %w", w.table, row.EventID, err)
	}
	return nil
}

// retryable reports whether every underlying failure is transient. Row-level
// insert errors are unwrapped down to their individual causes.
func retryable(err error) bool {
	var causes []error
	var multi cbigquery.PutMultiError
	var rowErr *cbigquery.RowInsertionError
	var many cbigquery.MultiError
	switch {
	case errors.As(err, &multi):
		for _, row := range multi {
			causes = append(causes, row.Errors...)
		}
	case errors.As(err, &rowErr):
		causes = rowErr.Errors
	case errors.As(err, &many):
		causes = many
	default:
		return transient(err)
	}
	if len(causes) == 0 {
		return false
	}
	for _, cause := range causes {
		if !retryable(cause) {
			return false
		}
	}
	return true
}

func transient(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

// EncodeJSON converts payload into a BigQuery JSON column value. Empty input
// maps to NULL.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return v, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 || string(raw) == "null" {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
