package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/surfacemarket-backend/pkg/config"
)

func TestCredentialsPreferInlineJSON(t *testing.T) {
	opts := credentials(config.GCPConfig{
		CredentialsJSON:        `{"type":"service_account"}`,
		ApplicationCredentials: "/tmp/creds",
	})
	if len(opts) != 1 {
		t.Fatalf("expected a single credential option, got %d", len(opts))
	}
	if got := len(credentials(config.GCPConfig{ApplicationCredentials: "/tmp/creds"})); got != 1 {
		t.Fatalf("expected file credentials option, got %d", got)
	}
	if got := credentials(config.GCPConfig{CredentialsJSON: "  "}); len(got) != 0 {
		t.Fatalf("blank credentials must fall back to ADC, got %d options", len(got))
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	full := config.BigQueryConfig{Dataset: "market", EscrowEventsTable: "escrow_events"}

	_, err := NewClient(ctx, config.GCPConfig{}, full, nil)
	if err == nil || !strings.Contains(err.Error(), "project id") {
		t.Fatalf("expected error containing %q, got %v", "project id", err)
	}

	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{EscrowEventsTable: "t"}, nil)
	if err == nil || !strings.Contains(err.Error(), "dataset") {
		t.Fatalf("expected error containing %q, got %v", "dataset", err)
	}

	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "d", EscrowEventsTable: " "}, nil)
	if err == nil || !strings.Contains(err.Error(), "escrow table") {
		t.Fatalf("expected error containing %q, got %v", "escrow table", err)
	}
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	if err := c.Ping(context.Background()); !errors.Is(err, errNotInitialized) {
		t.Fatalf("Ping: expected %v, got %v", errNotInitialized, err)
	}
	if err := c.InsertRows(context.Background(), "t", []any{1}); !errors.Is(err, errNotInitialized) {
		t.Fatalf("InsertRows: expected %v, got %v", errNotInitialized, err)
	}
	if _, err := c.Query(context.Background(), "SELECT 1", nil); !errors.Is(err, errNotInitialized) {
		t.Fatalf("Query: expected %v, got %v", errNotInitialized, err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDescribeMetadataErr(t *testing.T) {
	notFound := fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound})
	if !isNotFound(notFound) {
		t.Fatal("wrapped 404 must be reported as not found")
	}
	want := `table "escrow_events" does not exist`
	if err := describeMetadataErr("table", "escrow_events", notFound); err == nil || err.Error() != want {
		t.Fatalf("expected %q, got %v", want, err)
	}

	denied := &googleapi.Error{Code: http.StatusForbidden}
	err := describeMetadataErr("dataset", "market", denied)
	if isNotFound(denied) {
		t.Fatal("403 must not be reported as not found")
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected the api error to stay wrapped, got %v", err)
	}
}
