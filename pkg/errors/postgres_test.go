package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestPostgresUnwrapsDriverErrors(t *testing.T) {
	pgxErr := fmt.Errorf("insert order: %w", &pgconn.PgError{Code: "23505", ConstraintName: "orders_offer_id_key", TableName: "orders"})
	info, ok := Postgres(pgxErr)
	if !ok {
		t.Fatal("expected pgx error to be found")
	}
	if info.Code != "23505" || info.Constraint != "orders_offer_id_key" {
		t.Fatalf("unexpected info %+v", info)
	}

	pqErr := Wrap(CodeDependency, &pq.Error{Code: "40001", Message: "could not serialize access"}, "update order")
	info, ok = Postgres(pqErr)
	if !ok {
		t.Fatal("expected pq error to be found")
	}
	if info.Code != "40001" {
		t.Fatalf("expected 40001, got %q", info.Code)
	}

	if _, ok := Postgres(New(CodeInternal, "plain")); ok {
		t.Fatal("plain errors carry no postgres info")
	}
}

func TestLogFields(t *testing.T) {
	err := Wrap(CodeDependency, &pgconn.PgError{Code: "23505", TableName: "ledger_events"}, "record ledger event").
		WithDetails(map[string]any{"step": "capture"})

	fields := LogFields(err)
	want := map[string]any{
		"error_code": CodeDependency,
		"step":       "capture",
		"pg_code":    "23505",
		"pg_table":   "ledger_events",
	}
	for key, value := range want {
		if fields[key] != value {
			t.Fatalf("%s: expected %v, got %v", key, value, fields[key])
		}
	}
	if chain, _ := fields["error_chain"].([]string); len(chain) != 2 {
		t.Fatalf("expected a two-link error chain, got %v", fields["error_chain"])
	}

	if got := LogFields(nil); len(got) != 0 {
		t.Fatalf("nil error has no fields, got %v", got)
	}
}
