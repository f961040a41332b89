package outbox

import (
	"errors"
	"testing"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"version":1,"event_id":"e-1","occurred_at":"2026-03-01T10:00:00Z","data":{"order_id":"x"}}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if env.EventID != "e-1" {
		t.Fatalf("expected e-1, got %q", env.EventID)
	}
	if got := string(env.Data); got != `{"order_id":"x"}` {
		t.Fatalf("unexpected data %s", got)
	}

	cases := []struct {
		raw  string
		want error
	}{
		{`{"version":3,"data":{}}`, ErrUnsupportedVersion},
		{`{"version":1,"data":null}`, ErrEmptyPayload},
		{`{"version":1}`, ErrEmptyPayload},
	}
	for _, tc := range cases {
		if _, err := DecodeEnvelope([]byte(tc.raw)); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.raw, tc.want, err)
		}
	}

	if _, err := DecodeEnvelope([]byte(`[`)); err == nil {
		t.Fatal("expected malformed JSON to be rejected")
	}
}
