package pubsub

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/surfacemarket-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct{ kind, id, want string }{
		{"topics", " escrow ", "projects/p1/topics/escrow"},
		{"topics", "projects/other/topics/escrow", "projects/other/topics/escrow"},
		{"subscriptions", "analytics", "projects/p1/subscriptions/analytics"},
	}
	for _, tc := range cases {
		if got := resourceName("p1", tc.kind, tc.id); got != tc.want {
			t.Fatalf("%s %q: expected %s, got %s", tc.kind, tc.id, tc.want, got)
		}
	}
}

func TestResourcesFromConfig(t *testing.T) {
	cfg := config.PubSubConfig{EscrowTopic: "escrow", AnalyticsTopic: " ", AnalyticsSubscription: "analytics-sub"}
	pub := PublisherResources(cfg)
	if !slices.Equal(pub.Topics, []string{"escrow"}) {
		t.Fatalf("blank analytics topic is skipped, got %v", pub.Topics)
	}
	if len(pub.Subscriptions) != 0 {
		t.Fatalf("publisher needs no subscriptions, got %v", pub.Subscriptions)
	}
	if got := SubscriberResources(cfg).Subscriptions; !slices.Equal(got, []string{"analytics-sub"}) {
		t.Fatalf("expected analytics-sub, got %v", got)
	}
}

func TestDescribe(t *testing.T) {
	if err := describe("topic", "escrow", nil); err != nil {
		t.Fatalf("describe(nil): %v", err)
	}
	if err := describe("topic", "escrow", status.Error(codes.NotFound, "gone")); err == nil || err.Error() != `topic "escrow" does not exist` {
		t.Fatalf("unexpected not-found error %v", err)
	}

	denied := status.Error(codes.PermissionDenied, "nope")
	if err := describe("subscription", "s", denied); !errors.Is(err, denied) {
		t.Fatalf("other errors are wrapped, got %v", err)
	}
}

func TestNewClientValidatesInput(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, Resources{Topics: []string{"t"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "project id") {
		t.Fatalf("expected missing project id error, got %v", err)
	}

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, Resources{}, nil)
	if err == nil || !strings.Contains(err.Error(), "no pubsub") {
		t.Fatalf("expected empty resources error, got %v", err)
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if c.Ping(context.Background()) == nil {
		t.Fatal("nil client must not report healthy")
	}
	if c.Publisher("escrow") != nil {
		t.Fatal("nil client has no publishers")
	}
	if c.AnalyticsSubscription() != nil {
		t.Fatal("nil client has no subscription")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestCredentialsPreferInlineJSON(t *testing.T) {
	if got := len(credentials(config.GCPConfig{CredentialsJSON: "{}", ApplicationCredentials: "/tmp/x"})); got != 1 {
		t.Fatalf("expected a single credentials option, got %d", got)
	}
	if opts := credentials(config.GCPConfig{}); opts != nil {
		t.Fatalf("expected default credentials, got %v", opts)
	}
}
