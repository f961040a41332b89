package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/surfacemarket-backend/pkg/config"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
)

// Resources are the topics and subscriptions a process depends on. They are
// checked once at startup and again on every Ping.
type Resources struct {
	Topics        []string
	Subscriptions []string
}

// PublisherResources covers the topics the outbox publisher writes to.
func PublisherResources(cfg config.PubSubConfig) Resources {
	return Resources{Topics: nonEmpty(cfg.EscrowTopic, cfg.AnalyticsTopic)}
}

// SubscriberResources covers the analytics worker subscription.
func SubscriberResources(cfg config.PubSubConfig) Resources {
	return Resources{Subscriptions: nonEmpty(cfg.AnalyticsSubscription)}
}

type Client struct {
	ps        *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	needs     Resources
}

// NewClient opens a Pub/Sub v2 client and verifies needs exist.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, needs Resources, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}
	if len(needs.Topics)+len(needs.Subscriptions) == 0 {
		return nil, errors.New("no pubsub topics or subscriptions requested")
	}

	ps, err := pubsub.NewClient(ctx, projectID, credentials(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{ps: ps, projectID: projectID, cfg: cfg, needs: needs}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topics":        needs.Topics,
			"subscriptions": needs.Subscriptions,
		}), "pubsub client ready")
	}
	return c, nil
}

func credentials(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// Ping checks every required topic and subscription concurrently.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errors.New("pubsub client not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range c.needs.Topics {
		name := resourceName(c.projectID, "topics", topic)
		g.Go(func() error {
			_, err := c.ps.TopicAdminClient.GetTopic(gctx, &pubsubpb.GetTopicRequest{Topic: name})
			return describe("topic", topic, err)
		})
	}
	for _, sub := range c.needs.Subscriptions {
		name := resourceName(c.projectID, "subscriptions", sub)
		g.Go(func() error {
			_, err := c.ps.SubscriptionAdminClient.GetSubscription(gctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
			return describe("subscription", sub, err)
		})
	}
	return g.Wait()
}

func describe(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

// AnalyticsSubscription returns the subscriber feeding the analytics worker.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	if c == nil || c.ps == nil || strings.TrimSpace(c.cfg.AnalyticsSubscription) == "" {
		return nil
	}
	return c.ps.Subscriber(resourceName(c.projectID, "subscriptions", c.cfg.AnalyticsSubscription))
}

// Publisher returns a publisher for a topic id or full resource name.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.ps == nil || strings.TrimSpace(topic) == "" {
		return nil
	}
	return c.ps.Publisher(resourceName(c.projectID, "topics", topic))
}

func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	return c.ps.Close()
}

// resourceName expands a bare id into projects/<project>/<collection>/<id>.
// Names that are already fully qualified pass through.
func resourceName(projectID, collection, name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+collection+"/") {
		return name
	}
	return "projects/" + projectID + "/" + collection + "/" + name
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
