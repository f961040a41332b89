package stripe

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/pkg/config"
)

func TestNewClientValidatesKeyForMode(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.StripeConfig
		ok   bool
	}{
		{name: "test key in test mode", cfg: config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_1"}, ok: true},
		{name: "restricted live key", cfg: config.StripeConfig{APIKey: "rk_live_123", Secret: "whsec_1", Env: "live"}, ok: true},
		{name: "live key in test mode", cfg: config.StripeConfig{APIKey: "sk_live_123", Secret: "whsec_1", Env: "test"}},
		{name: "unknown mode", cfg: config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_1", Env: "staging"}},
		{name: "missing secret", cfg: config.StripeConfig{APIKey: "sk_test_123"}},
		{name: "missing key", cfg: config.StripeConfig{Secret: "whsec_1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), tc.cfg, 5*time.Second, nil)
			if !tc.ok {
				if err == nil {
					t.Fatal("expected configuration to be rejected")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			if client.SigningSecret() != "whsec_1" {
				t.Fatalf("expected whsec_1, got %q", client.SigningSecret())
			}
		})
	}
}

func TestNilClientAccessors(t *testing.T) {
	var client *Client
	if client.SigningSecret() != "" || client.Environment() != "" {
		t.Fatalf("nil client accessors must be empty, got %q and %q", client.SigningSecret(), client.Environment())
	}
}
