package webhooks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/internal/webhooks/guard"
)

type stripeSecretStub string

func (s stripeSecretStub) SigningSecret() string { return string(s) }

// signatureStub accepts exactly one signature value.
type signatureStub struct {
	want string
}

func (s signatureStub) VerifyWebhook(body []byte, signature string) bool {
	return signature != "" && signature == s.want
}

// memoryKeys backs the idempotency guard with a map keyed like redis.
type memoryKeys struct {
	mu   sync.Mutex
	keys map[string]any
}

func (m *memoryKeys) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return "1", nil
	}
	return "", nil
}

func (m *memoryKeys) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]any{}
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = value
	return true, nil
}

func (m *memoryKeys) IdempotencyKey(scope, id string) string {
	return scope + "/" + id
}

func (m *memoryKeys) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func newGuard(t *testing.T, scope string) *guard.IdempotencyGuard {
	t.Helper()
	g, err := guard.NewIdempotencyGuard(&memoryKeys{}, time.Minute, scope)
	if err != nil {
		t.Fatalf("NewIdempotencyGuard: %v", err)
	}
	return g
}
