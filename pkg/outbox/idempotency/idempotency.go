package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/surfacemarket-backend/pkg/redis"
)

const processedScopePrefix = "evt:processed:"

// Manager claims event ids in Redis so at-least-once deliveries are handled
// once per TTL window. The stored value is the claim time.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

// NewManager returns a Manager whose claims expire after ttl. A zero ttl
// keeps claims until they are released.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// Claim reports whether id was newly claimed within scope. False means an
// earlier delivery already holds it.
func (m *Manager) Claim(ctx context.Context, scope, id string) (bool, error) {
	key, err := m.key(scope, id)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return claimed, nil
}

// Release drops a claim so the next delivery is processed again.
func (m *Manager) Release(ctx context.Context, scope, id string) error {
	key, err := m.key(scope, id)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

// CheckAndMarkProcessed claims an outbox event id for consumer and reports
// whether it had already been processed.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, errors.New("event id is required")
	}
	claimed, err := m.Claim(ctx, processedScope(consumer), eventID.String())
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// Delete releases the claim taken by CheckAndMarkProcessed.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	if eventID == uuid.Nil {
		return errors.New("event id is required")
	}
	return m.Release(ctx, processedScope(consumer), eventID.String())
}

func (m *Manager) key(scope, id string) (string, error) {
	scope = strings.TrimSpace(scope)
	id = strings.TrimSpace(id)
	switch {
	case scope == "" || scope == processedScopePrefix:
		return "", errors.New("consumer scope is required")
	case id == "":
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey(scope, id), nil
}

func processedScope(consumer string) string {
	return processedScopePrefix + strings.TrimSpace(consumer)
}
