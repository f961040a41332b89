package guard

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/surfacemarket-backend/pkg/redis"
)

// IdempotencyGuard marks processor event ids as seen so redeliveries are
// acknowledged without touching orders twice.
type IdempotencyGuard struct {
	claims *idempotency.Manager
	scope  string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	claims, err := idempotency.NewManager(store, ttl)
	if err != nil {
		return nil, err
	}
	return &IdempotencyGuard{claims: claims, scope: scope}, nil
}

// CheckAndMark returns true when eventID was already marked.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	claimed, err := g.claims.Claim(ctx, g.scope, eventID)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// Delete unmarks eventID so a failed delivery can be retried.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	return g.claims.Release(ctx, g.scope, eventID)
}
