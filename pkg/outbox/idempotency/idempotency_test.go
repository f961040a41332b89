package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu     sync.Mutex
	data   map[string]string
	ttls   map[string]time.Duration
	setErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return false, s.setErr
	}
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	s.ttls[key] = ttl
	return true, nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "sm:idempotency:" + scope + ":" + id
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func TestCheckAndMarkProcessed(t *testing.T) {
	store := newMemoryStore()
	manager, err := NewManager(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("%v", err)
	}
	manager.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }

	ctx := context.Background()
	eventID := uuid.New()
	key := "sm:idempotency:evt:processed:escrow-analytics:" + eventID.String()

	already, err := manager.CheckAndMarkProcessed(ctx, "escrow-analytics", eventID)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if already {
		t.Fatal("first check must not report a processed event")
	}
	if got := store.ttls[key]; got != 24*time.Hour {
		t.Fatalf("expected %v, got %v", 24*time.Hour, got)
	}
	if got := store.data[key]; got != "2026-05-01T09:00:00Z" {
		t.Fatalf("expected 2026-05-01T09:00:00Z, got %v", got)
	}

	already, err = manager.CheckAndMarkProcessed(ctx, "escrow-analytics", eventID)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if !already {
		t.Fatal("second check must report the event as processed")
	}

	if err := manager.Delete(ctx, "escrow-analytics", eventID); err != nil {
		t.Fatalf("%v", err)
	}
	already, err = manager.CheckAndMarkProcessed(ctx, "escrow-analytics", eventID)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if already {
		t.Fatal("deleted marker must allow reprocessing")
	}
}

func TestClaimScopesAreIndependent(t *testing.T) {
	manager, err := NewManager(newMemoryStore(), time.Hour)
	if err != nil {
		t.Fatalf("%v", err)
	}
	ctx := context.Background()

	claimed, err := manager.Claim(ctx, "stripe-webhook", "evt_1")
	if err != nil {
		t.Fatalf("%v", err)
	}
	if !claimed {
		t.Fatal("expected first stripe claim to succeed")
	}

	claimed, err = manager.Claim(ctx, "square-webhook", "evt_1")
	if err != nil {
		t.Fatalf("%v", err)
	}
	if !claimed {
		t.Fatal("square scope must not see the stripe claim")
	}

	claimed, err = manager.Claim(ctx, "stripe-webhook", "evt_1")
	if err != nil {
		t.Fatalf("%v", err)
	}
	if claimed {
		t.Fatal("duplicate stripe claim must fail")
	}
}

func TestClaimStoreError(t *testing.T) {
	store := newMemoryStore()
	store.setErr = errors.New("redis down")
	manager, err := NewManager(store, time.Hour)
	if err != nil {
		t.Fatalf("%v", err)
	}

	_, err = manager.CheckAndMarkProcessed(context.Background(), "escrow-analytics", uuid.New())
	if !errors.Is(err, store.setErr) {
		t.Fatalf("expected %v, got %v", store.setErr, err)
	}
}

func TestManagerValidation(t *testing.T) {
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatal("expected nil store to be rejected")
	}
	if _, err := NewManager(newMemoryStore(), -time.Second); err == nil {
		t.Fatal("expected negative ttl to be rejected")
	}

	manager, err := NewManager(newMemoryStore(), time.Hour)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if _, err := manager.CheckAndMarkProcessed(context.Background(), "", uuid.New()); err == nil {
		t.Fatal("expected empty scope to be rejected")
	}
	if _, err := manager.CheckAndMarkProcessed(context.Background(), "escrow-analytics", uuid.Nil); err == nil {
		t.Fatal("expected nil event id to be rejected")
	}
	if _, err := manager.Claim(context.Background(), "scope", " "); err == nil {
		t.Fatal("expected blank id to be rejected")
	}
}
