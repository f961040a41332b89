package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type memoryLockStore struct {
	data   map[string]string
	delErr error
}

func (m *memoryLockStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryLockStore) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	if m.delErr != nil {
		return false, m.delErr
	}
	if m.data[key] != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

const testLockKey = "sm:lock:cron-worker:test"

func TestRedisLockExcludesSecondOwner(t *testing.T) {
	ctx := context.Background()
	store := &memoryLockStore{data: map[string]string{}}
	first, err := NewRedisLock(store, testLockKey, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, err := NewRedisLock(store, testLockKey, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, err := second.Acquire(ctx); err != nil || ok {
		t.Fatalf("second acquire must fail while held: ok=%v err=%v", ok, err)
	}

	// a replica that never held the lock cannot free it
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, held := store.data[testLockKey]; !held {
		t.Fatal("lock freed by a non-owner")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, err := second.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockExpiredLeaseDoesNotFreeNewOwner(t *testing.T) {
	ctx := context.Background()
	store := &memoryLockStore{data: map[string]string{}}
	stale, err := NewRedisLock(store, testLockKey, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	if ok, err := stale.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	// lease expires and another replica takes over
	store.data[testLockKey] = "other-token"

	if err := stale.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := store.data[testLockKey]; got != "other-token" {
		t.Fatalf("new owner's lease was freed, got %q", got)
	}
}

func TestRedisLockReleaseError(t *testing.T) {
	ctx := context.Background()
	store := &memoryLockStore{data: map[string]string{}, delErr: errors.New("conn reset")}
	lock, err := NewRedisLock(store, testLockKey, 0)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	if lock.ttl != 55*time.Second {
		t.Fatalf("expected default ttl 55s, got %v", lock.ttl)
	}

	if _, err := lock.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := lock.Release(ctx); err == nil || !strings.Contains(err.Error(), "conn reset") {
		t.Fatalf("expected release error, got %v", err)
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "key", 0); err == nil {
		t.Fatal("expected store to be required")
	}
	if _, err := NewRedisLock(&memoryLockStore{}, "", 0); err == nil {
		t.Fatal("expected key to be required")
	}
}
