package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/surfacemarket-backend/pkg/config"
)

type mockCmdable struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMock() *mockCmdable {
	return &mockCmdable{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := m.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	var n int64
	fmt.Sscan(m.data[key], &n)
	n++
	m.data[key] = fmt.Sprint(n)
	return redis.NewIntResult(n, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if script != compareAndDelete {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
	}
	if v, ok := m.data[keys[0]]; ok && v == fmt.Sprint(args[0]) {
		delete(m.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestIncrWithTTLSeedsWindowOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMock()
	client := &Client{store: mock}

	for want := int64(1); want <= 3; want++ {
		count, err := client.IncrWithTTL(ctx, "sm:rate:orders:ip:1.2.3.4", time.Minute)
		if err != nil {
			t.Fatalf("IncrWithTTL: %v", err)
		}
		if count != want {
			t.Fatalf("expected %d, got %d", want, count)
		}
	}
	if got := mock.ttls["sm:rate:orders:ip:1.2.3.4"]; got != time.Minute {
		t.Fatalf("window ttl set once on the first hit, got %v", got)
	}
}

func TestSetNXGetDel(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMock()}

	if ok, err := client.SetNX(ctx, "k", "owner-1", time.Minute); err != nil || !ok {
		t.Fatalf("first SetNX: ok=%v err=%v", ok, err)
	}
	if ok, err := client.SetNX(ctx, "k", "owner-2", time.Minute); err != nil || ok {
		t.Fatalf("second SetNX must not overwrite: ok=%v err=%v", ok, err)
	}

	v, err := client.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "owner-1" {
		t.Fatalf("expected owner-1, got %q", v)
	}

	if err := client.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := client.Get(ctx, "k"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestDelIfEqualsChecksOwner(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMock()}
	if _, err := client.SetNX(ctx, "lock", "owner-1", time.Minute); err != nil {
		t.Fatalf("SetNX: %v", err)
	}

	if removed, err := client.DelIfEquals(ctx, "lock", "owner-2"); err != nil || removed {
		t.Fatalf("non-owner delete: removed=%v err=%v", removed, err)
	}
	if removed, err := client.DelIfEquals(ctx, "lock", "owner-1"); err != nil || !removed {
		t.Fatalf("owner delete: removed=%v err=%v", removed, err)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); !errors.Is(err, errNotInitialized) {
		t.Fatalf("Ping: expected not initialized, got %v", err)
	}
	if _, err := client.IncrWithTTL(context.Background(), "k", time.Second); !errors.Is(err, errNotInitialized) {
		t.Fatalf("IncrWithTTL: expected not initialized, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close on an unopened client: %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	cases := map[string]string{
		client.IdempotencyKey("stripe-webhook", "evt_1"): "sm:idempotency:stripe-webhook:evt_1",
		client.LockKey("cron-worker", "prod"):            "sm:lock:cron-worker:prod",
		client.LockKey("cron-worker", ""):                "sm:lock:cron-worker",
		client.CacheKey("analytics", "escrow", "all"):    "sm:cache:analytics:escrow:all",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}

func TestSetOverwritesWithTTL(t *testing.T) {
	mock := newMock()
	client := &Client{store: mock}
	ctx := context.Background()

	if err := client.Set(ctx, "k", "v1", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := client.Set(ctx, "k", "v2", 2*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := client.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "v2" {
		t.Fatalf("expected v2, got %q", got)
	}
	if ttl := mock.ttls["k"]; ttl != 2*time.Minute {
		t.Fatalf("expected refreshed ttl, got %v", ttl)
	}

	if err := (&Client{}).Set(ctx, "k", "v", time.Second); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
}

func TestOptions(t *testing.T) {
	if _, err := options(config.RedisConfig{}); err == nil {
		t.Fatal("expected an address or URL to be required")
	}

	opts, err := options(config.RedisConfig{URL: "redis://:secret@localhost:6380/2", DB: 5, PoolSize: 7, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("options from URL: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.DB != 2 {
		t.Fatalf("URL wins over DB setting, got %s db %d", opts.Addr, opts.DB)
	}
	if opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("pool settings not applied: size %d dial %v", opts.PoolSize, opts.DialTimeout)
	}

	opts, err = options(config.RedisConfig{Address: "cache:6379", DB: 3})
	if err != nil {
		t.Fatalf("options from address: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.DB != 3 {
		t.Fatalf("expected cache:6379 db 3, got %s db %d", opts.Addr, opts.DB)
	}
}
